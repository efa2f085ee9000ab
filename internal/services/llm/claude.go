package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
)

const ProviderClaude = "claude"

// Claude generates text with the Anthropic Messages API
type Claude struct {
	config    *common.ClaudeConfig
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
	policy    RetryPolicy
	sleep     sleepFunc
	logger    arbor.ILogger
}

// NewClaude creates a Claude generator. The API key must be set.
func NewClaude(config *common.ClaudeConfig, logger arbor.ILogger) (*Claude, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("claude api key is required (set GRANTPOST_CLAUDE_API_KEY, ANTHROPIC_API_KEY or claude.api_key)")
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	timeout := common.ParseDurationOr(config.Timeout, 2*time.Minute)

	logger.Info().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude generator initialized")

	return &Claude{
		config:    config,
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		timeout:   timeout,
		maxTokens: maxTokens,
		policy:    DefaultRetryPolicy(),
		sleep:     common.SleepContext,
		logger:    logger,
	}, nil
}

func (c *Claude) Name() string { return ProviderClaude }

func (c *Claude) Available() bool { return true }

// Generate sends prompt as a single user message
func (c *Claude) Generate(ctx context.Context, prompt string) (string, error) {
	started := time.Now()
	text, err := withRetry(ctx, c.policy, c.sleep, c.logger, ProviderClaude, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.generate(callCtx, prompt)
	})
	if err != nil {
		c.logger.Error().Err(err).Str("model", c.config.Model).Msg("Claude generation failed")
		return "", err
	}

	c.logger.Debug().
		Str("model", c.config.Model).
		Int("response_length", len(text)).
		Dur("duration", time.Since(started)).
		Msg("Claude generation completed")
	return text, nil
}

func (c *Claude) generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.config.Temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from claude")
	}
	return response.String(), nil
}
