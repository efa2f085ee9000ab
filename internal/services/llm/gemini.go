package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/grantpost/internal/common"
)

const ProviderGemini = "gemini"

// Gemini generates text with the Google Gemini API
type Gemini struct {
	config  *common.GeminiConfig
	client  *genai.Client
	timeout time.Duration
	policy  RetryPolicy
	sleep   sleepFunc
	logger  arbor.ILogger
}

// NewGemini creates a Gemini generator. The API key must be set.
func NewGemini(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required (set GRANTPOST_GEMINI_API_KEY or gemini.api_key)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	timeout := common.ParseDurationOr(config.Timeout, 2*time.Minute)

	logger.Info().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Gemini generator initialized")

	return &Gemini{
		config:  config,
		client:  client,
		timeout: timeout,
		policy:  DefaultRetryPolicy(),
		sleep:   common.SleepContext,
		logger:  logger,
	}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Available() bool { return g.client != nil }

// Generate sends prompt as a single user turn
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	started := time.Now()
	text, err := withRetry(ctx, g.policy, g.sleep, g.logger, ProviderGemini, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.generate(callCtx, prompt)
	})
	if err != nil {
		g.logger.Error().Err(err).Str("model", g.config.Model).Msg("Gemini generation failed")
		return "", err
	}

	g.logger.Debug().
		Str("model", g.config.Model).
		Int("response_length", len(text)).
		Dur("duration", time.Since(started)).
		Msg("Gemini generation completed")
	return text, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		MaxOutputTokens: g.config.MaxOutputTokens,
	}
	if g.config.TopK > 0 {
		config.TopK = genai.Ptr(g.config.TopK)
	}
	if g.config.TopP > 0 {
		config.TopP = genai.Ptr(g.config.TopP)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				response.WriteString(part.Text)
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from gemini")
	}
	return response.String(), nil
}
