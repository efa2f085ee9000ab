// Package llm provides the text generators used to enrich grant records.
package llm

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
)

// NewGenerator returns the configured provider. A provider that cannot be
// initialised degrades to NoopGenerator with a warning.
func NewGenerator(ctx context.Context, config *common.Config, logger arbor.ILogger) interfaces.TextGenerator {
	switch config.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		generator, err := NewGemini(ctx, &config.Gemini, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Gemini unavailable, enrichment will skip generation")
			return NoopGenerator{}
		}
		return generator

	case common.LLMProviderClaude:
		generator, err := NewClaude(&config.Claude, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Claude unavailable, enrichment will skip generation")
			return NoopGenerator{}
		}
		return generator

	default:
		logger.Info().Msg("No text generator configured")
		return NoopGenerator{}
	}
}
