package llm

import (
	"context"

	"github.com/ternarybob/grantpost/internal/interfaces"
)

const ProviderNone = "none"

// NoopGenerator reports itself unavailable so enrichment skips generation
type NoopGenerator struct{}

func (NoopGenerator) Name() string { return ProviderNone }

func (NoopGenerator) Available() bool { return false }

func (NoopGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", interfaces.ErrGeneratorUnavailable
}
