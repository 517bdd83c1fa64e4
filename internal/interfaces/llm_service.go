package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// LLMService - provider-agnostic completion surface over Anthropic or
// Gemini. IsConfigured reports whether a provider is usable; when it is
// not, reasoning falls back to the rule-based analyzer.
type LLMService interface {
	// Complete sends a prompt and returns the raw text response.
	Complete(ctx context.Context, prompt string) (string, error)

	// HealthCheck performs a minimal round-trip to the provider.
	HealthCheck(ctx context.Context) error

	ProviderName() string
	IsConfigured() bool
}

// Reasoner classifies a diff summary into a severity-tagged analysis.
// The LLM-backed and rule-based implementations share this shape so the
// pipeline can fall back transparently.
type Reasoner interface {
	Analyze(ctx context.Context, summary *models.DiffSummary) (*models.ReasoningAnalysis, error)
	Name() string
}
