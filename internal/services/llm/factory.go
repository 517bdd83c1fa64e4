package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
)

// Provider names accepted in config
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// NewService creates the configured LLM provider. An absent API key is
// not an error: it yields a disabled service, and reasoning falls back
// to the rule-based analyzer.
func NewService(ctx context.Context, cfg common.LLMConfig, logger arbor.ILogger) (interfaces.LLMService, error) {
	if cfg.APIKey == "" {
		logger.Info().Msg("No LLM API key configured, reasoning will use the rule-based analyzer")
		return Disabled{}, nil
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderAnthropic:
		return NewClaudeService(cfg, logger)
	case ProviderGemini:
		return NewGeminiService(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider '%s': must be '%s' or '%s'", cfg.Provider, ProviderAnthropic, ProviderGemini)
	}
}

// Disabled is the stand-in service when no provider is configured
type Disabled struct{}

var _ interfaces.LLMService = Disabled{}

func (Disabled) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("no LLM provider configured")
}

func (Disabled) HealthCheck(context.Context) error {
	return fmt.Errorf("no LLM provider configured")
}

func (Disabled) ProviderName() string { return "none" }

func (Disabled) IsConfigured() bool { return false }
