package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// ClaudeService implements the completion surface over the Anthropic API
type ClaudeService struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	retry       retryConfig
	logger      arbor.ILogger
}

var _ interfaces.LLMService = (*ClaudeService)(nil)

// NewClaudeService creates an Anthropic-backed LLM service. The endpoint
// override supports proxies and compatible gateways; the deployment name
// maps to the model.
func NewClaudeService(cfg common.LLMConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set LLM_API_KEY or llm.api_key in config)")
	}

	model := cfg.Deployment
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	timeout, err := parseTimeout(cfg.Timeout)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	service := &ClaudeService{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		retry:       defaultRetryConfig(),
		logger:      logger,
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", timeout).
		Float64("temperature", cfg.Temperature).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Complete sends a single-turn prompt and returns the raw text response
func (s *ClaudeService) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	response, err := withRetry(timeoutCtx, s.retry, s.logger, func() (string, error) {
		return s.generateCompletion(timeoutCtx, prompt)
	})
	if err != nil {
		s.logger.Error().Err(err).Int("prompt_length", len(prompt)).Msg("Claude completion failed")
		return "", fmt.Errorf("claude completion failed: %w", err)
	}

	s.logger.Debug().
		Int("prompt_length", len(prompt)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion succeeded")

	return response, nil
}

// HealthCheck performs a minimal round-trip against the API
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := s.generateCompletion(probeCtx, "ping")
	if err != nil {
		return fmt.Errorf("claude health check failed: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return fmt.Errorf("claude health check returned empty response")
	}
	return nil
}

func (s *ClaudeService) ProviderName() string { return ProviderAnthropic }

func (s *ClaudeService) IsConfigured() bool { return true }

func (s *ClaudeService) generateCompletion(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.temperature > 0 {
		params.Temperature = anthropic.Float(s.temperature)
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no text content in Anthropic response")
	}
	return response.String(), nil
}
