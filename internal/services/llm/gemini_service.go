package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiService implements the completion surface over the Google Gemini API
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float64
	timeout     time.Duration
	retry       retryConfig
	logger      arbor.ILogger
}

var _ interfaces.LLMService = (*GeminiService)(nil)

// NewGeminiService creates a Gemini-backed LLM service
func NewGeminiService(ctx context.Context, cfg common.LLMConfig, logger arbor.ILogger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set LLM_API_KEY or llm.api_key in config)")
	}

	model := cfg.Deployment
	if model == "" {
		model = defaultGeminiModel
	}
	timeout, err := parseTimeout(cfg.Timeout)
	if err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.Endpoint
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		retry:       defaultRetryConfig(),
		logger:      logger,
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", timeout).
		Float64("temperature", cfg.Temperature).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Complete sends a single-turn prompt and returns the raw text response
func (s *GeminiService) Complete(ctx context.Context, prompt string) (string, error) {
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
		s.logger.Error().Err(err).Int("prompt_length", len(prompt)).Msg("Gemini completion failed")
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	s.logger.Debug().
		Int("prompt_length", len(prompt)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini completion succeeded")

	return response, nil
}

// HealthCheck performs a minimal round-trip against the API
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := s.generateCompletion(probeCtx, "ping")
	if err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	if strings.TrimSpace(response) == "" {
		return fmt.Errorf("gemini health check returned empty response")
	}
	return nil
}

func (s *GeminiService) ProviderName() string { return ProviderGemini }

func (s *GeminiService) IsConfigured() bool { return true }

func (s *GeminiService) generateCompletion(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.temperature)),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	// Candidates can carry empty parts; take the first that yields text.
	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no text content in Gemini response")
	}
	return response.String(), nil
}
