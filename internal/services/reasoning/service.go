package reasoning

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
	"github.com/ternarybob/paritas/internal/templates"
)

// LLMReasoner asks the configured provider to judge the diff summary
type LLMReasoner struct {
	llm          interfaces.LLMService
	templatesDir string
	logger       arbor.ILogger
}

var _ interfaces.Reasoner = (*LLMReasoner)(nil)

func NewLLMReasoner(llm interfaces.LLMService, templatesDir string, logger arbor.ILogger) *LLMReasoner {
	return &LLMReasoner{llm: llm, templatesDir: templatesDir, logger: logger}
}

func (r *LLMReasoner) Name() string { return models.ReasonerSourceLLM }

// Configured reports whether a provider is available to call
func (r *LLMReasoner) Configured() bool { return r.llm.IsConfigured() }

func (r *LLMReasoner) Analyze(ctx context.Context, summary *models.DiffSummary) (*models.ReasoningAnalysis, error) {
	if summary == nil {
		return nil, fmt.Errorf("diff summary is required")
	}
	if !r.llm.IsConfigured() {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	tpl, err := templates.GetTemplate(assessmentTemplate, r.templatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}

	prompt, err := buildPrompt(tpl, summary)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	response, err := r.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("LLM completion failed: %w", err)
	}

	analysis, err := parseLLMResponse(response)
	if err != nil {
		return nil, fmt.Errorf("unusable LLM response: %w", err)
	}

	r.logger.Info().
		Str("provider", r.llm.ProviderName()).
		Str("severity", string(analysis.Overall.Severity)).
		Int("categories", len(analysis.Categories)).
		Dur("duration", time.Since(startTime)).
		Msg("LLM reasoning complete")

	return analysis, nil
}

// Service is the reasoning stage: LLM first when a provider is
// configured, rule-based analysis otherwise or on any LLM failure.
type Service struct {
	llm    *LLMReasoner
	rules  *RuleAnalyzer
	logger arbor.ILogger
}

var (
	_ interfaces.Reasoner         = (*Service)(nil)
	_ interfaces.ReasoningService = (*Service)(nil)
)

func NewService(llm interfaces.LLMService, templatesDir string, logger arbor.ILogger) *Service {
	return &Service{
		llm:    NewLLMReasoner(llm, templatesDir, logger),
		rules:  NewRuleAnalyzer(logger),
		logger: logger,
	}
}

func (s *Service) Name() string { return models.StageReasoning }

func (s *Service) Analyze(ctx context.Context, summary *models.DiffSummary) (*models.ReasoningAnalysis, error) {
	if s.llm.Configured() {
		analysis, err := s.llm.Analyze(ctx, summary)
		if err == nil {
			return analysis, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("LLM reasoning failed, falling back to rule-based analyzer")
	}
	return s.rules.Analyze(ctx, summary)
}
