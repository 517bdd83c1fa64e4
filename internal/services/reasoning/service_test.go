package reasoning

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/models"
)

// fakeLLM scripts the provider behind the reasoner
type fakeLLM struct {
	configured bool
	response   string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.response, f.err
}

func (f *fakeLLM) HealthCheck(context.Context) error { return nil }
func (f *fakeLLM) ProviderName() string              { return "fake" }
func (f *fakeLLM) IsConfigured() bool                { return f.configured }

func diffSummary() *models.DiffSummary {
	return &models.DiffSummary{
		PagesTested: 3,
		Visual:      &models.VisualSummary{PagesCompared: 3, AverageDiffPct: 0.1},
		Functional:  functionalSummary(0, 0),
	}
}

const cleanVerdict = `{
  "categories": [
    {"category": "visual", "severity": "none", "confidence": 0.9, "pass": true, "explanation": "No meaningful drift"},
    {"category": "functional", "severity": "none", "confidence": 0.9, "pass": true, "explanation": "All checks passed"}
  ],
  "overall": {"severity": "none", "confidence": 0.9, "pass": true, "explanation": "Clean migration"}
}`

func TestService_UsesLLMWhenConfigured(t *testing.T) {
	llm := &fakeLLM{configured: true, response: cleanVerdict}
	svc := NewService(llm, "", common.GetLogger())

	analysis, err := svc.Analyze(context.Background(), diffSummary())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonerSourceLLM, analysis.Source)
	assert.Equal(t, models.SeverityNone, analysis.Overall.Severity)
	assert.Equal(t, 1, llm.calls)
	assert.Contains(t, llm.lastPrompt, `"pagesTested": 3`)
	assert.Contains(t, llm.lastPrompt, "migration QA analyst")
}

func TestService_PromptTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	override := `system = "You review storefront cutovers for Initech."
instructions = "Assume pricing pages are frozen during the migration window."`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assessment.toml"), []byte(override), 0o644))

	llm := &fakeLLM{configured: true, response: cleanVerdict}
	svc := NewService(llm, dir, common.GetLogger())

	_, err := svc.Analyze(context.Background(), diffSummary())
	require.NoError(t, err)

	assert.Contains(t, llm.lastPrompt, "Initech")
	assert.Contains(t, llm.lastPrompt, "pricing pages are frozen")
	assert.NotContains(t, llm.lastPrompt, "migration QA analyst")
}

func TestService_FallsBackOnProviderError(t *testing.T) {
	llm := &fakeLLM{configured: true, err: errors.New("503 upstream")}
	svc := NewService(llm, "", common.GetLogger())

	analysis, err := svc.Analyze(context.Background(), diffSummary())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonerSourceRules, analysis.Source)
	assert.Len(t, analysis.Categories, 2)
	assert.Equal(t, 1, llm.calls)
}

func TestService_FallsBackOnGarbageResponse(t *testing.T) {
	llm := &fakeLLM{configured: true, response: "I am unable to answer in JSON today."}
	svc := NewService(llm, "", common.GetLogger())

	analysis, err := svc.Analyze(context.Background(), diffSummary())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonerSourceRules, analysis.Source)
}

func TestService_SkipsLLMWhenUnconfigured(t *testing.T) {
	llm := &fakeLLM{configured: false}
	svc := NewService(llm, "", common.GetLogger())

	analysis, err := svc.Analyze(context.Background(), diffSummary())
	require.NoError(t, err)

	assert.Equal(t, models.ReasonerSourceRules, analysis.Source)
	assert.Equal(t, 0, llm.calls, "unconfigured provider must not be called")
}

func TestService_CancelledContextDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &fakeLLM{configured: true, err: context.Canceled}
	svc := NewService(llm, "", common.GetLogger())

	_, err := svc.Analyze(ctx, diffSummary())
	require.ErrorIs(t, err, context.Canceled)
}
