package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/paritas/internal/models"
)

// llmCategory mirrors CategoryAnalysis with lenient field types
type llmCategory struct {
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Confidence      float64  `json:"confidence"`
	Pass            *bool    `json:"pass"`
	Explanation     string   `json:"explanation"`
	KeyFindings     []string `json:"keyFindings"`
	FalsePositives  []string `json:"falsePositives"`
	ExpectedChanges []string `json:"expectedChanges"`
}

type llmOverall struct {
	Severity        string   `json:"severity"`
	Confidence      float64  `json:"confidence"`
	Pass            *bool    `json:"pass"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

type llmPayload struct {
	Categories []llmCategory `json:"categories"`
	Overall    llmOverall    `json:"overall"`
}

// parseLLMResponse extracts and decodes the reasoner's JSON verdict.
// Severities are normalized through ParseSeverity, so an off-vocabulary
// value degrades to medium instead of disappearing.
func parseLLMResponse(response string) (*models.ReasoningAnalysis, error) {
	raw, err := extractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var payload llmPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode reasoner JSON: %w", err)
	}
	if len(payload.Categories) == 0 || payload.Overall.Severity == "" {
		return nil, fmt.Errorf("reasoner JSON missing categories or overall verdict")
	}

	analysis := &models.ReasoningAnalysis{Source: models.ReasonerSourceLLM}
	for _, c := range payload.Categories {
		severity := models.ParseSeverity(c.Severity)
		analysis.Categories = append(analysis.Categories, models.CategoryAnalysis{
			Category:        strings.ToLower(strings.TrimSpace(c.Category)),
			Severity:        severity,
			Confidence:      clampConfidence(c.Confidence),
			Pass:            passOrDerived(c.Pass, severity),
			Explanation:     c.Explanation,
			KeyFindings:     c.KeyFindings,
			FalsePositives:  c.FalsePositives,
			ExpectedChanges: c.ExpectedChanges,
		})
	}

	overallSeverity := models.ParseSeverity(payload.Overall.Severity)
	analysis.Overall = models.OverallAnalysis{
		Severity:        overallSeverity,
		Confidence:      clampConfidence(payload.Overall.Confidence),
		Pass:            passOrDerived(payload.Overall.Pass, overallSeverity),
		Explanation:     payload.Overall.Explanation,
		Recommendations: payload.Overall.Recommendations,
	}

	return analysis, nil
}

// extractJSONObject returns the first balanced JSON object in s, so
// responses wrapped in prose or code fences still parse.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// passOrDerived honors an explicit pass flag and otherwise derives it
// from the severity, matching the rule analyzer's threshold.
func passOrDerived(pass *bool, severity models.Severity) bool {
	if pass != nil {
		return *pass
	}
	return passes(severity)
}
