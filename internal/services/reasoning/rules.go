package reasoning

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// ruleConfidence is the fixed confidence attached to deterministic
// threshold verdicts.
const ruleConfidence = 0.75

// RuleAnalyzer is the deterministic fallback reasoner. Severity per
// category comes from fixed thresholds over the stage summaries; the
// overall severity is the max across categories.
type RuleAnalyzer struct {
	logger arbor.ILogger
}

var _ interfaces.Reasoner = (*RuleAnalyzer)(nil)

func NewRuleAnalyzer(logger arbor.ILogger) *RuleAnalyzer {
	return &RuleAnalyzer{logger: logger}
}

func (r *RuleAnalyzer) Name() string { return models.ReasonerSourceRules }

// Analyze grades each present diff category. Stages the TestMatrix
// disabled are absent from the output; stages that ran but failed raise
// the overall severity floor to medium, since a go decision cannot rest
// on missing evidence.
func (r *RuleAnalyzer) Analyze(ctx context.Context, summary *models.DiffSummary) (*models.ReasoningAnalysis, error) {
	if summary == nil {
		return nil, fmt.Errorf("diff summary is required")
	}

	analysis := &models.ReasoningAnalysis{Source: models.ReasonerSourceRules}

	if summary.Visual != nil {
		analysis.Categories = append(analysis.Categories, analyzeVisual(summary.Visual))
	}
	if summary.Functional != nil {
		analysis.Categories = append(analysis.Categories, analyzeFunctional(summary.Functional))
	}
	if summary.Data != nil {
		analysis.Categories = append(analysis.Categories, analyzeData(summary.Data))
	}

	analysis.Overall = r.rollup(summary, analysis.Categories)
	return analysis, nil
}

func analyzeVisual(v *models.VisualSummary) models.CategoryAnalysis {
	var severity models.Severity
	switch {
	case v.CriticalIssues > 0:
		severity = models.SeverityCritical
	case v.AverageDiffPct >= 10:
		severity = models.SeverityHigh
	case v.AverageDiffPct >= 3:
		severity = models.SeverityMedium
	case v.AverageDiffPct > 0.5:
		severity = models.SeverityLow
	default:
		severity = models.SeverityNone
	}

	analysis := models.CategoryAnalysis{
		Category:   models.StageVisual,
		Severity:   severity,
		Confidence: ruleConfidence,
		Pass:       passes(severity),
		Explanation: fmt.Sprintf("%d of %d pages show visual differences, averaging %.2f%% changed pixels",
			v.PagesWithDiffs, v.PagesCompared, v.AverageDiffPct),
	}
	if v.CriticalIssues > 0 {
		analysis.KeyFindings = append(analysis.KeyFindings,
			fmt.Sprintf("%d viewport comparison(s) classified critical (large diff with layout shift)", v.CriticalIssues))
	}
	if v.PagesWithDiffs > 0 && v.AverageDiffPct <= 0.5 {
		analysis.FalsePositives = append(analysis.FalsePositives,
			"Diff ratios this small are often font rendering or anti-aliasing noise")
	}
	return analysis
}

func analyzeFunctional(f *models.FunctionalResult) models.CategoryAnalysis {
	// The candidate side is the migration target; baseline issues are
	// pre-existing and only inform false-positive hints.
	issues := f.Candidate.TotalBrokenLinks + f.Candidate.TotalJSErrors

	var severity models.Severity
	switch {
	case issues >= 20:
		severity = models.SeverityCritical
	case issues >= 10:
		severity = models.SeverityHigh
	case issues >= 5:
		severity = models.SeverityMedium
	case issues >= 1:
		severity = models.SeverityLow
	default:
		severity = models.SeverityNone
	}

	analysis := models.CategoryAnalysis{
		Category:   models.StageFunctional,
		Severity:   severity,
		Confidence: ruleConfidence,
		Pass:       passes(severity),
		Explanation: fmt.Sprintf("Candidate shows %d broken links and %d JS errors across %d pages",
			f.Candidate.TotalBrokenLinks, f.Candidate.TotalJSErrors, f.Candidate.PagesChecked),
	}
	if f.Candidate.PagesWithNavIssues > 0 {
		analysis.KeyFindings = append(analysis.KeyFindings,
			fmt.Sprintf("%d candidate page(s) failed to navigate cleanly", f.Candidate.PagesWithNavIssues))
	}
	if f.Candidate.PagesWithFormIssue > 0 {
		analysis.KeyFindings = append(analysis.KeyFindings,
			fmt.Sprintf("%d candidate page(s) returned errors on form submission", f.Candidate.PagesWithFormIssue))
	}
	if baseIssues := f.Baseline.TotalBrokenLinks + f.Baseline.TotalJSErrors; baseIssues > 0 {
		analysis.FalsePositives = append(analysis.FalsePositives,
			fmt.Sprintf("Baseline already shows %d broken links and %d JS errors; matching candidate issues are pre-existing",
				f.Baseline.TotalBrokenLinks, f.Baseline.TotalJSErrors))
	}
	return analysis
}

func analyzeData(d *models.DataSummary) models.CategoryAnalysis {
	var severity models.Severity
	switch {
	case d.CriticalMismatches > 0:
		severity = models.SeverityHigh
	case d.TotalFieldDiffs >= 50:
		severity = models.SeverityHigh
	case d.TotalFieldDiffs >= 20:
		severity = models.SeverityMedium
	case d.TotalFieldDiffs > 0:
		severity = models.SeverityLow
	default:
		severity = models.SeverityNone
	}

	analysis := models.CategoryAnalysis{
		Category:   models.StageData,
		Severity:   severity,
		Confidence: ruleConfidence,
		Pass:       passes(severity),
		Explanation: fmt.Sprintf("%d of %d pages mismatch with %d field-level differences",
			d.PagesWithMismatches, d.PagesCompared, d.TotalFieldDiffs),
	}
	if d.CriticalMismatches > 0 {
		analysis.KeyFindings = append(analysis.KeyFindings,
			fmt.Sprintf("%d page(s) show table or pricing differences", d.CriticalMismatches))
	}
	if d.MissingDataPages > 0 {
		analysis.KeyFindings = append(analysis.KeyFindings,
			fmt.Sprintf("%d page(s) produced no extractable content on one side", d.MissingDataPages))
	}
	return analysis
}

func (r *RuleAnalyzer) rollup(summary *models.DiffSummary, categories []models.CategoryAnalysis) models.OverallAnalysis {
	severities := make([]models.Severity, 0, len(categories))
	var recommendations []string
	for _, c := range categories {
		severities = append(severities, c.Severity)
		if !c.Pass {
			recommendations = append(recommendations, recommendationFor(c.Category))
		}
	}

	overall := models.MaxSeverity(severities...)

	explanation := fmt.Sprintf("Rule-based analysis of %d categories across %d pages", len(categories), summary.PagesTested)
	if len(summary.Unavailable) > 0 {
		// Missing evidence must not produce a clean go.
		overall = models.MaxSeverity(overall, models.SeverityMedium)
		explanation += fmt.Sprintf("; %d stage(s) failed and produced no results", len(summary.Unavailable))
		for _, stage := range summary.Unavailable {
			recommendations = append(recommendations,
				fmt.Sprintf("Re-run after investigating the %s stage failure", stage))
		}
	}

	return models.OverallAnalysis{
		Severity:        overall,
		Confidence:      ruleConfidence,
		Pass:            passes(overall),
		Explanation:     explanation,
		Recommendations: recommendations,
	}
}

func passes(s models.Severity) bool {
	return s.Rank() < models.SeverityHigh.Rank()
}

func recommendationFor(category string) string {
	switch category {
	case models.StageVisual:
		return "Review the visual diff artifacts for the pages with the largest changed-pixel ratios"
	case models.StageFunctional:
		return "Fix candidate broken links and JS errors before cutover"
	case models.StageData:
		return "Verify table and pricing content on mismatching pages against the baseline"
	default:
		return fmt.Sprintf("Investigate the %s findings", category)
	}
}
