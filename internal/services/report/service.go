package report

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// maxAffectedPages caps the page list on a finding; the full list lives
// in the stage result artifacts.
const maxAffectedPages = 10

// Service synthesizes the final migration report from the reasoning
// analysis and the diff summary, and commits it as JSON, Markdown, HTML,
// and PDF under the run's reports directory.
type Service struct {
	registry  interfaces.ArtifactRegistry
	transform interfaces.TransformService
	pdf       interfaces.PDFService
	logger    arbor.ILogger
}

var _ interfaces.ReportService = (*Service)(nil)

func NewService(registry interfaces.ArtifactRegistry, transform interfaces.TransformService, pdf interfaces.PDFService, logger arbor.ILogger) *Service {
	return &Service{
		registry:  registry,
		transform: transform,
		pdf:       pdf,
		logger:    logger,
	}
}

// Generate builds the report and commits reports/report.{json,md,html,pdf}.
// JSON and Markdown are the decision artifacts and their failures fail the
// stage; HTML and PDF are renderings of the Markdown and degrade to a
// warning.
func (s *Service) Generate(ctx context.Context, runID string, job *models.ComparisonJob, analysis *models.ReasoningAnalysis, summary *models.DiffSummary) (*models.MigrationReport, error) {
	if analysis == nil || summary == nil {
		return nil, fmt.Errorf("reasoning analysis and diff summary are required")
	}

	report := &models.MigrationReport{
		RunID:       runID,
		JobID:       job.ID,
		JobName:     job.Name,
		GeneratedAt: time.Now().UTC(),
		Risk:        scoreRisk(analysis),
		Findings:    buildFindings(analysis, summary),
		Analysis:    *analysis,
	}
	report.Executive = buildExecutive(report.Risk, analysis, summary)

	if _, err := s.registry.CommitJSON(ctx, runID, models.ArtifactTypeReport, "Migration report", "reports/report.json", report); err != nil {
		return nil, fmt.Errorf("failed to commit report.json: %w", err)
	}

	markdown := renderMarkdown(report)
	if _, err := s.registry.Commit(ctx, runID, models.ArtifactTypeReport, "Migration report (Markdown)", "reports/report.md", []byte(markdown)); err != nil {
		return nil, fmt.Errorf("failed to commit report.md: %w", err)
	}

	if html, err := s.transform.MarkdownToHTML(markdown); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("HTML report rendering failed")
	} else if _, err := s.registry.Commit(ctx, runID, models.ArtifactTypeReport, "Migration report (HTML)", "reports/report.html", []byte(html)); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to commit report.html")
	}

	title := fmt.Sprintf("Migration Report - %s", job.Name)
	if pdfData, err := s.pdf.RenderMarkdown(markdown, title); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("PDF report rendering failed")
	} else if _, err := s.registry.Commit(ctx, runID, models.ArtifactTypeReport, "Migration report (PDF)", "reports/report.pdf", pdfData); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to commit report.pdf")
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("decision", report.Executive.Decision).
		Float64("risk", report.Risk.Overall).
		Int("findings", len(report.Findings)).
		Msg("Migration report generated")

	return report, nil
}

// scoreRisk maps category severities onto the 0-100 ladder; the overall
// score is the mean across categories that actually produced a verdict.
func scoreRisk(analysis *models.ReasoningAnalysis) models.RiskScore {
	risk := models.RiskScore{Categories: make(map[string]int, len(analysis.Categories))}

	total := 0
	for _, c := range analysis.Categories {
		value := c.Severity.RiskValue()
		risk.Categories[c.Category] = value
		total += value
	}
	if len(analysis.Categories) > 0 {
		risk.Overall = float64(total) / float64(len(analysis.Categories))
	} else {
		// No category verdicts at all; score on the overall severity.
		risk.Overall = float64(analysis.Overall.Severity.RiskValue())
	}

	return risk
}

// decide applies the Go/No-Go gate. A failing reasoning verdict is
// always a no-go regardless of the numeric score.
func decide(risk models.RiskScore, analysis *models.ReasoningAnalysis) string {
	hasCritical := analysis.Overall.Severity == models.SeverityCritical
	for _, c := range analysis.Categories {
		if c.Severity == models.SeverityCritical {
			hasCritical = true
		}
	}

	switch {
	case risk.Overall >= 75 || !analysis.Overall.Pass:
		return models.DecisionNoGo
	case risk.Overall < 50 && !hasCritical:
		return models.DecisionGo
	default:
		return models.DecisionConditional
	}
}

func buildFindings(analysis *models.ReasoningAnalysis, summary *models.DiffSummary) []models.TechnicalFinding {
	var findings []models.TechnicalFinding

	for _, c := range analysis.Categories {
		if c.Pass {
			continue
		}

		finding := models.TechnicalFinding{
			Severity: c.Severity,
			Impact:   c.Explanation,
		}
		switch c.Category {
		case models.StageVisual:
			finding.Title = "Visual regressions on candidate pages"
			finding.Recommendation = "Review the committed diff images and heatmaps for the pages with the largest changed-pixel ratios"
			finding.Evidence = "visual-diffs/results.json and per-page diff/heatmap images"
		case models.StageFunctional:
			finding.Title = "Functional defects on candidate pages"
			finding.Recommendation = "Fix candidate broken links and JS errors before cutover"
			finding.Evidence = "functional-results.json and per-page HAR archives"
			if summary.Functional != nil {
				finding.AffectedPages = functionalAffectedPages(summary.Functional)
			}
		case models.StageData:
			finding.Title = "Content and data drift between sides"
			finding.Recommendation = "Verify table, pricing, and structured content on mismatching pages against the baseline"
			finding.Evidence = "data-results.json"
		default:
			finding.Title = fmt.Sprintf("Issues in %s checks", c.Category)
			finding.Recommendation = fmt.Sprintf("Investigate the %s findings", c.Category)
		}
		if len(c.KeyFindings) > 0 {
			finding.Evidence += "; " + c.KeyFindings[0]
		}

		findings = append(findings, finding)
	}

	return findings
}

// functionalAffectedPages lists candidate pages with any recorded issue
func functionalAffectedPages(result *models.FunctionalResult) []string {
	var pages []string
	for _, page := range result.Pages {
		if page.Side != models.SideCandidate {
			continue
		}
		hasIssue := page.Navigation.Error != "" || page.Navigation.Status >= 400 ||
			len(page.BrokenLinks) > 0 || len(page.JSErrors) > 0
		if !hasIssue {
			for _, form := range page.Forms {
				if form.Outcome == models.FormOutcomeError {
					hasIssue = true
					break
				}
			}
		}
		if hasIssue {
			pages = append(pages, page.PagePath)
			if len(pages) == maxAffectedPages {
				break
			}
		}
	}
	return pages
}

func buildExecutive(risk models.RiskScore, analysis *models.ReasoningAnalysis, summary *models.DiffSummary) models.ExecutiveSummary {
	metrics := models.KeyMetrics{PagesTested: summary.PagesTested}

	// Pages with issues are counted per stage; the union across stages is
	// unknown at summary granularity, so the largest stage count serves
	// as the lower bound.
	pagesWithIssues := 0
	if summary.Visual != nil {
		metrics.IssuesFound += summary.Visual.PagesWithDiffs
		metrics.CriticalIssues += summary.Visual.CriticalIssues
		pagesWithIssues = max(pagesWithIssues, summary.Visual.PagesWithDiffs)
	}
	if summary.Functional != nil {
		cand := summary.Functional.Candidate
		metrics.IssuesFound += cand.TotalBrokenLinks + cand.TotalJSErrors
		pagesWithIssues = max(pagesWithIssues, cand.PagesWithNavIssues+cand.PagesWithFormIssue+cand.PagesWithJSErrors)
	}
	if summary.Data != nil {
		metrics.IssuesFound += summary.Data.TotalFieldDiffs
		metrics.CriticalIssues += summary.Data.CriticalMismatches
		pagesWithIssues = max(pagesWithIssues, summary.Data.PagesWithMismatches)
	}

	if metrics.PagesTested > 0 {
		if pagesWithIssues > metrics.PagesTested {
			pagesWithIssues = metrics.PagesTested
		}
		metrics.PassRate = float64(metrics.PagesTested-pagesWithIssues) / float64(metrics.PagesTested)
	}

	decision := decide(risk, analysis)

	return models.ExecutiveSummary{
		Metrics:  metrics,
		Decision: decision,
		Summary:  executiveParagraph(decision, metrics, risk, analysis, summary),
	}
}

func executiveParagraph(decision string, metrics models.KeyMetrics, risk models.RiskScore, analysis *models.ReasoningAnalysis, summary *models.DiffSummary) string {
	verdict := ""
	switch decision {
	case models.DecisionGo:
		verdict = "The candidate site is ready to replace the baseline."
	case models.DecisionConditional:
		verdict = "The candidate site can proceed once the listed findings are reviewed."
	default:
		verdict = "The candidate site is not ready to replace the baseline."
	}

	text := fmt.Sprintf("%d pages were tested with %d issues found (%d critical), for an overall risk score of %.0f/100. %s",
		metrics.PagesTested, metrics.IssuesFound, metrics.CriticalIssues, risk.Overall, verdict)
	if len(summary.Unavailable) > 0 {
		text += fmt.Sprintf(" Note: %d comparison stage(s) failed to produce results.", len(summary.Unavailable))
	}
	if analysis.Overall.Explanation != "" {
		text += " " + analysis.Overall.Explanation
	}
	return text
}
