package report

import (
	"fmt"
	"strings"

	"github.com/ternarybob/paritas/internal/models"
)

// renderMarkdown produces the human-readable report. The HTML and PDF
// artifacts are rendered from this output.
func renderMarkdown(report *models.MigrationReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Migration Report - %s\n\n", report.JobName)
	fmt.Fprintf(&b, "- **Run:** %s\n", report.RunID)
	fmt.Fprintf(&b, "- **Job:** %s\n", report.JobID)
	fmt.Fprintf(&b, "- **Generated:** %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- **Decision:** %s\n\n", decisionLabel(report.Executive.Decision))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(report.Executive.Summary)
	b.WriteString("\n\n")

	m := report.Executive.Metrics
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Pages tested | %d |\n", m.PagesTested)
	fmt.Fprintf(&b, "| Issues found | %d |\n", m.IssuesFound)
	fmt.Fprintf(&b, "| Critical issues | %d |\n", m.CriticalIssues)
	fmt.Fprintf(&b, "| Pass rate | %.0f%% |\n\n", m.PassRate*100)

	b.WriteString("## Risk Assessment\n\n")
	fmt.Fprintf(&b, "Overall risk: **%.0f/100**\n\n", report.Risk.Overall)
	if len(report.Analysis.Categories) > 0 {
		b.WriteString("| Category | Severity | Risk | Verdict |\n")
		b.WriteString("|----------|----------|------|---------|\n")
		for _, c := range report.Analysis.Categories {
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n",
				titleCase(c.Category), c.Severity, report.Risk.Categories[c.Category], passLabel(c.Pass))
		}
		b.WriteString("\n")
	}

	if len(report.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for i, f := range report.Findings {
			fmt.Fprintf(&b, "### %d. %s\n\n", i+1, f.Title)
			fmt.Fprintf(&b, "- **Severity:** %s\n", f.Severity)
			if f.Impact != "" {
				fmt.Fprintf(&b, "- **Impact:** %s\n", f.Impact)
			}
			if f.Recommendation != "" {
				fmt.Fprintf(&b, "- **Recommendation:** %s\n", f.Recommendation)
			}
			if f.Evidence != "" {
				fmt.Fprintf(&b, "- **Evidence:** %s\n", f.Evidence)
			}
			if len(f.AffectedPages) > 0 {
				fmt.Fprintf(&b, "- **Affected pages:** %s\n", strings.Join(f.AffectedPages, ", "))
			}
			b.WriteString("\n")
		}
	}

	if len(report.Analysis.Categories) > 0 {
		b.WriteString("## Category Analysis\n\n")
		for _, c := range report.Analysis.Categories {
			fmt.Fprintf(&b, "### %s\n\n", titleCase(c.Category))
			fmt.Fprintf(&b, "%s (severity %s, confidence %.2f)\n\n", c.Explanation, c.Severity, c.Confidence)
			writeList(&b, "Key findings", c.KeyFindings)
			writeList(&b, "Likely false positives", c.FalsePositives)
			writeList(&b, "Expected changes", c.ExpectedChanges)
		}
	}

	if len(report.Analysis.Overall.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, r := range report.Analysis.Overall.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\nAnalysis source: %s (confidence %.2f)\n",
		report.Analysis.Source, report.Analysis.Overall.Confidence)

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func decisionLabel(decision string) string {
	switch decision {
	case models.DecisionGo:
		return "GO"
	case models.DecisionNoGo:
		return "NO-GO"
	default:
		return "CONDITIONAL GO"
	}
}

func passLabel(pass bool) string {
	if pass {
		return "pass"
	}
	return "fail"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
