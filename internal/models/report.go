package models

import "time"

// Go/No-Go decisions
const (
	DecisionGo          = "go"
	DecisionConditional = "conditional"
	DecisionNoGo        = "no-go"
)

// RiskScore maps severities onto a 0-100 scale. Per-category values come
// from the severity ladder {0,25,50,75,100}; Overall is the mean across
// categories that actually ran.
type RiskScore struct {
	Overall    float64        `json:"overall"`
	Categories map[string]int `json:"categories"`
}

// TechnicalFinding is one actionable issue derived from a failing category
type TechnicalFinding struct {
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Impact         string   `json:"impact"`
	Recommendation string   `json:"recommendation"`
	AffectedPages  []string `json:"affectedPages,omitempty"`
	Evidence       string   `json:"evidence,omitempty"`
}

// KeyMetrics are the headline numbers in the executive summary
type KeyMetrics struct {
	PagesTested    int     `json:"pagesTested"`
	IssuesFound    int     `json:"issuesFound"`
	CriticalIssues int     `json:"criticalIssues"`
	PassRate       float64 `json:"passRate"` // 0..1, pages without issues over pages tested
}

// ExecutiveSummary is the Go/No-Go verdict with its supporting metrics
type ExecutiveSummary struct {
	Metrics  KeyMetrics `json:"keyMetrics"`
	Decision string     `json:"decision"` // go, conditional, no-go
	Summary  string     `json:"summary"`
}

// MigrationReport is the final run output, written as report.json and
// rendered to Markdown under the run's reports directory.
type MigrationReport struct {
	RunID       string             `json:"runId"`
	JobID       string             `json:"jobId"`
	JobName     string             `json:"jobName"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Risk        RiskScore          `json:"risk"`
	Findings    []TechnicalFinding `json:"findings"`
	Executive   ExecutiveSummary   `json:"executive"`
	Analysis    ReasoningAnalysis  `json:"analysis"`
}
