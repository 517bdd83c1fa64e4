package interfaces

import (
	"context"

	"github.com/ternarybob/paritas/internal/models"
)

// CrawlService discovers pages on both sites and matches them
type CrawlService interface {
	// Discover crawls baseline and candidate per the job's CrawlConfig
	// and returns the match result plus the per-site crawl outputs.
	Discover(ctx context.Context, job *models.ComparisonJob) (*models.PageMatchResult, *models.CrawlSiteResult, *models.CrawlSiteResult, error)
}

// CaptureService drives the browser over every matched page
type CaptureService interface {
	// Capture visits each matched page on both sides across the
	// configured viewports, writing evidence artifacts as it goes.
	// Baseline is always captured before candidate.
	Capture(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate BrowserContext) (*models.CaptureResult, error)
}

// VisualDiffService compares screenshots pairwise
type VisualDiffService interface {
	Compare(ctx context.Context, runID string, capture *models.CaptureResult) (*models.VisualResult, error)
}

// FunctionalService exercises forms, links, and runtime behavior
type FunctionalService interface {
	Check(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate BrowserContext) (*models.FunctionalResult, error)
}

// DataIntegrityService compares structured and textual content
type DataIntegrityService interface {
	Compare(ctx context.Context, runID string, capture *models.CaptureResult) (*models.DataResult, error)
}

// ReasoningService classifies the diff summary into severities and a
// verdict. Implementations must always return an analysis on a live
// context; the LLM-backed service falls back to rules internally.
type ReasoningService interface {
	Analyze(ctx context.Context, summary *models.DiffSummary) (*models.ReasoningAnalysis, error)
}

// ReportService synthesizes the final report from the reasoning output
// and the diff results
type ReportService interface {
	Generate(ctx context.Context, runID string, job *models.ComparisonJob, analysis *models.ReasoningAnalysis, summary *models.DiffSummary) (*models.MigrationReport, error)
}
