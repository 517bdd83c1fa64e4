package functional

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Service exercises every matched page on both sides: navigation record,
// heuristic form fill and submit, broken-link probes over same-origin
// anchors, JS error collection, and a HAR per page. Pages on the
// baseline establish what was already broken before the migration.
type Service struct {
	registry interfaces.ArtifactRegistry
	logger   arbor.ILogger

	graceDelay      time.Duration
	responseTimeout time.Duration
	pollInterval    time.Duration
}

var _ interfaces.FunctionalService = (*Service)(nil)

// NewService creates the functional QA service
func NewService(registry interfaces.ArtifactRegistry, logger arbor.ILogger) *Service {
	return &Service{
		registry:        registry,
		logger:          logger,
		graceDelay:      formGraceDelay,
		responseTimeout: formResponseTimeout,
		pollInterval:    formPollInterval,
	}
}

// Check runs functional QA over the matched pages, baseline side first.
// Per-page trouble is recorded in the page result; returned errors are
// context cancellation or losing the browser.
func (s *Service) Check(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate interfaces.BrowserContext) (*models.FunctionalResult, error) {
	result := &models.FunctionalResult{Pages: make([]models.PageFunctionalResult, 0, len(matches)*2)}

	followExternal := job != nil && job.CrawlConfig.FollowExternal

	basePages, err := s.checkSide(ctx, runID, models.SideBaseline, baseline, baselineDescriptors(matches), followExternal)
	if err != nil {
		return nil, err
	}
	result.Pages = append(result.Pages, basePages...)

	candPages, err := s.checkSide(ctx, runID, models.SideCandidate, candidate, candidateDescriptors(matches), followExternal)
	if err != nil {
		return nil, err
	}
	result.Pages = append(result.Pages, candPages...)

	result.Baseline = summarize(basePages)
	result.Candidate = summarize(candPages)

	if _, err := s.registry.CommitJSON(ctx, runID, models.ArtifactTypeOther, "Functional QA results", "functional-results.json", result); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to commit functional results")
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("pages_checked", result.Baseline.PagesChecked+result.Candidate.PagesChecked).
		Int("candidate_broken_links", result.Candidate.TotalBrokenLinks).
		Int("candidate_js_errors", result.Candidate.TotalJSErrors).
		Msg("Functional QA stage completed")

	return result, nil
}

func (s *Service) checkSide(ctx context.Context, runID string, side models.Side, browser interfaces.BrowserContext, descriptors []models.PageDescriptor, followExternal bool) ([]models.PageFunctionalResult, error) {
	if len(descriptors) == 0 {
		return nil, nil
	}

	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s page: %w", side, err)
	}
	defer page.Close()

	results := make([]models.PageFunctionalResult, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		pageResult, err := s.checkPage(ctx, runID, side, page, descriptor, followExternal)
		if err != nil {
			return results, err
		}
		results = append(results, *pageResult)
	}
	return results, nil
}

// checkPage runs the full functional pass over one page on one side.
func (s *Service) checkPage(ctx context.Context, runID string, side models.Side, page interfaces.PageSession, descriptor models.PageDescriptor, followExternal bool) (*models.PageFunctionalResult, error) {
	result := &models.PageFunctionalResult{
		Side:     side,
		PagePath: descriptor.NormalizedPath,
		PageURL:  descriptor.URL,
	}
	startedAt := time.Now()

	nav, err := page.Navigate(ctx, descriptor.URL)
	if err != nil {
		return nil, err
	}
	result.Navigation = *nav

	var harEvents []models.NetworkEvent
	harEvents = append(harEvents, page.NetworkEvents()...)
	page.ConsoleMessages() // console output is capture evidence; keep the shared session clean

	if nav.Error == "" {
		forms, err := s.exerciseForms(ctx, page, descriptor.URL, &harEvents)
		if err != nil {
			return nil, err
		}
		result.Forms = forms
	}

	// Everything observed so far belongs to this page; the link probes
	// below navigate elsewhere and their evidence is discarded.
	harEvents = append(harEvents, page.NetworkEvents()...)
	result.JSErrors = page.JSErrors()

	if nav.Error == "" {
		broken, err := s.probeLinks(ctx, page, descriptor.URL, followExternal)
		if err != nil {
			return nil, err
		}
		result.BrokenLinks = broken
	}

	har := buildHAR(descriptor.URL, result.Navigation, harEvents, startedAt)
	sanitized := common.SanitizePagePath(descriptor.NormalizedPath)
	relPath := fmt.Sprintf("har/%s/%s.har", side, sanitized)
	label := fmt.Sprintf("%s %s HAR", side, descriptor.NormalizedPath)
	if artifact, err := s.registry.CommitJSON(ctx, runID, models.ArtifactTypeOther, label, relPath, har); err == nil {
		result.HARPath = artifact.Path
	} else {
		s.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to commit HAR")
	}

	return result, nil
}

func baselineDescriptors(matches []models.MatchedPage) []models.PageDescriptor {
	out := make([]models.PageDescriptor, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Baseline)
	}
	return out
}

func candidateDescriptors(matches []models.MatchedPage) []models.PageDescriptor {
	out := make([]models.PageDescriptor, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Candidate)
	}
	return out
}

// summarize rolls one side's page results into the counts the reasoner
// thresholds consume.
func summarize(pages []models.PageFunctionalResult) models.FunctionalSideSummary {
	summary := models.FunctionalSideSummary{PagesChecked: len(pages)}
	for _, page := range pages {
		if page.Navigation.Error != "" || page.Navigation.Status >= 400 {
			summary.PagesWithNavIssues++
		}
		for _, form := range page.Forms {
			if form.Outcome == models.FormOutcomeError {
				summary.PagesWithFormIssue++
				break
			}
		}
		summary.TotalBrokenLinks += len(page.BrokenLinks)
		summary.TotalJSErrors += len(page.JSErrors)
		if len(page.JSErrors) > 0 {
			summary.PagesWithJSErrors++
		}
	}
	return summary
}
