package dataintegrity

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Service extracts structured content from both sides' HTML snapshots
// and diffs it: visible text, tables, pricing, and ld+json blocks.
type Service struct {
	registry interfaces.ArtifactRegistry
	logger   arbor.ILogger
}

var _ interfaces.DataIntegrityService = (*Service)(nil)

// NewService creates a data integrity service over the artifact registry
func NewService(registry interfaces.ArtifactRegistry, logger arbor.ILogger) *Service {
	return &Service{
		registry: registry,
		logger:   logger,
	}
}

// Compare runs the data integrity stage over the capture output. Pages
// that failed capture on either side are skipped; extraction trouble on
// a page marks it missing data rather than failing the stage.
func (s *Service) Compare(ctx context.Context, runID string, capture *models.CaptureResult) (*models.DataResult, error) {
	result := &models.DataResult{
		Pages: make([]models.PageDataResult, 0, len(capture.Pages)),
	}

	for _, pair := range capture.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pair.Baseline == nil || pair.Candidate == nil || pair.Baseline.Error != "" || pair.Candidate.Error != "" {
			s.logger.Debug().Str("page", pair.Match.Baseline.NormalizedPath).Msg("Skipping data comparison for failed capture")
			continue
		}

		page := s.comparePage(pair)
		result.Pages = append(result.Pages, page)

		result.Summary.PagesCompared++
		result.Summary.TotalFieldDiffs += page.FieldDiffs
		if page.Status == models.DataStatusMismatch {
			result.Summary.PagesWithMismatches++
		}
		if page.MissingData {
			result.Summary.MissingDataPages++
		}
		if hasTableDiffs(page.Tables) || countPricingDiffs(page.Pricing) > 0 {
			result.Summary.CriticalMismatches++
		}
	}

	if _, err := s.registry.CommitJSON(ctx, runID, models.ArtifactTypeOther, "Data integrity results", "data-results.json", result); err != nil {
		return nil, fmt.Errorf("failed to commit data results: %w", err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("pages", result.Summary.PagesCompared).
		Int("field_diffs", result.Summary.TotalFieldDiffs).
		Int("critical", result.Summary.CriticalMismatches).
		Msg("Data integrity comparison complete")

	return result, nil
}

func (s *Service) comparePage(pair models.CapturedPagePair) models.PageDataResult {
	page := models.PageDataResult{
		PagePath: pair.Match.Baseline.NormalizedPath,
	}

	baseContent, baseErr := s.extractSide(pair.Baseline)
	candContent, candErr := s.extractSide(pair.Candidate)

	if baseErr != nil || candErr != nil {
		page.MissingData = true
		page.Status = models.DataStatusMismatch
		if baseErr != nil {
			page.ExtractError = fmt.Sprintf("baseline: %v", baseErr)
		} else {
			page.ExtractError = fmt.Sprintf("candidate: %v", candErr)
		}
		s.logger.Warn().Str("page", page.PagePath).Str("error", page.ExtractError).Msg("Data extraction failed")
		return page
	}

	if baseContent.VisibleText == "" || candContent.VisibleText == "" {
		page.MissingData = true
	}

	page.Text = compareText(baseContent.VisibleText, candContent.VisibleText)
	page.Tables = compareTables(baseContent.Tables, candContent.Tables)
	page.Pricing = comparePricing(baseContent.Pricing, candContent.Pricing)
	page.JSON = compareStructuredData(baseContent.StructuredData, candContent.StructuredData)

	page.FieldDiffs = countCellDiffs(page.Tables) + countPricingDiffs(page.Pricing) + len(page.JSON)
	page.Status = pageStatus(page)

	return page
}

// extractSide reads the side's HTML snapshot from the artifact store and
// extracts its content. The snapshot is written once per page, on the
// first viewport, so the first viewport carrying an HTML path wins.
func (s *Service) extractSide(capture *models.PageCapture) (*models.ExtractedContent, error) {
	var logicalPath string
	for _, vc := range capture.Viewports {
		if vc.HTMLPath != "" {
			logicalPath = vc.HTMLPath
			break
		}
	}
	if logicalPath == "" {
		return nil, fmt.Errorf("no HTML snapshot captured")
	}

	absPath, err := s.registry.Resolve(logicalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HTML snapshot: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML snapshot: %w", err)
	}

	return extractContent(string(data))
}

// pageStatus grades one page: match needs high text similarity and zero
// field diffs; partial tolerates text drift and JSON diffs but not table
// or pricing diffs; everything else is a mismatch.
func pageStatus(page models.PageDataResult) string {
	structuredDiffs := countCellDiffs(page.Tables) + countPricingDiffs(page.Pricing) + len(page.JSON)

	switch {
	case page.MissingData:
		return models.DataStatusMismatch
	case page.Text.Similarity > 0.9 && structuredDiffs == 0:
		return models.DataStatusMatch
	case page.Text.Similarity > 0.5 && !hasTableDiffs(page.Tables) && countPricingDiffs(page.Pricing) == 0:
		return models.DataStatusPartial
	default:
		return models.DataStatusMismatch
	}
}

func countCellDiffs(tables []models.TableComparison) int {
	total := 0
	for _, t := range tables {
		total += len(t.CellDiffs)
	}
	return total
}

func hasTableDiffs(tables []models.TableComparison) bool {
	for _, t := range tables {
		if t.SizeMismatch || len(t.CellDiffs) > 0 {
			return true
		}
	}
	return false
}

// countPricingDiffs counts pricing entries that did not match; matched
// pairs are kept in the result purely as verification evidence.
func countPricingDiffs(pricing []models.PricingDiff) int {
	total := 0
	for _, p := range pricing {
		if p.Status != models.DiffStatusMatch {
			total++
		}
	}
	return total
}
