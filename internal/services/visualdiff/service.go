package visualdiff

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Service compares baseline and candidate screenshots viewport by
// viewport: pixel diff with anti-alias tolerance, heatmap, layout-shift
// scan, and a severity grade per the fixed classification table.
type Service struct {
	registry       interfaces.ArtifactRegistry
	pixelThreshold float64
	gridSize       int
	minShiftPixels int
	logger         arbor.ILogger
}

var _ interfaces.VisualDiffService = (*Service)(nil)

// NewService creates a visual diff service from the visual config section
func NewService(registry interfaces.ArtifactRegistry, cfg common.VisualConfig, logger arbor.ILogger) *Service {
	threshold := cfg.PixelThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.1
	}
	gridSize := cfg.GridSize
	if gridSize <= 0 {
		gridSize = 10
	}
	minShift := cfg.MinShiftPixels
	if minShift <= 0 {
		minShift = 5
	}

	return &Service{
		registry:       registry,
		pixelThreshold: threshold,
		gridSize:       gridSize,
		minShiftPixels: minShift,
		logger:         logger,
	}
}

// Compare diffs every captured page pair. Pages that failed capture on
// either side are skipped; individual viewport trouble is recorded on
// the viewport entry and never fails the stage.
func (s *Service) Compare(ctx context.Context, runID string, capture *models.CaptureResult) (*models.VisualResult, error) {
	result := &models.VisualResult{
		Pages: make([]models.PageVisualResult, 0, len(capture.Pages)),
		Summary: models.VisualSummary{
			SeverityCounts:  map[models.Severity]int{},
			HighestSeverity: models.SeverityNone,
		},
	}

	var ratioSum float64
	var ratioCount int

	for _, pair := range capture.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pair.Baseline == nil || pair.Candidate == nil || pair.Baseline.Error != "" || pair.Candidate.Error != "" {
			continue
		}

		page := models.PageVisualResult{
			PagePath: pair.Match.Baseline.NormalizedPath,
			Severity: models.SeverityNone,
		}

		candViewports := make(map[string]models.ViewportCapture, len(pair.Candidate.Viewports))
		for _, vc := range pair.Candidate.Viewports {
			candViewports[vc.Viewport.Name] = vc
		}

		for _, baseVC := range pair.Baseline.Viewports {
			candVC, ok := candViewports[baseVC.Viewport.Name]
			if !ok {
				continue
			}

			diff := s.compareViewport(ctx, runID, pair.Baseline.SanitizedPath, baseVC, candVC)
			if diff == nil {
				continue
			}
			page.Viewports = append(page.Viewports, *diff)
			if diff.Error == "" {
				ratioSum += diff.DiffRatio
				ratioCount++
				page.Severity = models.MaxSeverity(page.Severity, diff.Severity)
			}
		}

		if len(page.Viewports) == 0 {
			continue
		}

		result.Pages = append(result.Pages, page)
		result.Summary.PagesCompared++
		result.Summary.SeverityCounts[page.Severity]++
		if pageHasDiffs(page) {
			result.Summary.PagesWithDiffs++
		}
		if page.Severity == models.SeverityCritical {
			result.Summary.CriticalIssues++
		}
		result.Summary.HighestSeverity = models.MaxSeverity(result.Summary.HighestSeverity, page.Severity)
	}

	if ratioCount > 0 {
		result.Summary.AverageDiffPct = ratioSum / float64(ratioCount) * 100
	}

	if _, err := s.registry.CommitJSON(ctx, runID, models.ArtifactTypeOther, "Visual diff results", "visual-diffs/results.json", result); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to commit visual results")
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("pages_compared", result.Summary.PagesCompared).
		Int("pages_with_diffs", result.Summary.PagesWithDiffs).
		Str("highest_severity", string(result.Summary.HighestSeverity)).
		Msg("Visual diff stage completed")

	return result, nil
}

// compareViewport diffs one viewport pair and commits the diff and
// heatmap images. Returns nil when neither side has a screenshot.
func (s *Service) compareViewport(ctx context.Context, runID, sanitized string, baseVC, candVC models.ViewportCapture) *models.ViewportVisualDiff {
	out := &models.ViewportVisualDiff{Viewport: baseVC.Viewport.Name}

	if baseVC.ScreenshotPath == "" || candVC.ScreenshotPath == "" {
		out.Error = "screenshot missing on one side"
		return out
	}

	baseImg, err := s.loadScreenshot(baseVC.ScreenshotPath)
	if err != nil {
		out.Error = fmt.Sprintf("baseline screenshot unreadable: %v", err)
		return out
	}
	candImg, err := s.loadScreenshot(candVC.ScreenshotPath)
	if err != nil {
		out.Error = fmt.Sprintf("candidate screenshot unreadable: %v", err)
		return out
	}

	baseline := toRGBA(baseImg)
	candidate := toRGBA(candImg)

	if !baseline.Bounds().Eq(candidate.Bounds()) {
		candidate = resample(candidate, baseline.Bounds().Dx(), baseline.Bounds().Dy())
		out.Resampled = true
	}

	diff := compareImages(baseline, candidate, s.pixelThreshold)
	out.DiffPixels = diff.diffPixels
	out.TotalPixels = diff.totalPixels()
	out.DiffRatio = diff.ratio()

	regions, maxShift := detectLayoutShift(diff, s.gridSize, s.minShiftPixels)
	out.Regions = regions
	out.HasLayoutShift = len(regions) > 0
	out.ShiftMagnitude = maxShift
	out.Severity = classifySeverity(out.DiffRatio, out.HasLayoutShift)

	prefix := fmt.Sprintf("visual-diffs/%s", sanitized)
	if data, err := encodePNG(diff.diffImage); err == nil {
		relPath := fmt.Sprintf("%s/%s-diff.png", prefix, baseVC.Viewport.Name)
		label := fmt.Sprintf("%s %s visual diff", sanitized, baseVC.Viewport.Name)
		if artifact, err := s.registry.Commit(ctx, runID, models.ArtifactTypeScreenshot, label, relPath, data); err == nil {
			out.DiffImagePath = artifact.Path
		} else {
			s.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to commit diff image")
		}
	}
	if data, err := encodePNG(diff.heatmap); err == nil {
		relPath := fmt.Sprintf("%s/%s-heatmap.png", prefix, baseVC.Viewport.Name)
		label := fmt.Sprintf("%s %s diff heatmap", sanitized, baseVC.Viewport.Name)
		if artifact, err := s.registry.Commit(ctx, runID, models.ArtifactTypeScreenshot, label, relPath, data); err == nil {
			out.HeatmapPath = artifact.Path
		} else {
			s.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to commit heatmap")
		}
	}

	return out
}

func (s *Service) loadScreenshot(logicalPath string) (image.Image, error) {
	physical, err := s.registry.Resolve(logicalPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(physical)
	if err != nil {
		return nil, err
	}
	return decodePNG(data)
}

func pageHasDiffs(page models.PageVisualResult) bool {
	for _, vc := range page.Viewports {
		if vc.DiffPixels > 0 || vc.HasLayoutShift {
			return true
		}
	}
	return false
}
