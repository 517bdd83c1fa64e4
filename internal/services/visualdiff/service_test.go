package visualdiff

import (
	"context"
	"fmt"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/models"
	"github.com/ternarybob/paritas/internal/storage/artifacts"
	"github.com/ternarybob/paritas/internal/storage/snapshot"
)

func newTestService(t *testing.T) (*Service, *artifacts.Registry) {
	t.Helper()
	store, err := snapshot.NewStore(common.GetLogger(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Update(context.Background(), func(s *models.StorageSnapshot) error {
		s.Runs = append(s.Runs, &models.Run{ID: "run_1", JobID: "job_1", Status: models.RunStatusRunning, TriggeredAt: time.Now()})
		return nil
	}))
	registry := artifacts.NewRegistry(common.GetLogger(), store)
	return NewService(registry, common.VisualConfig{PixelThreshold: 0.1, GridSize: 10, MinShiftPixels: 5}, common.GetLogger()), registry
}

// commitScreenshot writes a solid PNG, optionally with a black block, and
// returns its logical artifact path.
func commitScreenshot(t *testing.T, registry *artifacts.Registry, relPath string, width, height int, block bool) string {
	t.Helper()
	img := solidImage(width, height, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	if block {
		for y := 0; y < 10 && y < height; y++ {
			for x := 0; x < 10 && x < width; x++ {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	data, err := encodePNG(img)
	require.NoError(t, err)
	artifact, err := registry.Commit(context.Background(), "run_1", models.ArtifactTypeScreenshot, relPath, relPath, data)
	require.NoError(t, err)
	return artifact.Path
}

func capturedPair(pagePath, sanitized string, viewports ...models.ViewportCapture) models.CapturedPagePair {
	return models.CapturedPagePair{
		Match: models.MatchedPage{
			Baseline:  models.PageDescriptor{NormalizedPath: pagePath},
			Candidate: models.PageDescriptor{NormalizedPath: pagePath},
		},
		Baseline: &models.PageCapture{
			Side:          models.SideBaseline,
			SanitizedPath: sanitized,
			Viewports:     viewports[:len(viewports)/2],
		},
		Candidate: &models.PageCapture{
			Side:          models.SideCandidate,
			SanitizedPath: sanitized,
			Viewports:     viewports[len(viewports)/2:],
		},
	}
}

func TestService_CompareIdenticalPages(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	basePath := commitScreenshot(t, registry, "baseline/index/desktop.png", 100, 100, false)
	candPath := commitScreenshot(t, registry, "candidate/index/desktop.png", 100, 100, false)

	capture := &models.CaptureResult{Pages: []models.CapturedPagePair{
		capturedPair("/", "index",
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: basePath},
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: candPath},
		),
	}}

	result, err := svc.Compare(ctx, "run_1", capture)
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	require.Len(t, result.Pages[0].Viewports, 1)
	vd := result.Pages[0].Viewports[0]
	assert.Equal(t, 0, vd.DiffPixels)
	assert.Equal(t, 10000, vd.TotalPixels)
	assert.False(t, vd.HasLayoutShift)
	assert.Equal(t, models.SeverityNone, vd.Severity)
	assert.Equal(t, models.SeverityNone, result.Pages[0].Severity)

	assert.Equal(t, 1, result.Summary.PagesCompared)
	assert.Equal(t, 0, result.Summary.PagesWithDiffs)
	assert.Equal(t, float64(0), result.Summary.AverageDiffPct)

	// Diff image, heatmap, and the results JSON are all committed.
	assert.NotEmpty(t, vd.DiffImagePath)
	assert.NotEmpty(t, vd.HeatmapPath)
	listed, err := registry.ListForRun(ctx, "run_1")
	require.NoError(t, err)
	var paths []string
	for _, a := range listed {
		paths = append(paths, a.Path)
	}
	assert.Contains(t, paths, "data/artifacts/run_1/visual-diffs/index/desktop-diff.png")
	assert.Contains(t, paths, "data/artifacts/run_1/visual-diffs/index/desktop-heatmap.png")
	assert.Contains(t, paths, "data/artifacts/run_1/visual-diffs/results.json")
}

func TestService_CompareDetectsBlockChange(t *testing.T) {
	svc, registry := newTestService(t)

	basePath := commitScreenshot(t, registry, "baseline/about/desktop.png", 100, 100, false)
	candPath := commitScreenshot(t, registry, "candidate/about/desktop.png", 100, 100, true)

	capture := &models.CaptureResult{Pages: []models.CapturedPagePair{
		capturedPair("/about", "about",
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: basePath},
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: candPath},
		),
	}}

	result, err := svc.Compare(context.Background(), "run_1", capture)
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	vd := result.Pages[0].Viewports[0]
	assert.Equal(t, 100, vd.DiffPixels)
	assert.InDelta(t, 0.01, vd.DiffRatio, 1e-9)
	// The 10x10 block fills one grid cell, well past the 5-pixel floor.
	assert.True(t, vd.HasLayoutShift)
	require.Len(t, vd.Regions, 1)
	assert.Equal(t, 100, vd.Regions[0].DiffPixels)
	// Shift present with a small ratio grades high.
	assert.Equal(t, models.SeverityHigh, vd.Severity)

	assert.Equal(t, 1, result.Summary.PagesWithDiffs)
	assert.Equal(t, models.SeverityHigh, result.Summary.HighestSeverity)
	assert.Equal(t, 1, result.Summary.SeverityCounts[models.SeverityHigh])
	assert.InDelta(t, 1.0, result.Summary.AverageDiffPct, 1e-9)
}

func TestService_CompareResamplesDimensionMismatch(t *testing.T) {
	svc, registry := newTestService(t)

	basePath := commitScreenshot(t, registry, "baseline/index/mobile.png", 100, 100, false)
	candPath := commitScreenshot(t, registry, "candidate/index/mobile.png", 50, 50, false)

	capture := &models.CaptureResult{Pages: []models.CapturedPagePair{
		capturedPair("/", "index",
			models.ViewportCapture{Viewport: models.Viewport{Name: "mobile"}, ScreenshotPath: basePath},
			models.ViewportCapture{Viewport: models.Viewport{Name: "mobile"}, ScreenshotPath: candPath},
		),
	}}

	result, err := svc.Compare(context.Background(), "run_1", capture)
	require.NoError(t, err)

	vd := result.Pages[0].Viewports[0]
	assert.True(t, vd.Resampled)
	assert.Equal(t, 10000, vd.TotalPixels) // baseline dimensions govern
	assert.Equal(t, 0, vd.DiffPixels)      // both solid white
}

func TestService_CompareSkipsFailedCaptures(t *testing.T) {
	svc, _ := newTestService(t)

	capture := &models.CaptureResult{Pages: []models.CapturedPagePair{
		{
			Match:    models.MatchedPage{Baseline: models.PageDescriptor{NormalizedPath: "/gone"}},
			Baseline: &models.PageCapture{Error: "no viewport loaded"},
			Candidate: &models.PageCapture{Viewports: []models.ViewportCapture{
				{Viewport: models.Viewport{Name: "desktop"}},
			}},
		},
	}}

	result, err := svc.Compare(context.Background(), "run_1", capture)
	require.NoError(t, err)
	assert.Empty(t, result.Pages)
	assert.Equal(t, 0, result.Summary.PagesCompared)
}

func TestService_CompareRecordsMissingScreenshot(t *testing.T) {
	svc, registry := newTestService(t)

	basePath := commitScreenshot(t, registry, "baseline/index/desktop.png", 20, 20, false)

	capture := &models.CaptureResult{Pages: []models.CapturedPagePair{
		capturedPair("/", "index",
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: basePath},
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}},
		),
	}}

	result, err := svc.Compare(context.Background(), "run_1", capture)
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	vd := result.Pages[0].Viewports[0]
	assert.NotEmpty(t, vd.Error)
	assert.Equal(t, models.SeverityNone, result.Pages[0].Severity)
	// Errored viewports do not count into the diff average.
	assert.Equal(t, float64(0), result.Summary.AverageDiffPct)
}

func TestService_CompareMultiplePagesSummary(t *testing.T) {
	svc, registry := newTestService(t)

	pages := make([]models.CapturedPagePair, 0, 2)
	for i, changed := range []bool{false, true} {
		sanitized := fmt.Sprintf("page-%d", i)
		basePath := commitScreenshot(t, registry, fmt.Sprintf("baseline/%s/desktop.png", sanitized), 100, 100, false)
		candPath := commitScreenshot(t, registry, fmt.Sprintf("candidate/%s/desktop.png", sanitized), 100, 100, changed)
		pages = append(pages, capturedPair("/"+sanitized, sanitized,
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: basePath},
			models.ViewportCapture{Viewport: models.Viewport{Name: "desktop"}, ScreenshotPath: candPath},
		))
	}

	result, err := svc.Compare(context.Background(), "run_1", &models.CaptureResult{Pages: pages})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Summary.PagesCompared)
	assert.Equal(t, 1, result.Summary.PagesWithDiffs)
	assert.Equal(t, 1, result.Summary.SeverityCounts[models.SeverityNone])
	assert.Equal(t, 1, result.Summary.SeverityCounts[models.SeverityHigh])
	// Mean of 0% and 1%.
	assert.InDelta(t, 0.5, result.Summary.AverageDiffPct, 1e-9)
}
