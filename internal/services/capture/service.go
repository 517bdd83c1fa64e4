package capture

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Service walks every matched page on both sides and files the evidence
// the diff stages will consume: per-viewport screenshots, the page HTML
// and a markdown rendering of it, console and network logs, and load
// metadata. Baseline is always captured before candidate so artifact
// trees stay stable across re-runs.
type Service struct {
	registry  interfaces.ArtifactRegistry
	transform interfaces.TransformService
	viewports []models.Viewport
	logger    arbor.ILogger
}

var _ interfaces.CaptureService = (*Service)(nil)

// NewService creates a capture service. Viewports come from the browser
// config; an empty list falls back to desktop/tablet/mobile.
func NewService(registry interfaces.ArtifactRegistry, transform interfaces.TransformService, cfg common.BrowserConfig, logger arbor.ILogger) *Service {
	viewports := make([]models.Viewport, 0, len(cfg.Viewports))
	for _, v := range cfg.Viewports {
		if v.Width <= 0 || v.Height <= 0 {
			continue
		}
		viewports = append(viewports, models.Viewport{Name: v.Name, Width: v.Width, Height: v.Height})
	}
	if len(viewports) == 0 {
		viewports = models.DefaultViewports()
	}

	return &Service{
		registry:  registry,
		transform: transform,
		viewports: viewports,
		logger:    logger,
	}
}

// Capture gathers evidence for every matched page. A page that fails on
// either side is counted failed but the stage carries on; the stage
// itself only errors when nothing at all could be captured.
func (s *Service) Capture(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate interfaces.BrowserContext) (*models.CaptureResult, error) {
	result := &models.CaptureResult{Pages: make([]models.CapturedPagePair, 0, len(matches))}

	basePage, err := baseline.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline page: %w", err)
	}
	defer basePage.Close()

	candPage, err := candidate.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open candidate page: %w", err)
	}
	defer candPage.Close()

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pair := models.CapturedPagePair{Match: match}

		baseCapture, err := s.capturePage(ctx, runID, models.SideBaseline, basePage, match.Baseline)
		if err != nil {
			return nil, err
		}
		pair.Baseline = baseCapture

		candCapture, err := s.capturePage(ctx, runID, models.SideCandidate, candPage, match.Candidate)
		if err != nil {
			return nil, err
		}
		pair.Candidate = candCapture

		if baseCapture.Error == "" && candCapture.Error == "" {
			result.PagesCaptured++
		} else {
			result.PagesFailed++
		}
		result.Pages = append(result.Pages, pair)
	}

	if len(matches) > 0 && result.PagesCaptured == 0 {
		return result, fmt.Errorf("capture produced no usable pages (%d failed)", result.PagesFailed)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("pages_captured", result.PagesCaptured).
		Int("pages_failed", result.PagesFailed).
		Msg("Capture stage completed")

	return result, nil
}

// capturePage records one page on one side across all viewports.
// Returned errors are context-level only; per-page trouble lands in
// PageCapture.Error.
func (s *Service) capturePage(ctx context.Context, runID string, side models.Side, page interfaces.PageSession, descriptor models.PageDescriptor) (*models.PageCapture, error) {
	sanitized := common.SanitizePagePath(descriptor.NormalizedPath)
	capture := &models.PageCapture{
		Side:          side,
		PageURL:       descriptor.URL,
		SanitizedPath: sanitized,
		Viewports:     make([]models.ViewportCapture, 0, len(s.viewports)),
	}

	loaded := 0
	for i, viewport := range s.viewports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vc, navOK, err := s.captureViewport(ctx, runID, side, page, descriptor, sanitized, viewport, i == 0)
		if err != nil {
			return nil, err
		}
		if vc == nil {
			continue
		}
		if navOK {
			loaded++
		}
		capture.Viewports = append(capture.Viewports, *vc)
	}

	if loaded == 0 {
		capture.Error = fmt.Sprintf("no viewport loaded for %s", descriptor.URL)
	}

	// The full evidence record rides along as JSON so later inspection
	// does not depend on process memory.
	relPath := fmt.Sprintf("%s/%s/capture.json", side, sanitized)
	label := fmt.Sprintf("%s %s capture evidence", side, descriptor.NormalizedPath)
	if _, err := s.registry.CommitJSON(ctx, runID, models.ArtifactTypeOther, label, relPath, capture); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Str("page", descriptor.URL).Msg("Failed to commit capture evidence")
	}

	return capture, nil
}

func (s *Service) captureViewport(ctx context.Context, runID string, side models.Side, page interfaces.PageSession, descriptor models.PageDescriptor, sanitized string, viewport models.Viewport, first bool) (*models.ViewportCapture, bool, error) {
	if err := page.SetViewport(ctx, viewport.Width, viewport.Height); err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("viewport", viewport.Name).Msg("Failed to set viewport")
		return nil, false, nil
	}

	nav, err := page.Navigate(ctx, descriptor.URL)
	if err != nil {
		return nil, false, err
	}

	vc := &models.ViewportCapture{
		Viewport: viewport,
		Metadata: models.PageLoadMetadata{
			FinalURL:   nav.FinalURL,
			Status:     nav.Status,
			LoadTimeMs: nav.LoadTimeMs,
		},
	}

	// Console and network logs accumulate per visit; drain them into
	// this viewport's record whatever the navigation outcome. JS errors
	// are functional-stage evidence; drained so the shared session does
	// not carry them across pages.
	vc.Console = page.ConsoleMessages()
	vc.Network = page.NetworkEvents()
	page.JSErrors()

	if nav.Error != "" {
		s.logger.Warn().
			Str("side", string(side)).
			Str("url", descriptor.URL).
			Str("error", nav.Error).
			Msg("Navigation failed during capture")
		return vc, false, nil
	}

	prefix := fmt.Sprintf("%s/%s", side, sanitized)

	if shot, err := page.Screenshot(ctx); err == nil && len(shot) > 0 {
		relPath := fmt.Sprintf("%s/%s.png", prefix, viewport.Name)
		label := fmt.Sprintf("%s %s %s screenshot", side, descriptor.NormalizedPath, viewport.Name)
		if artifact, err := s.registry.Commit(ctx, runID, models.ArtifactTypeScreenshot, label, relPath, shot); err == nil {
			vc.ScreenshotPath = artifact.Path
		} else {
			s.logger.Warn().Err(err).Str("path", relPath).Msg("Failed to commit screenshot")
		}
	} else if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("url", descriptor.URL).Msg("Screenshot failed")
	}

	if text, err := page.VisibleText(ctx); err == nil {
		vc.VisibleText = text
	}

	// HTML and its markdown rendering are identical across viewports,
	// so only the first viewport files them.
	if first {
		if html, err := page.HTML(ctx); err == nil && html != "" {
			label := fmt.Sprintf("%s %s html snapshot", side, descriptor.NormalizedPath)
			if artifact, err := s.registry.Commit(ctx, runID, models.ArtifactTypeOther, label, prefix+"/snapshot.html", []byte(html)); err == nil {
				vc.HTMLPath = artifact.Path
			}

			if markdown, err := s.transform.HTMLToMarkdown(html); err == nil && markdown != "" {
				mdLabel := fmt.Sprintf("%s %s content markdown", side, descriptor.NormalizedPath)
				if _, err := s.registry.Commit(ctx, runID, models.ArtifactTypeOther, mdLabel, prefix+"/content.md", []byte(markdown)); err != nil {
					s.logger.Warn().Err(err).Msg("Failed to commit content markdown")
				}
			}
		} else if err != nil && ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
	}

	return vc, true, nil
}
