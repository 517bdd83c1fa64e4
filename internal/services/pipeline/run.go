package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// errAlreadyClaimed marks a duplicate delivery of a run that a previous
// receive already moved past queued
var errAlreadyClaimed = errors.New("run already claimed")

// runContext carries the state a single run execution accumulates as it
// moves through the stages
type runContext struct {
	run *models.Run
	job *models.ComparisonJob

	matches *models.PageMatchResult
	capture *models.CaptureResult

	baseline  interfaces.BrowserContext
	candidate interfaces.BrowserContext
	closeOnce sync.Once

	logger arbor.ILogger
}

// closeBrowsers releases both browser contexts. Safe to call more than
// once; the capture stage opens them and the terminal transition closes
// them.
func (rc *runContext) closeBrowsers() {
	rc.closeOnce.Do(func() {
		if rc.baseline != nil {
			_ = rc.baseline.Close()
		}
		if rc.candidate != nil {
			_ = rc.candidate.Close()
		}
	})
}

func (s *Service) executeRun(workerID int, msg *models.RunMessage, ack func() error) {
	rc, err := s.claimRun(msg)
	if err != nil {
		if errors.Is(err, errAlreadyClaimed) {
			s.ackQuiet(msg.RunID, ack)
			return
		}
		// Snapshot write failed; leave the message for redelivery.
		s.logger.Warn().Err(err).Str("run_id", msg.RunID).Msg("Failed to claim run")
		return
	}
	if rc == nil {
		// The run row is gone or its job was deleted before the claim;
		// claimRun already recorded whatever outcome applies.
		s.ackQuiet(msg.RunID, ack)
		return
	}

	runCtx, cancelRun := context.WithCancel(s.ctx)
	defer cancelRun()
	s.registerActive(rc.run.ID, cancelRun)
	defer s.clearActive(rc.run.ID)
	defer rc.closeBrowsers()

	rc.logger.Info().Int("worker", workerID).Str("job_id", rc.job.ID).Msg("Run started")
	s.events.Append(runCtx, rc.run.ID, "", "info", "Run started (job "+rc.job.Name+")")

	stage, err := s.runStages(runCtx, rc)
	if err != nil {
		s.failRun(runCtx, rc, stage, err)
	} else {
		s.completeRun(rc)
	}

	s.ackQuiet(rc.run.ID, ack)
}

// claimRun transitions the run to running and copies out the job config
// it will execute against. Exactly one delivery wins the transition, so
// redelivered messages cannot execute a run twice.
func (s *Service) claimRun(msg *models.RunMessage) (*runContext, error) {
	var claimedRun models.Run
	var claimedJob models.ComparisonJob
	claimed := false

	err := s.store.Update(s.ctx, func(snapshot *models.StorageSnapshot) error {
		claimed = false
		run := snapshot.FindRun(msg.RunID)
		if run == nil {
			// Deleted by a job cascade after enqueue. Nothing to record.
			return nil
		}
		if run.Status != models.RunStatusQueued {
			return errAlreadyClaimed
		}
		job := snapshot.FindJob(run.JobID)
		if job == nil {
			now := time.Now().UTC()
			run.Status = models.RunStatusFailed
			run.CompletedAt = &now
			run.Error = "job deleted before run started"
			return nil
		}

		run.Status = models.RunStatusRunning
		job.Status = models.JobStatusActive
		job.UpdatedAt = time.Now().UTC()
		claimedRun = *run
		claimedJob = *job
		claimed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}

	return &runContext{
		run:    &claimedRun,
		job:    &claimedJob,
		logger: s.logger.WithCorrelationId(claimedRun.ID),
	}, nil
}

// runStages walks the stage sequence. Crawl, capture, reasoning, and
// report failures are fatal; diff stage failures degrade the summary
// instead. Returns the failing stage and error, or "" and nil once the
// report is generated.
func (s *Service) runStages(ctx context.Context, rc *runContext) (string, error) {
	if err := s.runStage(ctx, rc, models.StageCrawl, s.crawlStage); err != nil {
		return models.StageCrawl, err
	}

	// Browser contexts are opened outside the capture stage deadline
	// because the functional checks reuse them after it.
	if err := s.openBrowserContexts(ctx, rc); err != nil {
		return models.StageCapture, err
	}
	if err := s.runStage(ctx, rc, models.StageCapture, s.captureStage); err != nil {
		return models.StageCapture, err
	}

	summary := s.diffStages(ctx, rc)
	if _, err := s.registry.CommitJSON(ctx, rc.run.ID, models.ArtifactTypeOther, "Diff summary", "diff-summary.json", summary); err != nil {
		rc.logger.Warn().Err(err).Msg("Failed to commit diff summary")
	}

	var analysis *models.ReasoningAnalysis
	err := s.runStage(ctx, rc, models.StageReasoning, func(stageCtx context.Context, rc *runContext) error {
		result, err := s.stages.Reasoning.Analyze(stageCtx, summary)
		if err != nil {
			return err
		}
		analysis = result
		return nil
	})
	if err != nil {
		return models.StageReasoning, err
	}
	if _, err := s.registry.CommitJSON(ctx, rc.run.ID, models.ArtifactTypeOther, "Reasoning analysis", "reasoning.json", analysis); err != nil {
		rc.logger.Warn().Err(err).Msg("Failed to commit reasoning analysis")
	}
	s.events.Append(ctx, rc.run.ID, models.StageReasoning, "info",
		fmt.Sprintf("Analysis complete: severity %s, source %s", analysis.Overall.Severity, analysis.Source))

	var report *models.MigrationReport
	err = s.runStage(ctx, rc, models.StageReport, func(stageCtx context.Context, rc *runContext) error {
		result, err := s.stages.Report.Generate(stageCtx, rc.run.ID, rc.job, analysis, summary)
		if err != nil {
			return err
		}
		report = result
		return nil
	})
	if err != nil {
		return models.StageReport, err
	}

	s.events.Append(ctx, rc.run.ID, models.StageReport, "info",
		fmt.Sprintf("Report generated: decision %s, overall risk %.0f", report.Executive.Decision, report.Risk.Overall))
	return "", nil
}

// runStage applies the per-stage deadline and converts panics into
// errors so one bad page cannot take down a worker
func (s *Service) runStage(ctx context.Context, rc *runContext, stage string, fn func(context.Context, *runContext) error) (err error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 8<<10)
			buf = buf[:runtime.Stack(buf, false)]
			err = common.NewError(common.KindStageFatal, "%s stage panicked: %v\n%s", stage, r, buf)
			rc.logger.Error().Str("stage", stage).Msg("Panic recovered in stage")
		}
	}()

	started := time.Now()
	err = fn(stageCtx, rc)
	if err == nil {
		rc.logger.Info().
			Str("stage", stage).
			Str("elapsed", time.Since(started).Round(time.Millisecond).String()).
			Msg("Stage completed")
	}
	return err
}

func (s *Service) crawlStage(ctx context.Context, rc *runContext) error {
	matches, baseline, candidate, err := s.stages.Crawl.Discover(ctx, rc.job)
	if err != nil {
		return err
	}
	if len(matches.Matches) == 0 {
		return common.NewError(common.KindStageFatal, "no comparable pages matched between baseline and candidate")
	}
	rc.matches = matches

	if _, err := s.registry.CommitJSON(ctx, rc.run.ID, models.ArtifactTypeOther, "Matched pages", "crawl/matches.json", matches); err != nil {
		return err
	}
	if _, err := s.registry.CommitJSON(ctx, rc.run.ID, models.ArtifactTypeOther, "Derived page map", "crawl/page-map.json", matches.DerivedPageMap()); err != nil {
		return err
	}
	if _, err := s.registry.CommitJSON(ctx, rc.run.ID, models.ArtifactTypeOther, "Baseline crawl", "crawl/baseline.json", baseline); err != nil {
		return err
	}
	if _, err := s.registry.CommitJSON(ctx, rc.run.ID, models.ArtifactTypeOther, "Candidate crawl", "crawl/candidate.json", candidate); err != nil {
		return err
	}
	if len(matches.UnmatchedBaseline) > 0 || len(matches.UnmatchedCandidate) > 0 {
		if _, err := s.registry.Commit(ctx, rc.run.ID, models.ArtifactTypeLog, "Unmatched pages", "crawl/unmatched.log", unmatchedLog(matches)); err != nil {
			return err
		}
	}

	s.events.Append(ctx, rc.run.ID, models.StageCrawl, "info",
		fmt.Sprintf("Matched %d page pairs, %d baseline and %d candidate pages unmatched",
			len(matches.Matches), len(matches.UnmatchedBaseline), len(matches.UnmatchedCandidate)))
	return nil
}

func (s *Service) openBrowserContexts(ctx context.Context, rc *runContext) error {
	baseline, err := s.driver.NewContext(ctx)
	if err != nil {
		return common.WrapError(common.KindStageFatal, err, "failed to open baseline browser context")
	}
	rc.baseline = baseline

	candidate, err := s.driver.NewContext(ctx)
	if err != nil {
		return common.WrapError(common.KindStageFatal, err, "failed to open candidate browser context")
	}
	rc.candidate = candidate
	return nil
}

func (s *Service) captureStage(ctx context.Context, rc *runContext) error {
	capture, err := s.stages.Capture.Capture(ctx, rc.run.ID, rc.job, rc.matches.Matches, rc.baseline, rc.candidate)
	if err != nil {
		return err
	}
	if capture.PagesCaptured == 0 {
		return common.NewError(common.KindStageFatal, "no page pairs captured on either side")
	}
	rc.capture = capture

	s.events.Append(ctx, rc.run.ID, models.StageCapture, "info",
		fmt.Sprintf("Captured %d page pairs (%d failed)", capture.PagesCaptured, capture.PagesFailed))
	return nil
}

// diffStages runs the diff stages enabled by the TestMatrix in
// parallel. Each writes a distinct summary slot, so the WaitGroup is
// the only synchronization needed. A failed stage lands in Unavailable
// and the run carries on; reasoning weighs the missing evidence. The
// SEO flag is reserved and not yet wired to a stage.
func (s *Service) diffStages(ctx context.Context, rc *runContext) *models.DiffSummary {
	summary := &models.DiffSummary{PagesTested: rc.capture.PagesCaptured}
	matrix := rc.job.TestMatrix

	var wg sync.WaitGroup
	var visualErr, functionalErr, dataErr error

	if matrix.Visual {
		wg.Add(1)
		go func() {
			defer wg.Done()
			visualErr = s.runStage(ctx, rc, models.StageVisual, func(stageCtx context.Context, rc *runContext) error {
				result, err := s.stages.Visual.Compare(stageCtx, rc.run.ID, rc.capture)
				if err != nil {
					return err
				}
				summary.Visual = &result.Summary
				return nil
			})
		}()
	}

	if matrix.Functional {
		wg.Add(1)
		go func() {
			defer wg.Done()
			functionalErr = s.runStage(ctx, rc, models.StageFunctional, func(stageCtx context.Context, rc *runContext) error {
				result, err := s.stages.Functional.Check(stageCtx, rc.run.ID, rc.job, rc.matches.Matches, rc.baseline, rc.candidate)
				if err != nil {
					return err
				}
				summary.Functional = result
				return nil
			})
		}()
	}

	if matrix.Data {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dataErr = s.runStage(ctx, rc, models.StageData, func(stageCtx context.Context, rc *runContext) error {
				result, err := s.stages.Data.Compare(stageCtx, rc.run.ID, rc.capture)
				if err != nil {
					return err
				}
				summary.Data = &result.Summary
				return nil
			})
		}()
	}

	wg.Wait()

	for _, failure := range []struct {
		stage string
		err   error
	}{
		{models.StageVisual, visualErr},
		{models.StageFunctional, functionalErr},
		{models.StageData, dataErr},
	} {
		if failure.err == nil {
			continue
		}
		summary.Unavailable = append(summary.Unavailable, failure.stage)
		s.recordStageFailure(ctx, rc, failure.stage, failure.err)
	}

	return summary
}

// recordStageFailure leaves a log artifact and run event for a diff
// stage that errored without failing the run
func (s *Service) recordStageFailure(ctx context.Context, rc *runContext, stage string, stageErr error) {
	body := fmt.Sprintf("stage: %s\ntime: %s\nerror: %s\n", stage, time.Now().UTC().Format(time.RFC3339), stageErr)
	if _, err := s.registry.Commit(ctx, rc.run.ID, models.ArtifactTypeLog, stageErrorLabel(stage), "logs/"+stage+".log", []byte(body)); err != nil {
		rc.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to commit stage failure log")
	}
	s.events.Append(ctx, rc.run.ID, stage, "error", "Stage unavailable: "+stageErr.Error())
	rc.logger.Warn().Str("stage", stage).Err(stageErr).Msg("Diff stage unavailable")
}

// failRun records the terminal failure, mirrors it onto the job, and
// leaves a failure log artifact. Persistence runs on a background
// context so cancelled and shutdown runs are still recorded.
func (s *Service) failRun(ctx context.Context, rc *runContext, stage string, stageErr error) {
	rc.closeBrowsers()

	reason := stageErr.Error()
	if ctx.Err() != nil {
		reason = "cancelled"
	}
	message := stage + ": " + reason

	bg := context.Background()
	now := time.Now().UTC()
	removed := false
	if err := s.store.Update(bg, func(snapshot *models.StorageSnapshot) error {
		run := snapshot.FindRun(rc.run.ID)
		if run == nil || run.Status != models.RunStatusRunning {
			removed = true
			return nil
		}
		run.Status = models.RunStatusFailed
		run.CompletedAt = &now
		run.Error = message
		reflectJobStatus(snapshot, run.JobID)
		return nil
	}); err != nil {
		s.logger.Error().Err(err).Str("run_id", rc.run.ID).Msg("Failed to persist run failure")
	}
	if removed {
		// Deleted mid-run; writing artifacts now would undo the cascade.
		rc.logger.Info().Str("stage", stage).Msg("Run removed while executing, skipping failure record")
		return
	}

	body := fmt.Sprintf("stage: %s\ntime: %s\nerror: %s\n", stage, now.Format(time.RFC3339), stageErr)
	if _, err := s.registry.Commit(bg, rc.run.ID, models.ArtifactTypeLog, stageErrorLabel(stage), "logs/"+stage+".log", []byte(body)); err != nil {
		rc.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to commit failure log")
	}

	s.events.Append(bg, rc.run.ID, stage, "error", "Run failed at "+message)
	rc.logger.Error().Str("stage", stage).Err(stageErr).Msg("Run failed")
}

// completeRun records the terminal success and mirrors it onto the job
func (s *Service) completeRun(rc *runContext) {
	rc.closeBrowsers()

	bg := context.Background()
	now := time.Now().UTC()
	removed := false
	if err := s.store.Update(bg, func(snapshot *models.StorageSnapshot) error {
		run := snapshot.FindRun(rc.run.ID)
		if run == nil || run.Status != models.RunStatusRunning {
			removed = true
			return nil
		}
		run.Status = models.RunStatusCompleted
		run.CompletedAt = &now
		reflectJobStatus(snapshot, run.JobID)
		return nil
	}); err != nil {
		s.logger.Error().Err(err).Str("run_id", rc.run.ID).Msg("Failed to persist run completion")
	}
	if removed {
		rc.logger.Info().Msg("Run removed while executing, skipping completion record")
		return
	}

	s.events.Append(bg, rc.run.ID, "", "info", "Run completed")
	rc.logger.Info().Msg("Run completed")
}

// stageErrorLabel names the failure log artifact for a stage, e.g.
// "Capture Error"
func stageErrorLabel(stage string) string {
	if stage == "" {
		return "Run Error"
	}
	return strings.ToUpper(stage[:1]) + stage[1:] + " Error"
}

// unmatchedLog renders the pages left without a counterpart as a plain
// text artifact for manual review
func unmatchedLog(matches *models.PageMatchResult) []byte {
	var b strings.Builder
	if len(matches.UnmatchedBaseline) > 0 {
		b.WriteString("baseline pages with no candidate match:\n")
		for _, page := range matches.UnmatchedBaseline {
			fmt.Fprintf(&b, "  %s (%s)\n", page.URL, page.NormalizedPath)
		}
	}
	if len(matches.UnmatchedCandidate) > 0 {
		b.WriteString("candidate pages with no baseline match:\n")
		for _, page := range matches.UnmatchedCandidate {
			fmt.Fprintf(&b, "  %s (%s)\n", page.URL, page.NormalizedPath)
		}
	}
	return []byte(b.String())
}
