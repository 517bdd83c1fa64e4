package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Service manages comparison jobs and their runs over the snapshot
// store. Run enqueueing is write-ahead: the queued Run row lands in the
// snapshot before the queue message, so a crash in between leaves a
// recoverable run rather than an untracked message.
type Service struct {
	store    interfaces.SnapshotStore
	registry interfaces.ArtifactRegistry
	events   interfaces.EventService
	queue    interfaces.RunQueue
	logger   arbor.ILogger
}

var _ interfaces.JobService = (*Service)(nil)

// NewService creates the job service
func NewService(store interfaces.SnapshotStore, registry interfaces.ArtifactRegistry, events interfaces.EventService, queue interfaces.RunQueue, logger arbor.ILogger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		events:   events,
		queue:    queue,
		logger:   logger,
	}
}

// CreateJob validates the job, fills defaults, and persists it
func (s *Service) CreateJob(ctx context.Context, job *models.ComparisonJob) (*models.ComparisonJob, error) {
	if job == nil {
		return nil, common.NewError(common.KindInvalidInput, "job body is required")
	}

	applyDefaults(job)

	if err := job.Validate(); err != nil {
		return nil, common.WrapError(common.KindInvalidInput, err, "invalid job")
	}
	if err := validateSchedule(job.Schedule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job.ID = common.NewJobID()
	job.Status = models.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Version = models.SnapshotVersion

	err := s.store.Update(ctx, func(snapshot *models.StorageSnapshot) error {
		snapshot.ComparisonJobs = append(snapshot.ComparisonJobs, job)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("name", job.Name).
		Str("baseline", job.BaselineURL).
		Str("candidate", job.CandidateURL).
		Msg("Comparison job created")

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*models.ComparisonJob, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	job := snapshot.FindJob(id)
	if job == nil {
		return nil, common.NewError(common.KindNotFound, "job %s not found", id)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]*models.ComparisonJob, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.ComparisonJobs, nil
}

// UpdateJob applies the non-nil fields of update to the job. The merged
// job must still validate; a rejected update leaves the job untouched.
func (s *Service) UpdateJob(ctx context.Context, id string, update *models.JobUpdate) (*models.ComparisonJob, error) {
	if update == nil {
		return nil, common.NewError(common.KindInvalidInput, "update body is required")
	}
	if update.Status != nil && !validJobStatus(*update.Status) {
		return nil, common.NewError(common.KindInvalidInput, "unknown job status %q", *update.Status)
	}
	if update.Schedule != nil {
		if err := validateSchedule(*update.Schedule); err != nil {
			return nil, err
		}
	}

	var updated *models.ComparisonJob
	err := s.store.Update(ctx, func(snapshot *models.StorageSnapshot) error {
		job := snapshot.FindJob(id)
		if job == nil {
			return common.NewError(common.KindNotFound, "job %s not found", id)
		}

		merged := *job
		if update.Name != nil {
			merged.Name = *update.Name
		}
		if update.Description != nil {
			merged.Description = *update.Description
		}
		if update.BaselineURL != nil {
			merged.BaselineURL = *update.BaselineURL
		}
		if update.CandidateURL != nil {
			merged.CandidateURL = *update.CandidateURL
		}
		if update.CrawlConfig != nil {
			merged.CrawlConfig = *update.CrawlConfig
		}
		if update.PageMap != nil {
			merged.PageMap = *update.PageMap
		}
		if update.TestMatrix != nil {
			merged.TestMatrix = *update.TestMatrix
		}
		if update.Status != nil {
			merged.Status = *update.Status
		}
		if update.Schedule != nil {
			merged.Schedule = *update.Schedule
		}

		if err := merged.Validate(); err != nil {
			return common.WrapError(common.KindInvalidInput, err, "invalid job update")
		}

		merged.UpdatedAt = time.Now().UTC()
		*job = merged
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", id).Msg("Comparison job updated")
	return updated, nil
}

// DeleteJob removes the job, its runs, their artifact rows and events,
// and (best-effort) their artifact directories
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	var runIDs []string

	err := s.store.Update(ctx, func(snapshot *models.StorageSnapshot) error {
		job := snapshot.FindJob(id)
		if job == nil {
			return common.NewError(common.KindNotFound, "job %s not found", id)
		}

		owned := make(map[string]bool)
		for _, run := range snapshot.Runs {
			if run.JobID == id {
				owned[run.ID] = true
				runIDs = append(runIDs, run.ID)
			}
		}

		jobs := snapshot.ComparisonJobs[:0]
		for _, j := range snapshot.ComparisonJobs {
			if j.ID != id {
				jobs = append(jobs, j)
			}
		}
		snapshot.ComparisonJobs = jobs

		runs := snapshot.Runs[:0]
		for _, run := range snapshot.Runs {
			if !owned[run.ID] {
				runs = append(runs, run)
			}
		}
		snapshot.Runs = runs

		artifacts := snapshot.Artifacts[:0]
		for _, artifact := range snapshot.Artifacts {
			if !owned[artifact.RunID] {
				artifacts = append(artifacts, artifact)
			}
		}
		snapshot.Artifacts = artifacts

		return nil
	})
	if err != nil {
		return err
	}

	// Events and files are cleaned outside the snapshot transaction;
	// leftovers are orphans, not dangling references.
	for _, runID := range runIDs {
		if err := s.events.DeleteEvents(ctx, runID); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to delete run events")
		}
		if err := s.registry.RemoveRunFiles(runID); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to remove run artifact files")
		}
	}

	s.logger.Info().Str("job_id", id).Int("runs_removed", len(runIDs)).Msg("Comparison job deleted")
	return nil
}

// MigrateLegacy converts legacy single-URL jobs still in the snapshot
func (s *Service) MigrateLegacy(ctx context.Context) (int, error) {
	count, err := s.store.MigrateLegacy(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int("migrated", count).Msg("Legacy jobs migrated")
	}
	return count, nil
}

// EnqueueRun creates a queued Run for the job and hands it to the
// dispatch queue
func (s *Service) EnqueueRun(ctx context.Context, jobID, triggeredBy string) (*models.Run, error) {
	if triggeredBy == "" {
		triggeredBy = "api"
	}

	run := &models.Run{
		ID:          common.NewRunID(),
		Status:      models.RunStatusQueued,
		TriggeredBy: triggeredBy,
		TriggeredAt: time.Now().UTC(),
	}

	err := s.store.Update(ctx, func(snapshot *models.StorageSnapshot) error {
		job := snapshot.FindJob(jobID)
		if job == nil {
			return common.NewError(common.KindNotFound, "job %s not found", jobID)
		}
		run.JobID = job.ID
		snapshot.Runs = append(snapshot.Runs, run)
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := &models.RunMessage{RunID: run.ID, JobID: jobID, EnqueuedAt: time.Now().UTC()}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		// The write-ahead run row stays; startup recovery re-enqueues
		// queued runs that never received a message.
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to enqueue run message")
		return nil, common.WrapError(common.KindInternal, err, "failed to enqueue run %s", run.ID)
	}

	s.events.Append(ctx, run.ID, "", "info", "Run queued (triggered by "+triggeredBy+")")
	s.logger.Info().
		Str("run_id", run.ID).
		Str("job_id", jobID).
		Str("triggered_by", triggeredBy).
		Msg("Run enqueued")

	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id string) (*models.Run, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	run := snapshot.FindRun(id)
	if run == nil {
		return nil, common.NewError(common.KindNotFound, "run %s not found", id)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context) ([]*models.Run, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Runs, nil
}

func (s *Service) ListRunsForJob(ctx context.Context, jobID string) ([]*models.Run, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.FindJob(jobID) == nil {
		return nil, common.NewError(common.KindNotFound, "job %s not found", jobID)
	}
	return snapshot.RunsForJob(jobID), nil
}

func (s *Service) ListRunArtifacts(ctx context.Context, runID string) ([]*models.RunArtifact, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.FindRun(runID) == nil {
		return nil, common.NewError(common.KindNotFound, "run %s not found", runID)
	}
	return snapshot.ArtifactsForRun(runID), nil
}

// applyDefaults fills omitted crawl bounds and an empty test matrix
func applyDefaults(job *models.ComparisonJob) {
	empty := models.CrawlConfig{}
	if job.CrawlConfig.Depth == empty.Depth &&
		job.CrawlConfig.MaxPages == empty.MaxPages &&
		len(job.CrawlConfig.IncludePatterns) == 0 &&
		len(job.CrawlConfig.ExcludePatterns) == 0 &&
		!job.CrawlConfig.FollowExternal {
		job.CrawlConfig = models.DefaultCrawlConfig()
	} else if job.CrawlConfig.MaxPages == 0 {
		job.CrawlConfig.MaxPages = models.DefaultCrawlConfig().MaxPages
	}

	if job.TestMatrix == (models.TestMatrix{}) {
		job.TestMatrix = models.DefaultTestMatrix()
	}
}

func validJobStatus(status models.JobStatus) bool {
	switch status {
	case models.JobStatusPending, models.JobStatusActive, models.JobStatusCompleted, models.JobStatusFailed:
		return true
	default:
		return false
	}
}

// validateSchedule checks an optional cron expression with the same
// parser the scheduler runs it with
func validateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return common.WrapError(common.KindInvalidInput, err, "invalid schedule %q", schedule)
	}
	return nil
}
