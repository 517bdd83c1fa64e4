package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// jobEntry tracks the cron registration for one scheduled job
type jobEntry struct {
	schedule string
	cronID   cron.EntryID
}

// Service enqueues runs for jobs carrying a cron schedule. Entries are
// synced from the snapshot by Reload; the scheduler itself holds no
// durable state, so a restart rebuilds the table from the jobs.
type Service struct {
	jobs    interfaces.JobService
	cron    *cron.Cron
	logger  arbor.ILogger
	enabled bool

	mu      sync.Mutex
	entries map[string]*jobEntry // keyed by job id
	running bool
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates the scheduler. A disabled scheduler accepts every
// call and schedules nothing.
func NewService(jobs interfaces.JobService, logger arbor.ILogger, enabled bool) *Service {
	return &Service{
		jobs:    jobs,
		cron:    cron.New(),
		logger:  logger,
		enabled: enabled,
		entries: make(map[string]*jobEntry),
	}
}

// Start syncs entries from the snapshot and begins the cron loop
func (s *Service) Start() error {
	if !s.enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	if err := s.Reload(context.Background()); err != nil {
		// Non-critical: jobs created later re-trigger a reload
		s.logger.Warn().Err(err).Msg("Failed to load schedules at startup")
	}

	s.cron.Start()

	s.mu.Lock()
	s.running = true
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Info().Int("scheduled_jobs", count).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop; already-running triggers finish
func (s *Service) Stop() error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Reload resyncs cron entries against the jobs currently in the
// snapshot: new schedules are added, changed ones replaced, and entries
// for deleted jobs or cleared schedules removed.
func (s *Service) Reload(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs for schedule sync: %w", err)
	}

	desired := make(map[string]string)
	for _, job := range jobs {
		if job.Schedule != "" {
			desired[job.ID] = job.Schedule
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for jobID, entry := range s.entries {
		schedule, keep := desired[jobID]
		if keep && schedule == entry.schedule {
			continue
		}
		s.cron.Remove(entry.cronID)
		delete(s.entries, jobID)
		if !keep {
			s.logger.Info().Str("job_id", jobID).Msg("Schedule removed")
		}
	}

	for jobID, schedule := range desired {
		if _, exists := s.entries[jobID]; exists {
			continue
		}
		id := jobID
		cronID, err := s.cron.AddFunc(schedule, func() {
			s.triggerRun(id)
		})
		if err != nil {
			// Creation validates schedules; this only fires for jobs
			// that entered the snapshot another way.
			s.logger.Error().Err(err).Str("job_id", jobID).Str("schedule", schedule).Msg("Rejected unparseable schedule")
			continue
		}
		s.entries[jobID] = &jobEntry{schedule: schedule, cronID: cronID}
		s.logger.Info().Str("job_id", jobID).Str("schedule", schedule).Msg("Schedule registered")
	}

	return nil
}

// ScheduledJobIDs lists the job ids with an active cron entry
func (s *Service) ScheduledJobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// triggerRun enqueues a run for a scheduled job. A job with a run still
// queued or running is skipped rather than stacked; the next tick tries
// again.
func (s *Service) triggerRun(jobID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job_id", jobID).Str("panic", fmt.Sprintf("%v", r)).Msg("Panic recovered in scheduled trigger")
		}
	}()

	ctx := context.Background()

	active, err := s.hasActiveRun(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to check active runs, skipping scheduled trigger")
		return
	}
	if active {
		s.logger.Debug().Str("job_id", jobID).Msg("Previous run still active, skipping scheduled trigger")
		return
	}

	run, err := s.jobs.EnqueueRun(ctx, jobID, "schedule")
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to enqueue scheduled run")
		return
	}
	s.logger.Info().Str("job_id", jobID).Str("run_id", run.ID).Msg("Scheduled run enqueued")
}

func (s *Service) hasActiveRun(ctx context.Context, jobID string) (bool, error) {
	runs, err := s.jobs.ListRunsForJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	for _, run := range runs {
		if run.Status == models.RunStatusQueued || run.Status == models.RunStatusRunning {
			return true, nil
		}
	}
	return false, nil
}
