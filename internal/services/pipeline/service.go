package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
)

// Stages bundles the per-stage services the pipeline drives. All seven
// are required.
type Stages struct {
	Crawl      interfaces.CrawlService
	Capture    interfaces.CaptureService
	Visual     interfaces.VisualDiffService
	Functional interfaces.FunctionalService
	Data       interfaces.DataIntegrityService
	Reasoning  interfaces.ReasoningService
	Report     interfaces.ReportService
}

// Service is the run orchestrator. A fixed pool of workers polls the
// durable queue; each claimed run walks the stage sequence and always
// reaches a terminal status, including across process restarts.
type Service struct {
	store    interfaces.SnapshotStore
	registry interfaces.ArtifactRegistry
	events   interfaces.EventService
	queue    interfaces.RunQueue
	driver   interfaces.BrowserDriver
	stages   Stages
	logger   arbor.ILogger

	workers        int
	jobConcurrency int
	stageTimeout   time.Duration
	pollInterval   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	active   map[string]context.CancelFunc
	jobSlots map[string]chan struct{}
	started  bool
}

var _ interfaces.PipelineService = (*Service)(nil)

// NewService creates the run orchestrator
func NewService(cfg common.PipelineConfig, store interfaces.SnapshotStore, registry interfaces.ArtifactRegistry, events interfaces.EventService, queue interfaces.RunQueue, driver interfaces.BrowserDriver, stages Stages, logger arbor.ILogger) *Service {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	jobConcurrency := cfg.JobConcurrency
	if jobConcurrency < 1 {
		jobConcurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		store:          store,
		registry:       registry,
		events:         events,
		queue:          queue,
		driver:         driver,
		stages:         stages,
		logger:         logger,
		workers:        workers,
		jobConcurrency: jobConcurrency,
		stageTimeout:   common.ParseDuration(cfg.StageTimeout, 10*time.Minute),
		pollInterval:   common.ParseDuration(cfg.PollInterval, time.Second),
		ctx:            ctx,
		cancel:         cancel,
		active:         make(map[string]context.CancelFunc),
		jobSlots:       make(map[string]chan struct{}),
	}
}

// Start launches the worker pool
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	s.logger.Info().
		Int("workers", s.workers).
		Int("job_concurrency", s.jobConcurrency).
		Str("poll_interval", s.pollInterval.String()).
		Str("stage_timeout", s.stageTimeout.String()).
		Msg("Pipeline workers started")
	return nil
}

// Stop cancels in-flight runs and waits for the workers to drain.
// Cancelled runs are persisted as failed before the workers exit.
func (s *Service) Stop() error {
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Pipeline workers stopped")
	return nil
}

func (s *Service) workerLoop(workerID int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll(workerID)
		}
	}
}

// poll claims at most one message and executes it to completion
func (s *Service) poll(workerID int) {
	msg, ack, err := s.queue.Receive(s.ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNoMessage) {
			s.logger.Warn().Err(err).Msg("Failed to receive from run queue")
		}
		return
	}

	// A message received during shutdown stays unacked so the
	// visibility timeout hands it to the next process.
	if s.ctx.Err() != nil {
		return
	}

	release, ok := s.acquireJobSlot(msg.JobID)
	if !ok {
		// The job is at its concurrency limit. Swap in a fresh message
		// and ack this one so the retry neither waits out the
		// visibility timeout nor counts toward the poison limit.
		if err := s.queue.Enqueue(s.ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("run_id", msg.RunID).Msg("Failed to requeue run behind busy job")
			return
		}
		s.ackQuiet(msg.RunID, ack)
		return
	}
	defer release()

	s.executeRun(workerID, msg, ack)
}

// acquireJobSlot enforces the per-job concurrency limit. The returned
// release must be called once the run finishes.
func (s *Service) acquireJobSlot(jobID string) (func(), bool) {
	s.mu.Lock()
	slots, ok := s.jobSlots[jobID]
	if !ok {
		slots = make(chan struct{}, s.jobConcurrency)
		s.jobSlots[jobID] = slots
	}
	s.mu.Unlock()

	select {
	case slots <- struct{}{}:
		return func() { <-slots }, true
	default:
		return nil, false
	}
}

// CancelRun cancels the run if it is executing on this process. The
// run is then persisted as failed with error "cancelled".
func (s *Service) CancelRun(runID string) bool {
	s.mu.Lock()
	cancel, ok := s.active[runID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Service) registerActive(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.active[runID] = cancel
	s.mu.Unlock()
}

func (s *Service) clearActive(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

// Recover fails runs left in status running by a previous process and
// re-enqueues queued runs whose messages may have died with it. Called
// once at startup before the workers poll; duplicate messages for runs
// that do still have one are dropped at claim time.
func (s *Service) Recover(ctx context.Context) (int, error) {
	var aborted []*models.Run
	var requeue []*models.Run

	err := s.store.Update(ctx, func(snapshot *models.StorageSnapshot) error {
		aborted = aborted[:0]
		requeue = requeue[:0]
		now := time.Now().UTC()
		for _, run := range snapshot.Runs {
			switch run.Status {
			case models.RunStatusRunning:
				completed := now
				run.Status = models.RunStatusFailed
				run.CompletedAt = &completed
				run.Error = "aborted on restart"
				reflectJobStatus(snapshot, run.JobID)
				aborted = append(aborted, run)
			case models.RunStatusQueued:
				requeue = append(requeue, run)
			}
		}
		return nil
	})
	if err != nil {
		return 0, common.WrapError(common.KindInternal, err, "failed to recover interrupted runs")
	}

	for _, run := range aborted {
		body := fmt.Sprintf("time: %s\nerror: %s\n", time.Now().UTC().Format(time.RFC3339), run.Error)
		if _, err := s.registry.Commit(ctx, run.ID, models.ArtifactTypeLog, "Aborted on restart", "logs/run.log", []byte(body)); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to commit abort log")
		}
		s.events.Append(ctx, run.ID, "", "error", "Run aborted: process restarted mid-run")
		s.logger.Warn().Str("run_id", run.ID).Str("job_id", run.JobID).Msg("Run aborted on restart")
	}

	for _, run := range requeue {
		msg := &models.RunMessage{RunID: run.ID, JobID: run.JobID, EnqueuedAt: run.TriggeredAt}
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to re-enqueue queued run")
		}
	}

	if len(aborted) > 0 || len(requeue) > 0 {
		s.logger.Info().
			Int("aborted", len(aborted)).
			Int("requeued", len(requeue)).
			Msg("Run recovery finished")
	}
	return len(aborted), nil
}

func (s *Service) ackQuiet(runID string, ack func() error) {
	if err := ack(); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to ack run message")
	}
}

// reflectJobStatus mirrors run outcomes onto the owning job. The job
// stays active while any of its runs is queued or running; otherwise it
// takes the outcome of the most recently triggered run.
func reflectJobStatus(snapshot *models.StorageSnapshot, jobID string) {
	job := snapshot.FindJob(jobID)
	if job == nil {
		return
	}

	var latest *models.Run
	for _, run := range snapshot.RunsForJob(jobID) {
		if !run.IsTerminal() {
			job.Status = models.JobStatusActive
			return
		}
		if latest == nil || run.TriggeredAt.After(latest.TriggeredAt) {
			latest = run
		}
	}
	if latest == nil {
		return
	}

	switch latest.Status {
	case models.RunStatusCompleted:
		job.Status = models.JobStatusCompleted
	case models.RunStatusFailed:
		job.Status = models.JobStatusFailed
	}
	job.UpdatedAt = time.Now().UTC()
}
