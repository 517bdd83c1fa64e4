package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/models"
	"github.com/ternarybob/paritas/internal/queue"
	"github.com/ternarybob/paritas/internal/services/events"
	"github.com/ternarybob/paritas/internal/services/jobs"
	"github.com/ternarybob/paritas/internal/storage/artifacts"
	"github.com/ternarybob/paritas/internal/storage/badger"
	"github.com/ternarybob/paritas/internal/storage/snapshot"
)

// Stage fakes record calls and return a small healthy result unless a
// test installs its own hook.

type fakeCrawl struct {
	calls atomic.Int32
	fn    func(context.Context, *models.ComparisonJob) (*models.PageMatchResult, *models.CrawlSiteResult, *models.CrawlSiteResult, error)
}

func (f *fakeCrawl) Discover(ctx context.Context, job *models.ComparisonJob) (*models.PageMatchResult, *models.CrawlSiteResult, *models.CrawlSiteResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, job)
	}
	return matchedPages(), siteResult(job.BaselineURL), siteResult(job.CandidateURL), nil
}

type fakeCapture struct {
	calls atomic.Int32
	fn    func(context.Context, string, *models.ComparisonJob, []models.MatchedPage, interfaces.BrowserContext, interfaces.BrowserContext) (*models.CaptureResult, error)
}

func (f *fakeCapture) Capture(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate interfaces.BrowserContext) (*models.CaptureResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, runID, job, matches, baseline, candidate)
	}
	return &models.CaptureResult{PagesCaptured: len(matches)}, nil
}

type fakeVisual struct {
	calls atomic.Int32
	fn    func(context.Context, string, *models.CaptureResult) (*models.VisualResult, error)
}

func (f *fakeVisual) Compare(ctx context.Context, runID string, capture *models.CaptureResult) (*models.VisualResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, runID, capture)
	}
	return &models.VisualResult{Summary: models.VisualSummary{PagesCompared: capture.PagesCaptured}}, nil
}

type fakeFunctional struct {
	calls atomic.Int32
	fn    func(context.Context, string, *models.ComparisonJob, []models.MatchedPage, interfaces.BrowserContext, interfaces.BrowserContext) (*models.FunctionalResult, error)
}

func (f *fakeFunctional) Check(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate interfaces.BrowserContext) (*models.FunctionalResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, runID, job, matches, baseline, candidate)
	}
	return &models.FunctionalResult{
		Baseline:  models.FunctionalSideSummary{PagesChecked: len(matches)},
		Candidate: models.FunctionalSideSummary{PagesChecked: len(matches)},
	}, nil
}

type fakeData struct {
	calls atomic.Int32
	fn    func(context.Context, string, *models.CaptureResult) (*models.DataResult, error)
}

func (f *fakeData) Compare(ctx context.Context, runID string, capture *models.CaptureResult) (*models.DataResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, runID, capture)
	}
	return &models.DataResult{Summary: models.DataSummary{PagesCompared: capture.PagesCaptured}}, nil
}

type fakeReasoning struct {
	calls atomic.Int32
	mu    sync.Mutex
	last  *models.DiffSummary
	fn    func(context.Context, *models.DiffSummary) (*models.ReasoningAnalysis, error)
}

func (f *fakeReasoning) Analyze(ctx context.Context, summary *models.DiffSummary) (*models.ReasoningAnalysis, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = summary
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, summary)
	}
	return &models.ReasoningAnalysis{
		Overall: models.OverallAnalysis{Severity: models.SeverityNone, Confidence: 0.9, Pass: true},
		Source:  models.ReasonerSourceRules,
	}, nil
}

func (f *fakeReasoning) lastSummary() *models.DiffSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeReport struct {
	calls atomic.Int32
	fn    func(context.Context, string, *models.ComparisonJob, *models.ReasoningAnalysis, *models.DiffSummary) (*models.MigrationReport, error)
}

func (f *fakeReport) Generate(ctx context.Context, runID string, job *models.ComparisonJob, analysis *models.ReasoningAnalysis, summary *models.DiffSummary) (*models.MigrationReport, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, runID, job, analysis, summary)
	}
	return &models.MigrationReport{
		RunID:     runID,
		JobID:     job.ID,
		Executive: models.ExecutiveSummary{Decision: models.DecisionGo},
	}, nil
}

type stageFakes struct {
	crawl      *fakeCrawl
	capture    *fakeCapture
	visual     *fakeVisual
	functional *fakeFunctional
	data       *fakeData
	reasoning  *fakeReasoning
	report     *fakeReport
}

func newStageFakes() *stageFakes {
	return &stageFakes{
		crawl:      &fakeCrawl{},
		capture:    &fakeCapture{},
		visual:     &fakeVisual{},
		functional: &fakeFunctional{},
		data:       &fakeData{},
		reasoning:  &fakeReasoning{},
		report:     &fakeReport{},
	}
}

func (f *stageFakes) stages() Stages {
	return Stages{
		Crawl:      f.crawl,
		Capture:    f.capture,
		Visual:     f.visual,
		Functional: f.functional,
		Data:       f.data,
		Reasoning:  f.reasoning,
		Report:     f.report,
	}
}

type fakeDriver struct {
	opened atomic.Int32
	closed atomic.Int32
	fail   bool
}

func (d *fakeDriver) NewContext(ctx context.Context) (interfaces.BrowserContext, error) {
	if d.fail {
		return nil, errors.New("browser unreachable")
	}
	d.opened.Add(1)
	return &fakeBrowserContext{driver: d}, nil
}

func (d *fakeDriver) HealthCheck(ctx context.Context) error { return nil }
func (d *fakeDriver) Close() error                          { return nil }

type fakeBrowserContext struct {
	driver *fakeDriver
}

func (c *fakeBrowserContext) NewPage(ctx context.Context) (interfaces.PageSession, error) {
	return nil, errors.New("fake context has no pages")
}

func (c *fakeBrowserContext) Close() error {
	c.driver.closed.Add(1)
	return nil
}

func pageDescriptor(url, path string) models.PageDescriptor {
	return models.PageDescriptor{URL: url, NormalizedPath: path, Status: 200}
}

func matchedPages() *models.PageMatchResult {
	return &models.PageMatchResult{
		Matches: []models.MatchedPage{
			{
				Baseline:   pageDescriptor("https://www.example.com/", "/"),
				Candidate:  pageDescriptor("https://beta.example.com/", "/"),
				Confidence: 1,
				Reason:     "exact path",
			},
			{
				Baseline:   pageDescriptor("https://www.example.com/about", "/about"),
				Candidate:  pageDescriptor("https://beta.example.com/about", "/about"),
				Confidence: 1,
				Reason:     "exact path",
			},
		},
	}
}

func siteResult(seed string) *models.CrawlSiteResult {
	return &models.CrawlSiteResult{
		Seed:  seed,
		Pages: []models.PageDescriptor{pageDescriptor(seed+"/", "/"), pageDescriptor(seed+"/about", "/about")},
	}
}

type pipelineEnv struct {
	svc    *Service
	jobs   *jobs.Service
	store  *snapshot.Store
	queue  *queue.RunQueue
	events *events.Service
	fakes  *stageFakes
	driver *fakeDriver
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	logger := common.GetLogger()

	store, err := snapshot.NewStore(logger, t.TempDir())
	require.NoError(t, err)
	registry := artifacts.NewRegistry(logger, store)

	db, err := badger.NewBadgerDB(logger, filepath.Join(t.TempDir(), "paritas.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventService := events.NewService(badger.NewEventStorage(db, logger), logger)
	require.NoError(t, eventService.Start())
	t.Cleanup(func() { eventService.Stop() })

	runQueue, err := queue.NewRunQueue(db.DB(), logger, time.Minute, 3)
	require.NoError(t, err)

	fakes := newStageFakes()
	driver := &fakeDriver{}
	cfg := common.PipelineConfig{
		Workers:        1,
		JobConcurrency: 1,
		StageTimeout:   "5s",
		PollInterval:   "10ms",
	}
	svc := NewService(cfg, store, registry, eventService, runQueue, driver, fakes.stages(), logger)
	t.Cleanup(func() { svc.Stop() })

	return &pipelineEnv{
		svc:    svc,
		jobs:   jobs.NewService(store, registry, eventService, runQueue, logger),
		store:  store,
		queue:  runQueue,
		events: eventService,
		fakes:  fakes,
		driver: driver,
	}
}

func (env *pipelineEnv) createJob(t *testing.T, mutate func(*models.ComparisonJob)) *models.ComparisonJob {
	t.Helper()
	job := &models.ComparisonJob{
		Name:         "Storefront cutover",
		BaselineURL:  "https://www.example.com",
		CandidateURL: "https://beta.example.com",
	}
	if mutate != nil {
		mutate(job)
	}
	created, err := env.jobs.CreateJob(context.Background(), job)
	require.NoError(t, err)
	return created
}

func (env *pipelineEnv) enqueueRun(t *testing.T, jobID string) *models.Run {
	t.Helper()
	run, err := env.jobs.EnqueueRun(context.Background(), jobID, "test")
	require.NoError(t, err)
	return run
}

func (env *pipelineEnv) getRun(t *testing.T, runID string) *models.Run {
	t.Helper()
	run, err := env.jobs.GetRun(context.Background(), runID)
	require.NoError(t, err)
	return run
}

func (env *pipelineEnv) getJob(t *testing.T, jobID string) *models.ComparisonJob {
	t.Helper()
	job, err := env.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

func (env *pipelineEnv) queueLength(t *testing.T) int {
	t.Helper()
	length, err := env.queue.Length(context.Background())
	require.NoError(t, err)
	return length
}

func (env *pipelineEnv) artifactPaths(t *testing.T, runID string) []string {
	t.Helper()
	arts, err := env.jobs.ListRunArtifacts(context.Background(), runID)
	require.NoError(t, err)
	paths := make([]string, 0, len(arts))
	for _, artifact := range arts {
		paths = append(paths, artifact.Path)
	}
	return paths
}

func (env *pipelineEnv) eventMessages(t *testing.T, runID string) []string {
	t.Helper()
	evts, err := env.events.GetEvents(context.Background(), runID, 0)
	require.NoError(t, err)
	messages := make([]string, 0, len(evts))
	for _, event := range evts {
		messages = append(messages, event.Message)
	}
	return messages
}

func containsSubstring(items []string, substr string) bool {
	for _, item := range items {
		if strings.Contains(item, substr) {
			return true
		}
	}
	return false
}

func TestExecuteRun_HappyPath(t *testing.T) {
	env := newPipelineEnv(t)
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)

	assert.Equal(t, models.JobStatusCompleted, env.getJob(t, job.ID).Status)
	assert.Zero(t, env.queueLength(t))

	assert.EqualValues(t, 1, env.fakes.crawl.calls.Load())
	assert.EqualValues(t, 1, env.fakes.capture.calls.Load())
	assert.EqualValues(t, 1, env.fakes.visual.calls.Load())
	assert.EqualValues(t, 1, env.fakes.functional.calls.Load())
	assert.EqualValues(t, 1, env.fakes.data.calls.Load())
	assert.EqualValues(t, 1, env.fakes.reasoning.calls.Load())
	assert.EqualValues(t, 1, env.fakes.report.calls.Load())

	summary := env.fakes.reasoning.lastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.PagesTested)
	assert.NotNil(t, summary.Visual)
	assert.NotNil(t, summary.Functional)
	assert.NotNil(t, summary.Data)
	assert.Empty(t, summary.Unavailable)

	prefix := "data/artifacts/" + run.ID + "/"
	paths := env.artifactPaths(t, run.ID)
	assert.Contains(t, paths, prefix+"crawl/matches.json")
	assert.Contains(t, paths, prefix+"crawl/page-map.json")
	assert.Contains(t, paths, prefix+"crawl/baseline.json")
	assert.Contains(t, paths, prefix+"crawl/candidate.json")
	assert.Contains(t, paths, prefix+"diff-summary.json")
	assert.Contains(t, paths, prefix+"reasoning.json")

	messages := env.eventMessages(t, run.ID)
	assert.True(t, containsSubstring(messages, "Run started"), "events: %v", messages)
	assert.True(t, containsSubstring(messages, "Run completed"), "events: %v", messages)

	assert.EqualValues(t, 2, env.driver.opened.Load())
	assert.EqualValues(t, 2, env.driver.closed.Load())
}

func TestExecuteRun_CrawlFailureIsFatal(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.crawl.fn = func(context.Context, *models.ComparisonJob) (*models.PageMatchResult, *models.CrawlSiteResult, *models.CrawlSiteResult, error) {
		return nil, nil, nil, errors.New("connection refused")
	}
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "crawl: connection refused", got.Error)

	assert.Equal(t, models.JobStatusFailed, env.getJob(t, job.ID).Status)
	assert.Zero(t, env.queueLength(t))
	assert.Zero(t, env.fakes.capture.calls.Load())
	assert.Zero(t, env.driver.opened.Load())

	paths := env.artifactPaths(t, run.ID)
	assert.Contains(t, paths, "data/artifacts/"+run.ID+"/logs/crawl.log")

	messages := env.eventMessages(t, run.ID)
	assert.True(t, containsSubstring(messages, "Run failed at crawl: connection refused"), "events: %v", messages)
}

func TestExecuteRun_NoMatchesIsFatal(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.crawl.fn = func(ctx context.Context, job *models.ComparisonJob) (*models.PageMatchResult, *models.CrawlSiteResult, *models.CrawlSiteResult, error) {
		return &models.PageMatchResult{}, siteResult(job.BaselineURL), siteResult(job.CandidateURL), nil
	}
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no comparable pages matched")
	assert.Zero(t, env.fakes.capture.calls.Load())
}

func TestExecuteRun_DiffFailureDegrades(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.visual.fn = func(context.Context, string, *models.CaptureResult) (*models.VisualResult, error) {
		return nil, errors.New("pixel buffer overflow")
	}
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, got.Status)

	summary := env.fakes.reasoning.lastSummary()
	require.NotNil(t, summary)
	assert.Nil(t, summary.Visual)
	assert.NotNil(t, summary.Functional)
	assert.NotNil(t, summary.Data)
	assert.Equal(t, []string{models.StageVisual}, summary.Unavailable)

	paths := env.artifactPaths(t, run.ID)
	assert.Contains(t, paths, "data/artifacts/"+run.ID+"/logs/visual.log")

	messages := env.eventMessages(t, run.ID)
	assert.True(t, containsSubstring(messages, "Stage unavailable: pixel buffer overflow"), "events: %v", messages)
}

func TestExecuteRun_MatrixDisablesStages(t *testing.T) {
	env := newPipelineEnv(t)
	job := env.createJob(t, func(job *models.ComparisonJob) {
		job.TestMatrix = models.TestMatrix{Visual: true}
	})
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, got.Status)

	assert.EqualValues(t, 1, env.fakes.visual.calls.Load())
	assert.Zero(t, env.fakes.functional.calls.Load())
	assert.Zero(t, env.fakes.data.calls.Load())

	summary := env.fakes.reasoning.lastSummary()
	require.NotNil(t, summary)
	assert.NotNil(t, summary.Visual)
	assert.Nil(t, summary.Functional)
	assert.Nil(t, summary.Data)
	assert.Empty(t, summary.Unavailable)
}

func TestExecuteRun_DuplicateDeliverySkipped(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	// A second message for the same run, as if the visibility timeout
	// redelivered it.
	require.NoError(t, env.queue.Enqueue(ctx, &models.RunMessage{RunID: run.ID, JobID: job.ID, EnqueuedAt: time.Now()}))

	env.svc.poll(0)
	env.svc.poll(0)

	assert.EqualValues(t, 1, env.fakes.crawl.calls.Load())
	assert.Zero(t, env.queueLength(t))
	assert.Equal(t, models.RunStatusCompleted, env.getRun(t, run.ID).Status)
}

func TestExecuteRun_JobDeletedBeforeClaim(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	require.NoError(t, env.jobs.DeleteJob(ctx, job.ID))

	env.svc.poll(0)

	assert.Zero(t, env.fakes.crawl.calls.Load())
	assert.Zero(t, env.queueLength(t))
	_, err := env.jobs.GetRun(ctx, run.ID)
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestExecuteRun_OrphanRunFails(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	// A run row whose job vanished without the cascade. The claim
	// records the failure instead of executing.
	orphan := &models.Run{
		ID:          "run_orphan",
		JobID:       "job_ghost",
		Status:      models.RunStatusQueued,
		TriggeredBy: "api",
		TriggeredAt: time.Now().UTC(),
	}
	require.NoError(t, env.store.Update(ctx, func(s *models.StorageSnapshot) error {
		s.Runs = append(s.Runs, orphan)
		return nil
	}))
	require.NoError(t, env.queue.Enqueue(ctx, &models.RunMessage{RunID: orphan.ID, JobID: orphan.JobID, EnqueuedAt: time.Now()}))

	env.svc.poll(0)

	got := env.getRun(t, orphan.ID)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "job deleted before run started", got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.Zero(t, env.fakes.crawl.calls.Load())
	assert.Zero(t, env.queueLength(t))
}

func TestExecuteRun_DiffPanicDegrades(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.data.fn = func(context.Context, string, *models.CaptureResult) (*models.DataResult, error) {
		panic("corrupt comparison table")
	}
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, got.Status)

	summary := env.fakes.reasoning.lastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, []string{models.StageData}, summary.Unavailable)

	paths := env.artifactPaths(t, run.ID)
	assert.Contains(t, paths, "data/artifacts/"+run.ID+"/logs/data.log")
}

func TestExecuteRun_ReportPanicFails(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.report.fn = func(context.Context, string, *models.ComparisonJob, *models.ReasoningAnalysis, *models.DiffSummary) (*models.MigrationReport, error) {
		panic("template blew up")
	}
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	env.svc.poll(0)

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "report stage panicked")
}

func TestCancelRun(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.capture.fn = func(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate interfaces.BrowserContext) (*models.CaptureResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.svc.poll(0)
	}()

	require.Eventually(t, func() bool {
		return env.svc.CancelRun(run.ID)
	}, 2*time.Second, 10*time.Millisecond, "run never registered as active")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "capture: cancelled", got.Error)

	assert.False(t, env.svc.CancelRun(run.ID), "terminal run should no longer be active")
	assert.Equal(t, env.driver.opened.Load(), env.driver.closed.Load())
}

func TestRecover(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	job := env.createJob(t, nil)

	now := time.Now().UTC()
	completed := now.Add(-90 * time.Minute)
	planted := []*models.Run{
		{ID: "run_stuck", JobID: job.ID, Status: models.RunStatusRunning, TriggeredBy: "api", TriggeredAt: now.Add(-time.Hour)},
		{ID: "run_waiting", JobID: job.ID, Status: models.RunStatusQueued, TriggeredBy: "schedule", TriggeredAt: now.Add(-time.Minute)},
		{ID: "run_done", JobID: job.ID, Status: models.RunStatusCompleted, TriggeredBy: "api", TriggeredAt: now.Add(-2 * time.Hour), CompletedAt: &completed},
	}
	require.NoError(t, env.store.Update(ctx, func(s *models.StorageSnapshot) error {
		s.Runs = append(s.Runs, planted...)
		return nil
	}))

	count, err := env.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stuck := env.getRun(t, "run_stuck")
	assert.Equal(t, models.RunStatusFailed, stuck.Status)
	assert.Equal(t, "aborted on restart", stuck.Error)
	require.NotNil(t, stuck.CompletedAt)
	assert.Contains(t, env.artifactPaths(t, "run_stuck"), "data/artifacts/run_stuck/logs/run.log")
	assert.True(t, containsSubstring(env.eventMessages(t, "run_stuck"), "Run aborted"), "missing abort event")

	assert.Equal(t, models.RunStatusQueued, env.getRun(t, "run_waiting").Status)
	assert.Equal(t, 1, env.queueLength(t))
	assert.Equal(t, models.RunStatusCompleted, env.getRun(t, "run_done").Status)

	// The queued run keeps the job active until it finishes.
	assert.Equal(t, models.JobStatusActive, env.getJob(t, job.ID).Status)

	env.svc.poll(0)

	assert.Equal(t, models.RunStatusCompleted, env.getRun(t, "run_waiting").Status)
	assert.Zero(t, env.queueLength(t))
	assert.Equal(t, models.JobStatusCompleted, env.getJob(t, job.ID).Status)
}

func TestRecover_Idempotent(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	count, err := env.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPoll_BusyJobRequeued(t *testing.T) {
	env := newPipelineEnv(t)
	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	release, ok := env.svc.acquireJobSlot(job.ID)
	require.True(t, ok)

	env.svc.poll(0)

	assert.Zero(t, env.fakes.crawl.calls.Load())
	assert.Equal(t, 1, env.queueLength(t), "run should be requeued behind the busy job")
	assert.Equal(t, models.RunStatusQueued, env.getRun(t, run.ID).Status)

	release()
	env.svc.poll(0)

	assert.Equal(t, models.RunStatusCompleted, env.getRun(t, run.ID).Status)
	assert.Zero(t, env.queueLength(t))
}

func TestStartStop_WorkersDrainQueue(t *testing.T) {
	env := newPipelineEnv(t)
	require.NoError(t, env.svc.Start())
	require.NoError(t, env.svc.Start(), "second start should be a no-op")

	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	require.Eventually(t, func() bool {
		got, err := env.jobs.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == models.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, env.svc.Stop())
}

func TestStop_FailsInFlightRunAsCancelled(t *testing.T) {
	env := newPipelineEnv(t)
	env.fakes.capture.fn = func(ctx context.Context, runID string, job *models.ComparisonJob, matches []models.MatchedPage, baseline, candidate interfaces.BrowserContext) (*models.CaptureResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	require.NoError(t, env.svc.Start())

	job := env.createJob(t, nil)
	run := env.enqueueRun(t, job.ID)

	require.Eventually(t, func() bool {
		got, err := env.jobs.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == models.RunStatusRunning
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, env.svc.Stop())

	got := env.getRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "capture: cancelled", got.Error)
}
