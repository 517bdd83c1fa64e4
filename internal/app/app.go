package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/paritas/internal/common"
	"github.com/ternarybob/paritas/internal/handlers"
	"github.com/ternarybob/paritas/internal/interfaces"
	"github.com/ternarybob/paritas/internal/queue"
	"github.com/ternarybob/paritas/internal/services/browser"
	"github.com/ternarybob/paritas/internal/services/capture"
	"github.com/ternarybob/paritas/internal/services/crawl"
	"github.com/ternarybob/paritas/internal/services/dataintegrity"
	"github.com/ternarybob/paritas/internal/services/events"
	"github.com/ternarybob/paritas/internal/services/functional"
	jobsvc "github.com/ternarybob/paritas/internal/services/jobs"
	"github.com/ternarybob/paritas/internal/services/llm"
	"github.com/ternarybob/paritas/internal/services/pdf"
	"github.com/ternarybob/paritas/internal/services/pipeline"
	"github.com/ternarybob/paritas/internal/services/reasoning"
	"github.com/ternarybob/paritas/internal/services/report"
	"github.com/ternarybob/paritas/internal/services/scheduler"
	"github.com/ternarybob/paritas/internal/services/seeds"
	"github.com/ternarybob/paritas/internal/services/transform"
	"github.com/ternarybob/paritas/internal/services/visualdiff"
	"github.com/ternarybob/paritas/internal/storage/artifacts"
	"github.com/ternarybob/paritas/internal/storage/badger"
	"github.com/ternarybob/paritas/internal/storage/snapshot"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	Store    *snapshot.Store
	Registry interfaces.ArtifactRegistry
	DB       *badger.BadgerDB
	RunQueue *queue.RunQueue

	// Services
	EventService     interfaces.EventService
	JobService       interfaces.JobService
	LLMService       interfaces.LLMService
	BrowserDriver    *browser.Driver
	PipelineService  interfaces.PipelineService
	SchedulerService interfaces.SchedulerService
	SeedService      interfaces.SeedService

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	RunHandler *handlers.RunHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.start(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("data_dir", cfg.Storage.DataDir).
		Str("llm_provider", app.LLMService.ProviderName()).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the snapshot store, artifact registry, embedded
// Badger database, and the run queue on top of it
func (a *App) initStorage() error {
	store, err := snapshot.NewStore(a.Logger, a.Config.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	a.Store = store
	a.Registry = artifacts.NewRegistry(a.Logger, store)

	badgerPath := a.Config.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(a.Config.Storage.DataDir, "paritas.db")
	}
	db, err := badger.NewBadgerDB(a.Logger, badgerPath, a.Config.Storage.ResetOnStartup)
	if err != nil {
		return fmt.Errorf("failed to open badger database: %w", err)
	}
	a.DB = db

	visibility := common.ParseDuration(a.Config.Pipeline.VisibilityTimeout, 10*time.Minute)
	runQueue, err := queue.NewRunQueue(db.DB(), a.Logger, visibility, a.Config.Pipeline.MaxReceive)
	if err != nil {
		return fmt.Errorf("failed to initialize run queue: %w", err)
	}
	a.RunQueue = runQueue

	a.Logger.Debug().
		Str("data_dir", a.Config.Storage.DataDir).
		Str("badger_path", badgerPath).
		Msg("Storage layer initialized")

	return nil
}

// initServices builds the business services in dependency order: events
// and jobs first, then the browser driver and the stage services that
// hang off it, and finally the pipeline orchestrator that runs them
func (a *App) initServices() error {
	a.EventService = events.NewService(badger.NewEventStorage(a.DB, a.Logger), a.Logger)
	if err := a.EventService.Start(); err != nil {
		return fmt.Errorf("failed to start event service: %w", err)
	}

	a.JobService = jobsvc.NewService(a.Store, a.Registry, a.EventService, a.RunQueue, a.Logger)

	a.BrowserDriver = browser.NewDriver(a.Config.Browser, a.Logger)

	llmService, err := llm.NewService(context.Background(), a.Config.LLM, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.LLMService = llmService

	transformService := transform.NewService(a.Logger)

	stages := pipeline.Stages{
		Crawl:      crawl.NewService(a.BrowserDriver, a.Config.Crawler, a.Logger),
		Capture:    capture.NewService(a.Registry, transformService, a.Config.Browser, a.Logger),
		Visual:     visualdiff.NewService(a.Registry, a.Config.Visual, a.Logger),
		Functional: functional.NewService(a.Registry, a.Logger),
		Data:       dataintegrity.NewService(a.Registry, a.Logger),
		Reasoning:  reasoning.NewService(llmService, a.Config.LLM.TemplatesDir, a.Logger),
		Report:     report.NewService(a.Registry, transformService, pdf.NewService(a.Logger), a.Logger),
	}

	a.PipelineService = pipeline.NewService(a.Config.Pipeline, a.Store, a.Registry, a.EventService, a.RunQueue, a.BrowserDriver, stages, a.Logger)

	a.SchedulerService = scheduler.NewService(a.JobService, a.Logger, a.Config.Scheduler.Enabled)
	a.SeedService = seeds.NewService(a.JobService, a.Logger)

	a.Logger.Debug().Str("llm_provider", llmService.ProviderName()).Msg("Services initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.PipelineService, a.SchedulerService, a.Logger)
	a.RunHandler = handlers.NewRunHandler(a.JobService, a.EventService, a.Logger)
}

// start recovers interrupted runs, begins queue polling, loads seed
// jobs, and brings up the scheduler. Seeds load before the scheduler so
// their cron expressions are picked up by its startup sync.
func (a *App) start() error {
	ctx := context.Background()

	if err := a.RunQueue.Start(); err != nil {
		return fmt.Errorf("failed to start run queue: %w", err)
	}

	aborted, err := a.PipelineService.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if aborted > 0 {
		a.Logger.Info().Int("count", aborted).Msg("Interrupted runs marked failed")
	}

	if err := a.PipelineService.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline workers: %w", err)
	}

	if dir := a.Config.Seeds.JobsDir; dir != "" {
		count, err := a.SeedService.LoadFromDir(ctx, dir)
		if err != nil {
			a.Logger.Warn().Err(err).Str("dir", dir).Msg("Failed to load seed jobs")
		} else if count > 0 {
			a.Logger.Info().Int("count", count).Str("dir", dir).Msg("Seed jobs loaded")
		}
	}

	if err := a.SchedulerService.Start(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to start scheduler")
	}

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	// Stops polling and fails in-flight runs as cancelled.
	if a.PipelineService != nil {
		if err := a.PipelineService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop pipeline workers")
		}
	}

	if a.BrowserDriver != nil {
		if err := a.BrowserDriver.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close browser driver")
		}
	}

	// Flushes buffered run events before the database goes away.
	if a.EventService != nil {
		if err := a.EventService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop event service")
		}
	}

	if a.RunQueue != nil {
		if err := a.RunQueue.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop run queue")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close badger database")
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			return fmt.Errorf("failed to close snapshot store: %w", err)
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
