// Package internal wires the pulse pipeline into a cartridge application.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"pulse/internal/analytics"
	"pulse/internal/archive"
	"pulse/internal/config"
	"pulse/internal/database"
	"pulse/internal/events"
	"pulse/internal/flush"
	"pulse/internal/ingest"
	"pulse/internal/jobs"
	"pulse/internal/pkg/geoip"
	"pulse/internal/pkg/user_agent"
	"pulse/internal/queue"
	"pulse/internal/settings"
	"pulse/internal/telemetry"
)

// Pipeline holds every component between the tracking endpoint and the
// analytics queries. It is shared by the server and the pulsectl commands.
type Pipeline struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager cartridge.DBManager

	Queue     *queue.BadgerQueue
	Settings  *settings.Store
	Geo       *geoip.Resolver
	Events    *events.GormStore
	Buckets   *archive.GormStore
	Archiver  *archive.Engine
	Flusher   *flush.Flusher
	Ingestor  *ingest.Ingestor
	Analytics *analytics.Engine
}

// NewPipeline opens the write buffer and builds the pipeline on top of an
// initialized, migrated database.
func NewPipeline(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) (*Pipeline, error) {
	metrics, err := telemetry.DefaultPipelineMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	settingsStore := settings.NewStore(dbManager, logger)
	if err := settingsStore.SetupDefaults(context.Background(), settings.AnalyticsDefaults(cfg)); err != nil {
		return nil, fmt.Errorf("failed to seed default settings: %w", err)
	}

	uaParser, err := user_agent.NewParser(logger)
	if err != nil {
		logger.Warn("User agent rules partially loaded", slog.Any("error", err))
	}

	q, err := queue.OpenBadgerQueue(queue.BadgerConfig{
		Dir:      cfg.QueueDirectory,
		InMemory: cfg.QueueInMemory,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	eventStore := events.NewGormStore(dbManager, logger)
	bucketStore := archive.NewGormStore(dbManager, logger)
	archiver := archive.NewEngine(eventStore, bucketStore, settingsStore, logger, archive.WithMetrics(metrics))
	flusher := flush.NewFlusher(q, eventStore, archiver, cfg.BatchSize, logger, flush.WithMetrics(metrics))
	geo := geoip.Open(cfg.GeoDBPath, logger)

	ingestor := ingest.NewIngestor(q, geo, uaParser, flusher, ingest.Config{
		FlushThreshold:  cfg.FlushThreshold,
		PushMaxAttempts: cfg.PushMaxAttempts,
		PushRetryDelay:  cfg.PushRetryDelay(),
		Secret:          cfg.GetSessionSecret(),
	}, logger, ingest.WithMetrics(metrics))

	return &Pipeline{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Queue:     q,
		Settings:  settingsStore,
		Geo:       geo,
		Events:    eventStore,
		Buckets:   bucketStore,
		Archiver:  archiver,
		Flusher:   flusher,
		Ingestor:  ingestor,
		Analytics: analytics.NewEngine(eventStore, bucketStore, flusher, logger,
			analytics.WithReadRetry(cfg.ReadMaxAttempts, cfg.ReadRetryDelay())),
	}, nil
}

// Close releases the queue and the GeoIP database.
func (p *Pipeline) Close() error {
	return errors.Join(p.Queue.Close(), p.Geo.Close())
}

// Application wraps cartridge.Application with the pulse pipeline.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Pipeline  *Pipeline
	Scheduler *jobs.Scheduler
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig initializes the database, builds the pipeline and mounts
// the pulse routes.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager, err := OpenDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewPipeline(cfg, dbManager, logger)
	if err != nil {
		return nil, err
	}

	scheduler, err := jobs.NewScheduler(pipeline.Flusher, pipeline.Archiver, pipeline.Queue, jobs.OptionsFromConfig(cfg), logger)
	if err != nil {
		pipeline.Close()
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountRoutes(pipeline),
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		pipeline.Close()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Pipeline:    pipeline,
		Scheduler:   scheduler,
	}, nil
}

// OpenDatabase connects to the configured database and migrates the schema.
func OpenDatabase(cfg *config.Config, logger *slog.Logger) (*database.DBManager, error) {
	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return dbManager, nil
}

// Shutdown stops the server and background jobs, then closes the pipeline.
func (a *Application) Shutdown(ctx context.Context) error {
	return errors.Join(a.Application.Shutdown(ctx), a.Pipeline.Close())
}
