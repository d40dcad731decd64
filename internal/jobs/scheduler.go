package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pulse/internal/apperrors"
	"pulse/internal/config"
	"pulse/internal/flush"
)

const (
	jobFlush   = "flush"
	jobArchive = "archive"
	jobQueueGC = "queue_gc"

	// DefaultGCInterval is how often the durable queue reclaims space.
	DefaultGCInterval = 10 * time.Minute
	gcDiscardRatio    = 0.5
	archiveTimeout    = 10 * time.Minute
)

// Flusher drains the write buffer into the primary store.
type Flusher interface {
	Flush(ctx context.Context) flush.Result
}

// Archiver rolls expired page views into archive buckets.
type Archiver interface {
	Archive(ctx context.Context) error
}

// GarbageCollector reclaims queue storage. Optional.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// Options controls job cadence.
type Options struct {
	FlushInterval   time.Duration
	ArchiveSchedule string
	GCInterval      time.Duration
}

// OptionsFromConfig reads job cadence from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FlushInterval:   cfg.FlushInterval(),
		ArchiveSchedule: cfg.ArchiveSchedule,
		GCInterval:      DefaultGCInterval,
	}
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	flusher  Flusher
	archiver Archiver
	gc       GarbageCollector
	opts     Options
	logger   *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool

	// Guards against a job overlapping its own previous run
	processingMutex sync.Mutex
	processing      map[string]bool

	flushTicker *time.Ticker
	gcTicker    *time.Ticker
	schedule    cron.Schedule
	cron        *cron.Cron
	wg          sync.WaitGroup
}

func NewScheduler(flusher Flusher, archiver Archiver, gc GarbageCollector, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if opts.FlushInterval <= 0 {
		return nil, &apperrors.ConfigError{Key: "FlushIntervalSeconds", Value: opts.FlushInterval.String(), Err: fmt.Errorf("must be positive")}
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = DefaultGCInterval
	}

	schedule, err := cron.ParseStandard(opts.ArchiveSchedule)
	if err != nil {
		return nil, &apperrors.ConfigError{Key: "ArchiveSchedule", Value: opts.ArchiveSchedule, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		flusher:    flusher,
		archiver:   archiver,
		gc:         gc,
		opts:       opts,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		processing: make(map[string]bool),
		schedule:   schedule,
		cron:       cron.New(),
	}, nil
}

// executeJobSafely runs a job only if its previous run has finished
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.processing[jobName] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.processing[jobName] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.processing[jobName] = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		s.executeJobSafely(jobArchive, s.RunArchive)
	}))

	s.isRunning = true
	s.startFlushJob()
	if s.gc != nil {
		s.startQueueGCJob()
	}
	s.cron.Start()

	s.logger.Info("Background jobs started",
		slog.Duration("flush_interval", s.opts.FlushInterval),
		slog.String("archive_schedule", s.opts.ArchiveSchedule))

	return nil
}

func (s *Scheduler) startFlushJob() {
	s.flushTicker = time.NewTicker(s.opts.FlushInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Drain whatever a previous process left in a durable queue
		s.executeJobSafely(jobFlush, s.RunFlush)

		for {
			select {
			case <-s.flushTicker.C:
				s.executeJobSafely(jobFlush, s.RunFlush)
			case <-s.ctx.Done():
				s.logger.Info("Flush job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startQueueGCJob() {
	s.gcTicker = time.NewTicker(s.opts.GCInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.gcTicker.C:
				s.executeJobSafely(jobQueueGC, func() error {
					return s.gc.RunGC(gcDiscardRatio)
				})
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// RunFlush drains the queue once.
func (s *Scheduler) RunFlush() error {
	return s.flusher.Flush(s.ctx).Err
}

// RunArchive archives expired page views once.
func (s *Scheduler) RunArchive() error {
	ctx, cancel := context.WithTimeout(s.ctx, archiveTimeout)
	defer cancel()
	return s.archiver.Archive(ctx)
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}
	if s.gcTicker != nil {
		s.gcTicker.Stop()
	}
	<-s.cron.Stop().Done()

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
