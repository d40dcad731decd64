package archive

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/events"
	"pulse/internal/settings"
	"pulse/internal/telemetry"
	"pulse/internal/timeframe"
)

// Engine moves page views older than the precision window into archive buckets.
type Engine struct {
	events       events.Store
	store        Store
	settings     settings.Getter
	cleaner      *Cleaner
	timeProvider timeframe.TimeProvider
	metrics      *telemetry.PipelineMetrics
	logger       *slog.Logger
}

type Option func(*Engine)

// WithTimeProvider replaces the system clock.
func WithTimeProvider(tp timeframe.TimeProvider) Option {
	return func(e *Engine) { e.timeProvider = tp }
}

func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(eventStore events.Store, store Store, getter settings.Getter, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		events:       eventStore,
		store:        store,
		settings:     getter,
		timeProvider: &timeframe.DefaultTimeProvider{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cleaner = NewCleaner(store, logger, e.metrics)
	return e
}

// Cleaner returns the retention cleaner run at the end of every archival pass.
func (e *Engine) Cleaner() *Cleaner {
	return e.cleaner
}

// Archive recomputes the bucket of every (path, date) that has page views
// below the archive boundary, deletes those page views, then expires old
// buckets. Buckets are overwritten, never merged, so a run that finds no
// qualifying page views changes nothing.
func (e *Engine) Archive(ctx context.Context) error {
	cfg := settings.LoadAnalytics(e.settings, e.logger)
	if !cfg.Enabled || cfg.PrecisionDays == 0 {
		return nil
	}

	now := e.timeProvider.Now(cfg.Location)
	boundary := timeframe.DaysBefore(now, cfg.PrecisionDays, cfg.Location)

	views, err := e.events.EventsBefore(ctx, boundary)
	if err != nil {
		return fmt.Errorf("failed to load page views to archive: %w", err)
	}

	if len(views) > 0 {
		buckets, ids := Rollup(views, cfg.Location)
		if err := e.store.ReplaceBuckets(ctx, buckets, ids); err != nil {
			return fmt.Errorf("failed to write archive buckets: %w", err)
		}
		e.metrics.Archived(ctx, int64(len(ids)), int64(len(buckets)))
		e.logger.Info("Archived page views",
			slog.Int("events", len(ids)),
			slog.Int("buckets", len(buckets)),
			slog.Time("boundary", boundary),
			slog.String("timezone", cfg.Timezone))
	}

	if _, err := e.cleaner.Cleanup(ctx, cfg.RetentionDays, timeframe.StartOfDay(now, cfg.Location)); err != nil {
		return fmt.Errorf("failed to expire archive buckets: %w", err)
	}
	return nil
}
