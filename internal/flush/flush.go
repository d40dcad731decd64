// Package flush drains the write queue into the primary store.
package flush

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"pulse/internal/events"
	"pulse/internal/queue"
	"pulse/internal/telemetry"
)

// Archiver rolls old page views into archive buckets.
type Archiver interface {
	Archive(ctx context.Context) error
}

// Result summarises one flush run.
type Result struct {
	// Peeked is the number of queue entries read.
	Peeked int
	// Invalid entries could not be decoded. They are trimmed with the rest.
	Invalid  int
	Inserted int64
	Paths    int
	// Trimmed is true when the window was removed from the queue.
	Trimmed  bool
	Duration time.Duration
	// Err is the first failing step. The queue is left untrimmed when set.
	Err error

	run uint64
}

// Flusher moves batches from the queue into the primary store. Concurrent
// Flush calls share a single run, but a caller never settles for a run that
// started before it called.
type Flusher struct {
	queue     queue.Queue
	store     events.Store
	archiver  Archiver
	batchSize int
	metrics   *telemetry.PipelineMetrics
	logger    *slog.Logger

	group   singleflight.Group
	started atomic.Uint64
}

type Option func(*Flusher)

func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(f *Flusher) { f.metrics = m }
}

func NewFlusher(q queue.Queue, store events.Store, archiver Archiver, batchSize int, logger *slog.Logger, opts ...Option) *Flusher {
	if batchSize < 1 {
		batchSize = 1
	}
	f := &Flusher{
		queue:     q,
		store:     store,
		archiver:  archiver,
		batchSize: batchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flush processes one batch. Failures are logged and reported in Result.Err;
// a failed run leaves the batch queued for the next run.
func (f *Flusher) Flush(ctx context.Context) Result {
	seen := f.started.Load()
	result := f.shared(ctx)
	if result.run > seen {
		return result
	}
	// The shared run may have peeked before this caller's events were queued.
	// Any run in flight now started after this call.
	return f.shared(ctx)
}

func (f *Flusher) shared(ctx context.Context) Result {
	v, _, _ := f.group.Do("flush", func() (any, error) {
		return f.run(ctx), nil
	})
	return v.(Result)
}

// TriggerFlush starts a flush in the background and returns immediately.
func (f *Flusher) TriggerFlush() {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("Panic recovered in background flush", slog.Any("panic", r))
			}
		}()
		f.Flush(context.Background())
	}()
}

func (f *Flusher) run(ctx context.Context) (result Result) {
	result.run = f.started.Add(1)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("flush panicked: %v", r)
			result.Trimmed = false
			f.logger.Error("Panic recovered during flush", slog.Any("panic", r))
		}
		result.Duration = time.Since(start)
	}()

	fail := func(step string, err error) Result {
		f.logger.Error("Flush failed, batch left queued",
			slog.String("step", step),
			slog.Int("entries", result.Peeked),
			slog.Any("error", err))
		f.metrics.FlushFailed(ctx, step)
		result.Err = fmt.Errorf("failed to %s: %w", step, err)
		return result
	}

	entries, err := f.queue.Peek(ctx, f.batchSize)
	if err != nil {
		return fail("peek queue", err)
	}
	result.Peeked = len(entries)
	if len(entries) == 0 {
		return result
	}

	views, invalid := decode(entries)
	result.Invalid = invalid
	if invalid > 0 {
		f.logger.Warn("Dropping undecodable queue entries", slog.Int("count", invalid))
		f.metrics.Dropped(ctx, "decode", int64(invalid))
	}

	inserted, err := f.store.InsertSkipDuplicates(ctx, views)
	if err != nil {
		return fail("insert page views", err)
	}
	result.Inserted = inserted

	counts := PathCounts(views)
	result.Paths = len(counts)
	if err := f.store.IncrementViewCounts(ctx, counts); err != nil {
		return fail("increment view counts", err)
	}

	if f.archiver != nil {
		if err := f.archiver.Archive(ctx); err != nil {
			return fail("archive", err)
		}
	}

	if err := f.queue.Trim(ctx, queue.LastSeq(entries)); err != nil {
		return fail("trim queue", err)
	}
	result.Trimmed = true

	f.metrics.Flushed(ctx, inserted)
	f.logger.Info("Flushed page views",
		slog.Int("entries", result.Peeked),
		slog.Int64("inserted", inserted),
		slog.Int("invalid", invalid),
		slog.Int("paths", result.Paths))

	return result
}

func decode(entries []queue.Entry) ([]events.PageView, int) {
	views := make([]events.PageView, 0, len(entries))
	invalid := 0
	for _, e := range entries {
		var pv events.PageView
		if err := json.Unmarshal(e.Payload, &pv); err != nil || pv.Path == "" {
			invalid++
			continue
		}
		pv.ID = 0
		if pv.EventHash == "" {
			pv.ComputeHash()
		}
		views = append(views, pv)
	}
	return views, invalid
}

// PathCounts returns the number of views per path in a batch.
func PathCounts(views []events.PageView) map[string]int64 {
	counts := make(map[string]int64)
	for i := range views {
		counts[views[i].Path]++
	}
	return counts
}
