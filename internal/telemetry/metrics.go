package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// PipelineMetrics are the counters of the ingest -> flush -> archive pipeline.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	EventsIngested otelmetric.Int64Counter
	EventsDropped  otelmetric.Int64Counter
	PushRetries    otelmetric.Int64Counter
	PushFailures   otelmetric.Int64Counter
	FlushBatches   otelmetric.Int64Counter
	EventsFlushed  otelmetric.Int64Counter
	FlushFailures  otelmetric.Int64Counter
	EventsArchived otelmetric.Int64Counter
	BucketsWritten otelmetric.Int64Counter
	BucketsExpired otelmetric.Int64Counter
}

// NewPipelineMetrics creates the pipeline counters on meter.
func NewPipelineMetrics(meter otelmetric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}

	counters := []struct {
		target      *otelmetric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.EventsIngested, "pulse.events.ingested", "Page views accepted into the queue", "{event}"},
		{&m.EventsDropped, "pulse.events.dropped", "Page views discarded before or during flush", "{event}"},
		{&m.PushRetries, "pulse.queue.push.retries", "Queue push attempts retried after a transient failure", "{retry}"},
		{&m.PushFailures, "pulse.queue.push.failures", "Page views lost after exhausting push attempts", "{event}"},
		{&m.FlushBatches, "pulse.flush.batches", "Flush runs that processed a non-empty batch", "{batch}"},
		{&m.EventsFlushed, "pulse.flush.events", "Page views written to the primary store", "{event}"},
		{&m.FlushFailures, "pulse.flush.failures", "Flush runs that left the queue untrimmed", "{failure}"},
		{&m.EventsArchived, "pulse.archive.events", "Raw page views rolled into archive buckets", "{event}"},
		{&m.BucketsWritten, "pulse.archive.buckets.written", "Archive buckets upserted", "{bucket}"},
		{&m.BucketsExpired, "pulse.archive.buckets.expired", "Archive buckets deleted by retention", "{bucket}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(
			c.name,
			otelmetric.WithDescription(c.description),
			otelmetric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.target = counter
	}

	return m, nil
}

// DefaultPipelineMetrics creates the counters on the global MeterProvider.
func DefaultPipelineMetrics() (*PipelineMetrics, error) {
	return NewPipelineMetrics(otel.Meter(instrumentationName))
}

func add(ctx context.Context, counter otelmetric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil || n == 0 {
		return
	}
	if len(attrs) == 0 {
		counter.Add(ctx, n)
		return
	}
	counter.Add(ctx, n, otelmetric.WithAttributes(attrs...))
}

func (m *PipelineMetrics) Ingested(ctx context.Context) {
	if m == nil {
		return
	}
	add(ctx, m.EventsIngested, 1)
}

// Dropped records n discarded page views with the reason they were dropped.
func (m *PipelineMetrics) Dropped(ctx context.Context, reason string, n int64) {
	if m == nil {
		return
	}
	add(ctx, m.EventsDropped, n, attribute.String("reason", reason))
}

func (m *PipelineMetrics) PushRetried(ctx context.Context) {
	if m == nil {
		return
	}
	add(ctx, m.PushRetries, 1)
}

func (m *PipelineMetrics) PushFailed(ctx context.Context) {
	if m == nil {
		return
	}
	add(ctx, m.PushFailures, 1)
}

func (m *PipelineMetrics) Flushed(ctx context.Context, events int64) {
	if m == nil {
		return
	}
	add(ctx, m.FlushBatches, 1)
	add(ctx, m.EventsFlushed, events)
}

// FlushFailed records a flush that stopped at step.
func (m *PipelineMetrics) FlushFailed(ctx context.Context, step string) {
	if m == nil {
		return
	}
	add(ctx, m.FlushFailures, 1, attribute.String("step", step))
}

func (m *PipelineMetrics) Archived(ctx context.Context, events, buckets int64) {
	if m == nil {
		return
	}
	add(ctx, m.EventsArchived, events)
	add(ctx, m.BucketsWritten, buckets)
}

func (m *PipelineMetrics) Expired(ctx context.Context, buckets int64) {
	if m == nil {
		return
	}
	add(ctx, m.BucketsExpired, buckets)
}
