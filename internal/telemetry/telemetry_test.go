package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"pulse/internal/config"
	"pulse/internal/telemetry"
	"pulse/internal/testsupport"
)

func TestSetupAndShutdown(t *testing.T) {
	cfg := config.GetConfig()

	shutdown, err := telemetry.Setup(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestPipelineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := telemetry.NewPipelineMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.Ingested(ctx)
	m.Ingested(ctx)
	m.Dropped(ctx, "bot", 1)
	m.Flushed(ctx, 42)
	m.Archived(ctx, 10, 3)

	sums := testsupport.CollectCounterSums(t, reader)
	assert.Equal(t, int64(2), sums["pulse.events.ingested"])
	assert.Equal(t, int64(1), sums["pulse.events.dropped"])
	assert.Equal(t, int64(1), sums["pulse.flush.batches"])
	assert.Equal(t, int64(42), sums["pulse.flush.events"])
	assert.Equal(t, int64(10), sums["pulse.archive.events"])
	assert.Equal(t, int64(3), sums["pulse.archive.buckets.written"])
	assert.NotContains(t, sums, "pulse.archive.buckets.expired")
}

func TestNilPipelineMetricsIsSafe(t *testing.T) {
	var m *telemetry.PipelineMetrics
	assert.NotPanics(t, func() {
		m.Ingested(context.Background())
		m.Dropped(context.Background(), "missing_path", 1)
		m.FlushFailed(context.Background(), "insert")
		m.Expired(context.Background(), 5)
	})
}
