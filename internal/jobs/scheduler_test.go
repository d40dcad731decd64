package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/apperrors"
	"pulse/internal/config"
	"pulse/internal/flush"
	"pulse/internal/jobs"
	"pulse/internal/testsupport"
)

type countingFlusher struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (f *countingFlusher) Flush(context.Context) flush.Result {
	f.calls.Add(1)
	if f.panic {
		panic("flush exploded")
	}
	return flush.Result{Err: f.err}
}

type countingArchiver struct {
	calls atomic.Int32
}

func (a *countingArchiver) Archive(ctx context.Context) error {
	a.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("archive run without a deadline")
	}
	return nil
}

type countingGC struct {
	calls atomic.Int32
}

func (g *countingGC) RunGC(float64) error {
	g.calls.Add(1)
	return nil
}

func TestSchedulerRunsFlushOnStartAndOnTicks(t *testing.T) {
	flusher := &countingFlusher{err: errors.New("database is locked")}
	gc := &countingGC{}
	s, err := jobs.NewScheduler(flusher, &countingArchiver{}, gc, jobs.Options{
		FlushInterval:   10 * time.Millisecond,
		ArchiveSchedule: "@hourly",
		GCInterval:      10 * time.Millisecond,
	}, testsupport.GetLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return flusher.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return gc.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	stopped := flusher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, flusher.calls.Load())
}

func TestSchedulerKeepsTickingAfterPanic(t *testing.T) {
	flusher := &countingFlusher{panic: true}
	s, err := jobs.NewScheduler(flusher, &countingArchiver{}, nil, jobs.Options{
		FlushInterval:   10 * time.Millisecond,
		ArchiveSchedule: "@hourly",
	}, testsupport.GetLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return flusher.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRunArchiveUsesBoundedContext(t *testing.T) {
	archiver := &countingArchiver{}
	s, err := jobs.NewScheduler(&countingFlusher{}, archiver, nil, jobs.Options{
		FlushInterval:   time.Hour,
		ArchiveSchedule: "@hourly",
	}, testsupport.GetLogger())
	require.NoError(t, err)

	require.NoError(t, s.RunArchive())
	assert.Equal(t, int32(1), archiver.calls.Load())
}

func TestNewSchedulerRejectsInvalidOptions(t *testing.T) {
	testCases := []struct {
		name string
		opts jobs.Options
		key  string
	}{
		{"bad schedule", jobs.Options{FlushInterval: time.Second, ArchiveSchedule: "every hour"}, "ArchiveSchedule"},
		{"empty schedule", jobs.Options{FlushInterval: time.Second}, "ArchiveSchedule"},
		{"zero interval", jobs.Options{ArchiveSchedule: "@hourly"}, "FlushIntervalSeconds"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := jobs.NewScheduler(&countingFlusher{}, &countingArchiver{}, nil, tc.opts, testsupport.GetLogger())
			require.Error(t, err)

			var configErr *apperrors.ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tc.key, configErr.Key)
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{FlushIntervalSeconds: 60, ArchiveSchedule: "@daily"}

	opts := jobs.OptionsFromConfig(cfg)
	assert.Equal(t, time.Minute, opts.FlushInterval)
	assert.Equal(t, "@daily", opts.ArchiveSchedule)
	assert.Equal(t, jobs.DefaultGCInterval, opts.GCInterval)
}
