package seeder_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/events"
	"pulse/internal/flush"
	"pulse/internal/ingest"
	"pulse/internal/pkg/geoip"
	"pulse/internal/pkg/user_agent"
	"pulse/internal/queue"
	"pulse/internal/seeder"
	"pulse/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	q := queue.NewMemoryQueue()
	flusher := flush.NewFlusher(q, events.NewGormStore(dbManager, logger), nil, 50, logger)
	ingestor := ingest.NewIngestor(q, geoip.Open("", logger), user_agent.Default(), nil,
		ingest.Config{FlushThreshold: 1000, PushMaxAttempts: 1}, logger)

	s := seeder.NewSeeder(ingestor, flusher, logger, seeder.Options{
		Views: 120,
		Days:  7,
		Now:   func() time.Time { return now },
		Rand:  rand.New(rand.NewPCG(1, 2)),
	})

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, summary.Submitted, 120)
	assert.Positive(t, summary.Sessions)
	assert.Positive(t, summary.Inserted)
	// Bot sessions are dropped by the ingestor.
	assert.LessOrEqual(t, summary.Inserted, int64(summary.Submitted))
	assert.Equal(t, summary.Inserted, testsupport.CountPageViews(t, db))

	pending, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)

	var views []events.PageView
	require.NoError(t, db.Find(&views).Error)
	for _, pv := range views {
		assert.False(t, pv.Timestamp.After(now), "timestamp %s after now", pv.Timestamp)
		assert.False(t, pv.Timestamp.Before(now.AddDate(0, 0, -7)), "timestamp %s before window", pv.Timestamp)
		assert.Contains(t, pv.VisitorID, "seed-")
		assert.NotEqual(t, "Googlebot", pv.Browser)
	}
}

func TestSeederStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := seeder.NewSeeder(nil, nil, testsupport.GetLogger(), seeder.Options{Views: 10})
	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
