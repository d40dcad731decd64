package archive

import (
	"context"
	"log/slog"
	"time"

	"pulse/internal/telemetry"
	"pulse/internal/timeframe"
)

const cleanupBatchSize = 1000

// Cleaner expires archive buckets that fall outside the retention window.
type Cleaner struct {
	store      Store
	logger     *slog.Logger
	metrics    *telemetry.PipelineMetrics
	batchPause time.Duration
}

func NewCleaner(store Store, logger *slog.Logger, metrics *telemetry.PipelineMetrics) *Cleaner {
	return &Cleaner{
		store:      store,
		logger:     logger,
		metrics:    metrics,
		batchPause: 100 * time.Millisecond,
	}
}

// Cleanup deletes every bucket dated before today minus retentionDays and
// returns how many were removed. A retentionDays of 0 keeps buckets forever.
func (c *Cleaner) Cleanup(ctx context.Context, retentionDays int, today time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := timeframe.DaysBefore(today, retentionDays, today.Location()).Format(timeframe.DateLayout)

	var totalDeleted int64
	for {
		deleted, err := c.store.DeleteBucketsBefore(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			c.logger.Error("Failed to delete expired archive buckets",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			c.metrics.Expired(ctx, totalDeleted)
			return totalDeleted, err
		}
		totalDeleted += deleted

		if deleted < cleanupBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			c.metrics.Expired(ctx, totalDeleted)
			return totalDeleted, ctx.Err()
		case <-time.After(c.batchPause):
		}
	}

	if totalDeleted > 0 {
		c.logger.Info("Expired archive buckets",
			slog.Int64("deleted_count", totalDeleted),
			slog.Int("retention_days", retentionDays),
			slog.String("cutoff_date", cutoff))
	}
	c.metrics.Expired(ctx, totalDeleted)

	return totalDeleted, nil
}
