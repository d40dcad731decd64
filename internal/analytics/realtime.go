package analytics

import (
	"context"
	"fmt"

	"pulse/internal/events"
)

// GetRealTimeStats returns per-minute views and visitors over the last minutes.
func (e *Engine) GetRealTimeStats(ctx context.Context, params RealTimeParams) (*RealTimeStats, error) {
	tf, err := e.parser.ParseMinutes(params.Minutes)
	if err != nil {
		return nil, err
	}

	views, err := readWithRetry(ctx, e, "events_between", func(ctx context.Context) ([]events.PageView, error) {
		return e.events.EventsBetween(ctx, tf.From, tf.To)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent page views: %w", err)
	}

	buckets := tf.Buckets()
	series := make([]RealTimePoint, len(buckets))
	index := make(map[string]int, len(buckets))
	perMinute := make([]map[string]struct{}, len(buckets))
	for i, b := range buckets {
		key := tf.BucketKey(b)
		series[i] = RealTimePoint{Time: key}
		index[key] = i
		perMinute[i] = make(map[string]struct{})
	}

	window := make(map[string]struct{})
	stats := &RealTimeStats{Minutes: tf.Units, From: tf.From, To: tf.To}
	for i := range views {
		if !tf.Contains(views[i].Timestamp) {
			continue
		}
		window[views[i].VisitorID] = struct{}{}
		stats.TotalViews++
		if idx, ok := index[tf.BucketKey(views[i].Timestamp)]; ok {
			series[idx].Views++
			perMinute[idx][views[i].VisitorID] = struct{}{}
		}
	}
	for i := range series {
		series[i].Visitors = int64(len(perMinute[i]))
	}

	stats.Series = series
	stats.UniqueVisitors = int64(len(window))
	return stats, nil
}
