package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"pulse/internal/archive"
	"pulse/internal/events"
	"pulse/internal/flush"
	"pulse/internal/pkg/async"
	"pulse/internal/timeframe"
)

// topPathTrends is how many of the top paths get a per-bucket series.
const topPathTrends = 10

// Flusher drains pending page views before a stats read.
type Flusher interface {
	Flush(ctx context.Context) flush.Result
}

type Engine struct {
	events  events.Store
	archive archive.Store
	flusher Flusher
	parser  *timeframe.TimeFrameParser
	pool    *async.Pool
	logger  *slog.Logger

	readAttempts   int
	readRetryDelay time.Duration
}

type Option func(*Engine)

func WithTimeProvider(tp timeframe.TimeProvider) Option {
	return func(e *Engine) { e.parser = timeframe.NewTimeFrameParser(tp) }
}

func NewEngine(eventStore events.Store, archiveStore archive.Store, flusher Flusher, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		events:  eventStore,
		archive: archiveStore,
		flusher: flusher,
		parser:  timeframe.NewTimeFrameParser(),
		pool:    async.NewPool(2),
		logger:  logger,

		readAttempts:   defaultReadAttempts,
		readRetryDelay: defaultReadRetryDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetAnalyticsStats flushes pending page views, then aggregates the window.
func (e *Engine) GetAnalyticsStats(ctx context.Context, params StatsParams) (*Stats, error) {
	tf, err := e.parser.ParseWindow(timeframe.WindowParams{
		Days:      params.Days,
		Hours:     params.Hours,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
	})
	if err != nil {
		return nil, err
	}

	if e.flusher != nil {
		if result := e.flusher.Flush(ctx); result.Err != nil {
			e.logger.Warn("Flush before stats read failed, serving stale data", slog.Any("error", result.Err))
		}
	}

	archiveTo := tf.To.AddDate(0, 0, 1).Format(timeframe.DateLayout)
	results := e.pool.Execute(ctx, []async.Task{
		{
			Name: "precise",
			Execute: func(ctx context.Context) (any, error) {
				return readWithRetry(ctx, e, "events_between", func(ctx context.Context) ([]events.PageView, error) {
					return e.events.EventsBetween(ctx, tf.From, tf.To)
				})
			},
		},
		{
			Name: "archived",
			Execute: func(ctx context.Context) (any, error) {
				return readWithRetry(ctx, e, "buckets_between", func(ctx context.Context) ([]archive.Bucket, error) {
					return e.archive.BucketsBetween(ctx, tf.FromDate(), archiveTo)
				})
			},
		},
	})

	for _, name := range []string{"precise", "archived"} {
		if err := results[name].Err; err != nil {
			return nil, fmt.Errorf("failed to load %s page views: %w", name, err)
		}
	}
	precise, _ := results["precise"].Data.([]events.PageView)
	archived, _ := results["archived"].Data.([]archive.Bucket)

	return BuildStats(tf, e.parser.Now(time.UTC), precise, archived), nil
}

// BuildStats aggregates raw views and archive buckets that belong to tf.
func BuildStats(tf *timeframe.TimeFrame, now time.Time, precise []events.PageView, archived []archive.Bucket) *Stats {
	stats := &Stats{
		From:       tf.From,
		To:         tf.To,
		BucketSize: string(tf.BucketSize),
	}

	today := now.UTC().Format(timeframe.DateLayout)
	visitors := make(map[string]struct{})
	for i := range precise {
		visitors[precise[i].VisitorID] = struct{}{}
		if precise[i].Timestamp.UTC().Format(timeframe.DateLayout) == today {
			stats.Overview.TodayViews++
		}
	}

	ov := &stats.Overview
	ov.TotalViews = int64(len(precise))
	ov.UniqueVisitors = int64(len(visitors))
	for i := range archived {
		ov.TotalViews += archived[i].TotalViews
		ov.UniqueVisitors += archived[i].UniqueVisitors
	}
	if tf.Units > 0 {
		ov.AverageViews = float64(ov.TotalViews) / float64(tf.Units)
	}

	sessions := SummarizeSessions(BuildSessions(precise, SessionTimeout), ov.TotalViews)
	ov.TotalSessions = sessions.TotalSessions
	ov.BounceRate = sessions.BounceRate
	ov.AverageDuration = sessions.AverageDuration
	ov.PageViewsPerSession = sessions.PageViewsPerSession
	ov.MedianSessionDuration = sessions.MedianDuration
	ov.P90SessionDuration = sessions.P90Duration

	stats.Trend = trend(tf, precise, archived)
	stats.TopPaths = topPaths(precise, archived)
	stats.PathTrend = pathTrends(tf, precise, stats.TopPaths)
	stats.Breakdowns = Breakdowns(precise, archived)

	return stats
}

func trend(tf *timeframe.TimeFrame, precise []events.PageView, archived []archive.Bucket) []TrendPoint {
	buckets := tf.Buckets()
	points := make([]TrendPoint, len(buckets))
	index := make(map[string]int, len(buckets))
	visitors := make([]map[string]struct{}, len(buckets))
	for i, b := range buckets {
		key := tf.BucketKey(b)
		points[i] = TrendPoint{Date: key}
		index[key] = i
		visitors[i] = make(map[string]struct{})
	}

	for i := range precise {
		idx, ok := index[tf.BucketKey(precise[i].Timestamp)]
		if !ok {
			continue
		}
		points[idx].Views++
		visitors[idx][precise[i].VisitorID] = struct{}{}
	}
	for i := range points {
		points[i].Visitors = int64(len(visitors[i]))
	}

	// Archive buckets are daily, so they only feed day series.
	if tf.BucketSize == timeframe.TimeFrameBucketSizeDay {
		for i := range archived {
			if idx, ok := index[archived[i].Date]; ok {
				points[idx].Views += archived[i].TotalViews
			}
		}
	}

	return points
}

func topPaths(precise []events.PageView, archived []archive.Bucket) []PathCount {
	counts := make(map[string]int64)
	for i := range precise {
		counts[precise[i].Path]++
	}
	for i := range archived {
		counts[archived[i].Path] += archived[i].TotalViews
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	paths := make([]PathCount, 0, len(counts))
	for path, n := range counts {
		paths = append(paths, PathCount{Path: path, Count: n, Percentage: percentage(n, total)})
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Count != paths[j].Count {
			return paths[i].Count > paths[j].Count
		}
		return paths[i].Path < paths[j].Path
	})
	return paths
}

func pathTrends(tf *timeframe.TimeFrame, precise []events.PageView, top []PathCount) []PathTrend {
	n := min(topPathTrends, len(top))
	if n == 0 {
		return []PathTrend{}
	}

	buckets := tf.Buckets()
	index := make(map[string]int, len(buckets))
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = tf.BucketKey(b)
		index[keys[i]] = i
	}

	series := make(map[string][]int64, n)
	for _, p := range top[:n] {
		series[p.Path] = make([]int64, len(buckets))
	}
	for i := range precise {
		counts, ok := series[precise[i].Path]
		if !ok {
			continue
		}
		if idx, ok := index[tf.BucketKey(precise[i].Timestamp)]; ok {
			counts[idx]++
		}
	}

	trends := make([]PathTrend, 0, n)
	for _, p := range top[:n] {
		points := make([]PathTrendPoint, len(keys))
		for i, key := range keys {
			points[i] = PathTrendPoint{Date: key, Views: series[p.Path][i]}
		}
		trends = append(trends, PathTrend{Path: p.Path, Points: points})
	}
	return trends
}
