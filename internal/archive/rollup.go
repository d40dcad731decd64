package archive

import (
	"sort"
	"time"

	"pulse/internal/events"
	"pulse/internal/timeframe"
)

type bucketKey struct {
	path string
	date string
}

type group struct {
	bucket   Bucket
	visitors map[string]struct{}
	counts   map[events.Dimension]events.Counts
}

// Rollup groups views by path and calendar date in loc and computes one fresh
// bucket per group. It also returns the ids of every view it consumed.
// Buckets are ordered by path, then date.
func Rollup(views []events.PageView, loc *time.Location) ([]Bucket, []uint) {
	if loc == nil {
		loc = time.UTC
	}

	groups := make(map[bucketKey]*group)
	ids := make([]uint, 0, len(views))

	for i := range views {
		pv := &views[i]
		ids = append(ids, pv.ID)

		key := bucketKey{path: pv.Path, date: timeframe.DateIn(pv.Timestamp, loc)}
		g, ok := groups[key]
		if !ok {
			g = &group{
				bucket:   Bucket{Path: key.path, Date: key.date},
				visitors: make(map[string]struct{}),
				counts:   make(map[events.Dimension]events.Counts, len(events.Dimensions)),
			}
			for _, d := range events.Dimensions {
				g.counts[d] = events.Counts{}
			}
			groups[key] = g
		}

		g.bucket.TotalViews++
		g.visitors[pv.VisitorID] = struct{}{}
		for _, d := range events.Dimensions {
			if value, ok := d.CountKey(pv); ok {
				g.counts[d][value]++
			}
		}
	}

	buckets := make([]Bucket, 0, len(groups))
	for _, g := range groups {
		g.bucket.UniqueVisitors = int64(len(g.visitors))
		for _, d := range events.Dimensions {
			g.bucket.SetCounts(d, g.counts[d])
		}
		buckets = append(buckets, g.bucket)
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Path != buckets[j].Path {
			return buckets[i].Path < buckets[j].Path
		}
		return buckets[i].Date < buckets[j].Date
	})

	return buckets, ids
}
