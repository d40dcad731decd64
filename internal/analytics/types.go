// Package analytics serves dashboard reads that blend raw page views inside the
// precision window with archived daily buckets.
package analytics

import (
	"time"

	"pulse/internal/events"
)

// StatsParams selects the stats window. At most one of Days, Hours or the
// StartDate/EndDate pair may be set; none means the last 30 days.
type StatsParams struct {
	Days      int
	Hours     int
	StartDate string
	EndDate   string
}

type Overview struct {
	TotalViews     int64 `json:"totalViews"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
	// TodayViews counts raw page views of the current UTC day.
	TodayViews          int64   `json:"todayViews"`
	AverageViews        float64 `json:"averageViews"`
	TotalSessions       int64   `json:"totalSessions"`
	BounceRate          float64 `json:"bounceRate"`
	AverageDuration     float64 `json:"averageDuration"`
	PageViewsPerSession float64 `json:"pageViewsPerSession"`
	// Session duration quantiles in seconds, over multi-view sessions.
	MedianSessionDuration float64 `json:"medianSessionDuration"`
	P90SessionDuration    float64 `json:"p90SessionDuration"`
}

type TrendPoint struct {
	Date     string `json:"date"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

type PathCount struct {
	Path       string  `json:"path"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type PathTrendPoint struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

type PathTrend struct {
	Path   string           `json:"path"`
	Points []PathTrendPoint `json:"points"`
}

type BreakdownItem struct {
	Value      string  `json:"value"`
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Stats struct {
	From       time.Time                            `json:"from"`
	To         time.Time                            `json:"to"`
	BucketSize string                               `json:"bucketSize"`
	Overview   Overview                             `json:"overview"`
	Trend      []TrendPoint                         `json:"trend"`
	TopPaths   []PathCount                          `json:"topPaths"`
	PathTrend  []PathTrend                          `json:"pathTrend"`
	Breakdowns map[events.Dimension][]BreakdownItem `json:"breakdowns"`
}

// FieldFilter restricts a page view listing. Op is "eq" or "contains".
type FieldFilter struct {
	Field string
	Op    string
	Value string
}

const (
	FilterEquals   = "eq"
	FilterContains = "contains"
)

type PageViewsParams struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Search    string
	Filters   []FieldFilter
	From      *time.Time
	To        *time.Time
}

// PageViewRow is a raw page view with its display alias.
type PageViewRow struct {
	events.PageView
	VisitorAlias string `json:"visitorAlias"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type PageViews struct {
	Data []PageViewRow `json:"data"`
	Meta PageMeta      `json:"meta"`
}

type RealTimeParams struct {
	Minutes int
}

type RealTimePoint struct {
	Time     string `json:"time"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

type RealTimeStats struct {
	Minutes        int             `json:"minutes"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	Series         []RealTimePoint `json:"series"`
	TotalViews     int64           `json:"totalViews"`
	UniqueVisitors int64           `json:"uniqueVisitors"`
}
