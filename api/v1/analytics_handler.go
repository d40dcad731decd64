package v1

import (
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"

	"pulse/internal/analytics"
	"pulse/internal/apperrors"
	"pulse/internal/timeframe"
)

// StatsAction serves GET /api/v1/analytics/stats.
func (h *Handlers) StatsAction(ctx *cartridge.Context) error {
	days, err := queryInt(ctx, "days")
	if err != nil {
		return writeError(ctx, err)
	}
	hours, err := queryInt(ctx, "hours")
	if err != nil {
		return writeError(ctx, err)
	}

	stats, err := h.analytics.GetAnalyticsStats(ctx.UserContext(), analytics.StatsParams{
		Days:      days,
		Hours:     hours,
		StartDate: ctx.Query("startDate"),
		EndDate:   ctx.Query("endDate"),
	})
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(stats)
}

// PageViewsAction serves GET /api/v1/analytics/pageviews. Filters are passed
// as repeated filter=field:op:value parameters.
func (h *Handlers) PageViewsAction(ctx *cartridge.Context) error {
	params, err := pageViewsParams(ctx)
	if err != nil {
		return writeError(ctx, err)
	}

	page, err := h.analytics.GetPageViews(ctx.UserContext(), params)
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(page)
}

// RealTimeAction serves GET /api/v1/analytics/realtime.
func (h *Handlers) RealTimeAction(ctx *cartridge.Context) error {
	minutes, err := queryInt(ctx, "minutes")
	if err != nil {
		return writeError(ctx, err)
	}

	stats, err := h.analytics.GetRealTimeStats(ctx.UserContext(), analytics.RealTimeParams{Minutes: minutes})
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(stats)
}

func pageViewsParams(ctx *cartridge.Context) (analytics.PageViewsParams, error) {
	params := analytics.PageViewsParams{
		SortBy:    ctx.Query("sortBy"),
		SortOrder: ctx.Query("sortOrder"),
		Search:    ctx.Query("search"),
	}

	var err error
	if params.Page, err = queryInt(ctx, "page"); err != nil {
		return params, err
	}
	if params.PageSize, err = queryInt(ctx, "pageSize"); err != nil {
		return params, err
	}
	if params.From, err = queryTime(ctx, "from", false); err != nil {
		return params, err
	}
	if params.To, err = queryTime(ctx, "to", true); err != nil {
		return params, err
	}

	for _, raw := range ctx.Context().QueryArgs().PeekMulti("filter") {
		filter, err := parseFilter(string(raw))
		if err != nil {
			return params, err
		}
		params.Filters = append(params.Filters, filter)
	}
	return params, nil
}

// parseFilter reads field:op:value. The value may itself contain colons.
func parseFilter(raw string) (analytics.FieldFilter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return analytics.FieldFilter{}, apperrors.NewValidationError("filter", "expected field:op:value, got %q", raw)
	}
	return analytics.FieldFilter{Field: parts[0], Op: parts[1], Value: parts[2]}, nil
}

func queryInt(ctx *cartridge.Context, key string) (int, error) {
	raw := strings.TrimSpace(ctx.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(key, "expected an integer, got %q", raw)
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or YYYY-MM-DD dates. A bare date used
// as an upper bound covers the whole day.
func queryTime(ctx *cartridge.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(ctx.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(timeframe.DateLayout, raw, time.UTC)
	if err != nil {
		return nil, apperrors.NewValidationError(key, "expected RFC 3339 or YYYY-MM-DD, got %q", raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}
