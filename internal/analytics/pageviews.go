package analytics

import (
	"context"
	"fmt"
	"strings"

	"pulse/internal/apperrors"
	"pulse/internal/events"
	"pulse/internal/visitors"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
	defaultSortBy   = "timestamp"
)

type pageResult struct {
	views []events.PageView
	total int64
}

// GetPageViews lists raw page views. Archived views are not listed.
func (e *Engine) GetPageViews(ctx context.Context, params PageViewsParams) (*PageViews, error) {
	query, page, pageSize, err := resolvePageQuery(params)
	if err != nil {
		return nil, err
	}

	found, err := readWithRetry(ctx, e, "find_page", func(ctx context.Context) (pageResult, error) {
		views, total, err := e.events.FindPage(ctx, query)
		return pageResult{views: views, total: total}, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list page views: %w", err)
	}
	views, total := found.views, found.total

	rows := make([]PageViewRow, len(views))
	for i := range views {
		rows[i] = PageViewRow{PageView: views[i], VisitorAlias: visitors.Alias(views[i].VisitorID)}
	}

	return &PageViews{Data: rows, Meta: NewPageMeta(page, pageSize, total)}, nil
}

// NewPageMeta computes pagination metadata.
func NewPageMeta(page, pageSize int, total int64) PageMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PageMeta{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

func resolvePageQuery(params PageViewsParams) (events.PageQuery, int, int, error) {
	page := params.Page
	if page == 0 {
		page = 1
	}
	if page < 0 {
		return events.PageQuery{}, 0, 0, apperrors.NewValidationError("page", "must be a positive number")
	}

	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 || pageSize > MaxPageSize {
		return events.PageQuery{}, 0, 0, apperrors.NewValidationError("pageSize", "must be between 1 and %d", MaxPageSize)
	}

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = defaultSortBy
	}
	sortColumn, ok := events.ColumnFor(sortBy)
	if !ok {
		return events.PageQuery{}, 0, 0, apperrors.NewValidationError("sortBy", "unknown field %q, expected one of %s",
			sortBy, strings.Join(events.QueryableFields(), ", "))
	}

	var descending bool
	switch strings.ToLower(params.SortOrder) {
	case "", "desc":
		descending = true
	case "asc":
		descending = false
	default:
		return events.PageQuery{}, 0, 0, apperrors.NewValidationError("sortOrder", "must be asc or desc")
	}

	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return events.PageQuery{}, 0, 0, apperrors.NewValidationError("from", "must not be after to")
	}

	filters := make([]events.ColumnFilter, 0, len(params.Filters))
	for _, f := range params.Filters {
		column, ok := events.ColumnFor(f.Field)
		if !ok {
			return events.PageQuery{}, 0, 0, apperrors.NewValidationError("filter", "unknown field %q", f.Field)
		}
		switch f.Op {
		case FilterEquals, FilterContains:
		default:
			return events.PageQuery{}, 0, 0, apperrors.NewValidationError("filter", "unknown operator %q for %s, expected eq or contains", f.Op, f.Field)
		}
		filters = append(filters, events.ColumnFilter{Column: column, Contains: f.Op == FilterContains, Value: f.Value})
	}

	return events.PageQuery{
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
		SortColumn: sortColumn,
		Descending: descending,
		Search:     params.Search,
		Filters:    filters,
		From:       params.From,
		To:         params.To,
	}, page, pageSize, nil
}
