package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pulse/internal/apperrors"
)

const insertBatchSize = 100

// Store is the primary store of raw page views.
type Store interface {
	// InsertSkipDuplicates inserts views, silently skipping rows whose EventHash
	// already exists, and returns how many rows were written.
	InsertSkipDuplicates(ctx context.Context, views []PageView) (int64, error)
	// IncrementViewCounts adds counts[path] to the cached counter of each path.
	IncrementViewCounts(ctx context.Context, counts map[string]int64) error
	// EventsBefore returns every view with timestamp < boundary.
	EventsBefore(ctx context.Context, boundary time.Time) ([]PageView, error)
	// EventsBetween returns every view with from <= timestamp <= to.
	EventsBetween(ctx context.Context, from, to time.Time) ([]PageView, error)
	// FindPage returns one page of views and the total number of matches.
	FindPage(ctx context.Context, q PageQuery) ([]PageView, int64, error)
}

// ColumnFilter restricts a query to rows whose column equals, or contains, Value.
type ColumnFilter struct {
	Column   string
	Contains bool
	Value    string
}

// PageQuery is a resolved page view listing. Columns must come from ColumnFor.
type PageQuery struct {
	Offset     int
	Limit      int
	SortColumn string
	Descending bool
	Search     string
	Filters    []ColumnFilter
	From       *time.Time
	To         *time.Time
}

var queryableColumns = map[string]string{
	"id":             "id",
	"path":           "path",
	"timestamp":      "timestamp",
	"visitorId":      "visitor_id",
	"ipAddress":      "ip_address",
	"referer":        "referer",
	"country":        "country",
	"region":         "region",
	"city":           "city",
	"browser":        "browser",
	"browserVersion": "browser_version",
	"os":             "os",
	"osVersion":      "os_version",
	"deviceType":     "device_type",
	"screenSize":     "screen_size",
	"language":       "language",
	"timezone":       "timezone",
}

var searchColumns = []string{"path", "visitor_id", "country", "city"}

// ColumnFor maps an API field name to its page_views column.
func ColumnFor(field string) (string, bool) {
	column, ok := queryableColumns[field]
	return column, ok
}

// QueryableFields lists the API field names accepted by ColumnFor, sorted.
func QueryableFields() []string {
	fields := make([]string, 0, len(queryableColumns))
	for field := range queryableColumns {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// GormStore keeps page views in the application's SQLite database.
type GormStore struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

func NewGormStore(dbManager cartridge.DBManager, logger *slog.Logger) *GormStore {
	return &GormStore{dbManager: dbManager, logger: logger}
}

func (s *GormStore) db(ctx context.Context) *gorm.DB {
	return s.dbManager.GetConnection().WithContext(ctx)
}

func (s *GormStore) InsertSkipDuplicates(ctx context.Context, views []PageView) (int64, error) {
	if len(views) == 0 {
		return 0, nil
	}

	var inserted int64
	err := sqlite.PerformWrite(s.logger, s.db(ctx), func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_hash"}},
			DoNothing: true,
		}).CreateInBatches(&views, insertBatchSize)
		if result.Error != nil {
			return fmt.Errorf("failed to insert page views: %w", result.Error)
		}
		inserted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperrors.Transient("insert page views", err)
	}
	return inserted, nil
}

func (s *GormStore) IncrementViewCounts(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	paths := make([]string, 0, len(counts))
	for path := range counts {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	now := time.Now().UTC()
	err := sqlite.PerformWrite(s.logger, s.db(ctx), func(tx *gorm.DB) error {
		for _, path := range paths {
			err := tx.Exec(`
				INSERT INTO view_counts (path, post_slug, count, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET
					count = view_counts.count + excluded.count,
					post_slug = COALESCE(excluded.post_slug, view_counts.post_slug),
					updated_at = excluded.updated_at
			`, path, PostSlug(path), counts[path], now, now).Error
			if err != nil {
				return fmt.Errorf("failed to increment view count for %s: %w", path, err)
			}
		}
		return nil
	})
	return apperrors.Transient("increment view counts", err)
}

func (s *GormStore) EventsBefore(ctx context.Context, boundary time.Time) ([]PageView, error) {
	var views []PageView
	err := s.db(ctx).
		Where("timestamp < ?", boundary.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&views).Error
	if err != nil {
		return nil, apperrors.Transient("load page views before boundary", err)
	}
	return views, nil
}

func (s *GormStore) EventsBetween(ctx context.Context, from, to time.Time) ([]PageView, error) {
	var views []PageView
	err := s.db(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&views).Error
	if err != nil {
		return nil, apperrors.Transient("load page views in range", err)
	}
	return views, nil
}

func (s *GormStore) FindPage(ctx context.Context, q PageQuery) ([]PageView, int64, error) {
	query := s.db(ctx).Model(&PageView{})

	if q.From != nil {
		query = query.Where("timestamp >= ?", q.From.UTC())
	}
	if q.To != nil {
		query = query.Where("timestamp <= ?", q.To.UTC())
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := likePattern(search)
		clauses := make([]string, 0, len(searchColumns))
		args := make([]any, 0, len(searchColumns))
		for _, column := range searchColumns {
			clauses = append(clauses, column+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		query = query.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	for _, f := range q.Filters {
		if !isQueryableColumn(f.Column) {
			return nil, 0, apperrors.NewValidationError("filter", "unknown column %q", f.Column)
		}
		if f.Contains {
			query = query.Where(f.Column+` LIKE ? ESCAPE '\'`, likePattern(f.Value))
		} else {
			query = query.Where(f.Column+" = ?", f.Value)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Transient("count page views", err)
	}

	sortColumn := q.SortColumn
	if sortColumn == "" {
		sortColumn = "timestamp"
	}
	if !isQueryableColumn(sortColumn) {
		return nil, 0, apperrors.NewValidationError("sortBy", "unknown column %q", sortColumn)
	}

	var views []PageView
	err := query.
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: sortColumn}, Desc: q.Descending},
			{Column: clause.Column{Name: "id"}, Desc: q.Descending},
		}}).
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&views).Error
	if err != nil {
		return nil, 0, apperrors.Transient("list page views", err)
	}
	return views, total, nil
}

func isQueryableColumn(column string) bool {
	for _, c := range queryableColumns {
		if c == column {
			return true
		}
	}
	return false
}

func likePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(value) + "%"
}
