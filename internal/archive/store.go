package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pulse/internal/apperrors"
	"pulse/internal/events"
)

const (
	upsertBatchSize = 100
	deleteChunkSize = 500
)

// Store persists archive buckets.
type Store interface {
	// ReplaceBuckets upserts buckets, overwriting any bucket with the same
	// (path, date), and deletes the archived page views with the given ids.
	// Both happen in one transaction.
	ReplaceBuckets(ctx context.Context, buckets []Bucket, archivedIDs []uint) error
	// BucketsBetween returns buckets with fromDate <= date <= toDate.
	BucketsBetween(ctx context.Context, fromDate, toDate string) ([]Bucket, error)
	// DeleteBucketsBefore deletes up to limit buckets with date < date.
	DeleteBucketsBefore(ctx context.Context, date string, limit int) (int64, error)
}

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

func (s *GormStore) ReplaceBuckets(ctx context.Context, buckets []Bucket, archivedIDs []uint) error {
	if len(buckets) == 0 && len(archivedIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range buckets {
		buckets[i].UpdatedAt = now
	}

	err := sqlite.PerformWrite(s.logger, s.db(ctx), func(tx *gorm.DB) error {
		if len(buckets) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "path"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns(countColumns),
			}).CreateInBatches(&buckets, upsertBatchSize).Error
			if err != nil {
				return fmt.Errorf("failed to upsert archive buckets: %w", err)
			}
		}

		for start := 0; start < len(archivedIDs); start += deleteChunkSize {
			end := min(start+deleteChunkSize, len(archivedIDs))
			if err := tx.Where("id IN ?", archivedIDs[start:end]).Delete(&events.PageView{}).Error; err != nil {
				return fmt.Errorf("failed to delete archived page views: %w", err)
			}
		}
		return nil
	})
	return apperrors.Transient("replace archive buckets", err)
}

func (s *GormStore) BucketsBetween(ctx context.Context, fromDate, toDate string) ([]Bucket, error) {
	var buckets []Bucket
	err := s.db(ctx).
		Where("date >= ? AND date <= ?", fromDate, toDate).
		Order("date ASC, path ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, apperrors.Transient("load archive buckets", err)
	}
	return buckets, nil
}

func (s *GormStore) DeleteBucketsBefore(ctx context.Context, date string, limit int) (int64, error) {
	var deleted int64
	err := sqlite.PerformWrite(s.logger, s.db(ctx), func(tx *gorm.DB) error {
		result := tx.Exec(
			`DELETE FROM archive_buckets WHERE id IN (SELECT id FROM archive_buckets WHERE date < ? ORDER BY id LIMIT ?)`,
			date, limit,
		)
		if result.Error != nil {
			return fmt.Errorf("failed to delete expired archive buckets: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperrors.Transient("expire archive buckets", err)
	}
	return deleted, nil
}
