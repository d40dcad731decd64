package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// ErrNotFound is returned when a setting key does not exist.
var ErrNotFound = errors.New("setting not found")

// Getter reads a setting, returning fallback when it is missing.
type Getter interface {
	Get(key, fallback string) string
}

// StaticGetter is a Getter over a fixed map.
type StaticGetter map[string]string

func (g StaticGetter) Get(key, fallback string) string {
	if v, ok := g[key]; ok {
		return v
	}
	return fallback
}

// Store reads and writes the settings table. Reads are cached for five minutes.
type Store struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cache     *cache.Cache[string, string]
}

func NewStore(dbManager cartridge.DBManager, logger *slog.Logger) *Store {
	s := &Store{dbManager: dbManager, logger: logger}

	fetchFunc := func(key string) (string, error) {
		var rows []Setting
		err := dbManager.GetConnection().WithContext(context.Background()).
			Where("key = ?", key).
			Limit(1).
			Find(&rows).Error
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			return "", ErrNotFound
		}
		return rows[0].Value, nil
	}
	s.cache = cache.NewCache[string, string](logger, 5*time.Minute, fetchFunc)

	return s
}

// Get returns the stored value of key, or fallback when it is missing or unreadable.
func (s *Store) Get(key, fallback string) string {
	value, err := s.cache.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("Failed to read setting", slog.String("key", key), slog.Any("error", err))
		}
		return fallback
	}
	return value
}

// Set creates or overwrites a setting and invalidates cached reads.
func (s *Store) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	err := sqlite.PerformWrite(s.logger, s.dbManager.GetConnection().WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO settings (key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	s.cache.Clear()
	return nil
}

// SetupDefaults inserts every default that is not already stored. Existing
// values are left untouched.
func (s *Store) SetupDefaults(ctx context.Context, defaults map[string]string) error {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	err := sqlite.PerformWrite(s.logger, s.dbManager.GetConnection().WithContext(ctx), func(tx *gorm.DB) error {
		for _, key := range keys {
			err := tx.Exec(`
				INSERT INTO settings (key, value, created_at, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(key) DO NOTHING
			`, key, defaults[key], now, now).Error
			if err != nil {
				s.logger.Error("Failed to seed setting", slog.String("key", key), slog.Any("error", err))
				return fmt.Errorf("failed to seed setting %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Clear()
	return nil
}

// All returns every stored setting ordered by key.
func (s *Store) All(ctx context.Context) ([]Setting, error) {
	var rows []Setting
	if err := s.dbManager.GetConnection().WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return rows, nil
}
