package settings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/settings"
	"pulse/internal/testsupport"
)

func TestStore(t *testing.T) {
	t.Run("returns fallback for missing keys", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		store := settings.NewStore(dbManager, logger)

		assert.Equal(t, "fallback", store.Get("missing.key", "fallback"))
	})

	t.Run("set overwrites and invalidates cache", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		store := settings.NewStore(dbManager, logger)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, settings.KeyAnalyticsTimezone, "Europe/Madrid"))
		assert.Equal(t, "Europe/Madrid", store.Get(settings.KeyAnalyticsTimezone, "UTC"))

		require.NoError(t, store.Set(ctx, settings.KeyAnalyticsTimezone, "America/New_York"))
		assert.Equal(t, "America/New_York", store.Get(settings.KeyAnalyticsTimezone, "UTC"))
	})

	t.Run("defaults do not overwrite stored values", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		store := settings.NewStore(dbManager, logger)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, settings.KeyAnalyticsRetentionDays, "90"))
		require.NoError(t, store.SetupDefaults(ctx, map[string]string{
			settings.KeyAnalyticsRetentionDays: "365",
			settings.KeyAnalyticsPrecisionDays: "30",
		}))

		assert.Equal(t, "90", store.Get(settings.KeyAnalyticsRetentionDays, ""))
		assert.Equal(t, "30", store.Get(settings.KeyAnalyticsPrecisionDays, ""))

		all, err := store.All(ctx)
		require.NoError(t, err)
		keys := make([]string, 0, len(all))
		for _, s := range all {
			keys = append(keys, s.Key)
		}
		assert.Contains(t, keys, settings.KeyAnalyticsRetentionDays)
		assert.Contains(t, keys, settings.KeyAnalyticsPrecisionDays)
	})
}

func TestLoadAnalytics(t *testing.T) {
	logger := testsupport.GetLogger()

	t.Run("defaults", func(t *testing.T) {
		s := settings.LoadAnalytics(settings.StaticGetter{}, logger)

		assert.True(t, s.Enabled)
		assert.Equal(t, "UTC", s.Timezone)
		assert.Equal(t, time.UTC, s.Location)
		assert.Equal(t, 30, s.PrecisionDays)
		assert.Equal(t, 365, s.RetentionDays)
	})

	t.Run("stored values", func(t *testing.T) {
		s := settings.LoadAnalytics(settings.StaticGetter{
			settings.KeyAnalyticsEnabled:       "false",
			settings.KeyAnalyticsTimezone:      "Europe/Madrid",
			settings.KeyAnalyticsPrecisionDays: "7",
			settings.KeyAnalyticsRetentionDays: "0",
		}, logger)

		assert.False(t, s.Enabled)
		assert.Equal(t, "Europe/Madrid", s.Timezone)
		assert.Equal(t, "Europe/Madrid", s.Location.String())
		assert.Equal(t, 7, s.PrecisionDays)
		assert.Equal(t, 0, s.RetentionDays)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		s := settings.LoadAnalytics(settings.StaticGetter{
			settings.KeyAnalyticsEnabled:       "maybe",
			settings.KeyAnalyticsTimezone:      "Mars/Olympus",
			settings.KeyAnalyticsPrecisionDays: "-3",
			settings.KeyAnalyticsRetentionDays: "forever",
		}, logger)

		assert.True(t, s.Enabled)
		assert.Equal(t, "UTC", s.Timezone)
		assert.Equal(t, time.UTC, s.Location)
		assert.Equal(t, 30, s.PrecisionDays)
		assert.Equal(t, 365, s.RetentionDays)
	})
}
