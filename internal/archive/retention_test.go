package archive_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/archive"
	"pulse/internal/events"
	"pulse/internal/testsupport"
	"pulse/internal/timeframe"
)

func TestCleanup(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	cleaner := archive.NewCleaner(archive.NewGormStore(dbManager, logger), logger, nil)

	today := timeframe.StartOfDay(fixedNow, fixedNow.Location())
	seed := func(t *testing.T, daysAgo ...int) {
		t.Helper()
		testsupport.CleanTables(db, []string{"archive_buckets"})
		for _, n := range daysAgo {
			b := archive.Bucket{
				Path:       "/p",
				Date:       timeframe.DaysBefore(today, n, today.Location()).Format(timeframe.DateLayout),
				TotalViews: 1,
			}
			b.SetCounts(events.DimensionCountry, events.Counts{"US": 1})
			require.NoError(t, db.Create(&b).Error)
		}
	}

	t.Run("deletes buckets older than the retention window", func(t *testing.T) {
		seed(t, 366, 364)

		deleted, err := cleaner.Cleanup(context.Background(), 365, today)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		var remaining []archive.Bucket
		require.NoError(t, db.Find(&remaining).Error)
		require.Len(t, remaining, 1)
		assert.Equal(t, timeframe.DaysBefore(today, 364, today.Location()).Format(timeframe.DateLayout), remaining[0].Date)
	})

	t.Run("keeps the bucket on the boundary", func(t *testing.T) {
		seed(t, 365)

		deleted, err := cleaner.Cleanup(context.Background(), 365, today)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("zero retention keeps everything", func(t *testing.T) {
		seed(t, 5000, 366)

		deleted, err := cleaner.Cleanup(context.Background(), 0, today)
		require.NoError(t, err)
		assert.Zero(t, deleted)

		var count int64
		require.NoError(t, db.Model(&archive.Bucket{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})
}
