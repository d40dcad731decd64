package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/apperrors"
	"pulse/internal/events"
	"pulse/internal/testsupport"
)

var base = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func TestInsertSkipDuplicates(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)
	ctx := context.Background()

	inserted, err := store.InsertSkipDuplicates(ctx, []events.PageView{
		testsupport.NewPageView("/a", "v1", base),
		testsupport.NewPageView("/b", "v1", base.Add(time.Minute)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	inserted, err = store.InsertSkipDuplicates(ctx, []events.PageView{
		testsupport.NewPageView("/a", "v1", base),
		testsupport.NewPageView("/c", "v2", base),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.Equal(t, int64(3), testsupport.CountPageViews(t, dbManager.GetConnection()))

	inserted, err = store.InsertSkipDuplicates(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestIncrementViewCounts(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)
	ctx := context.Background()

	require.NoError(t, store.IncrementViewCounts(ctx, map[string]int64{"/posts/hello": 2, "/": 1}))
	require.NoError(t, store.IncrementViewCounts(ctx, map[string]int64{"/posts/hello": 3}))
	require.NoError(t, store.IncrementViewCounts(ctx, nil))

	var counts []events.ViewCount
	require.NoError(t, dbManager.GetConnection().Order("path ASC").Find(&counts).Error)
	require.Len(t, counts, 2)

	assert.Equal(t, "/", counts[0].Path)
	assert.Equal(t, int64(1), counts[0].Count)
	assert.Nil(t, counts[0].PostSlug)

	assert.Equal(t, "/posts/hello", counts[1].Path)
	assert.Equal(t, int64(5), counts[1].Count)
	require.NotNil(t, counts[1].PostSlug)
	assert.Equal(t, "hello", *counts[1].PostSlug)
}

func TestEventsBetweenAndBefore(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)
	ctx := context.Background()

	testsupport.InsertPageViews(t, dbManager.GetConnection(),
		testsupport.NewPageView("/late", "v1", base.Add(2*time.Hour)),
		testsupport.NewPageView("/early", "v1", base),
		testsupport.NewPageView("/mid", "v1", base.Add(time.Hour)),
	)

	between, err := store.EventsBetween(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, "/early", between[0].Path)
	assert.Equal(t, "/mid", between[1].Path)

	before, err := store.EventsBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, "/early", before[0].Path)
}

func TestFindPageRejectsUnknownColumns(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)

	_, _, err := store.FindPage(context.Background(), events.PageQuery{
		Limit:   10,
		Filters: []events.ColumnFilter{{Column: "1=1; DROP TABLE page_views; --", Value: "x"}},
	})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = store.FindPage(context.Background(), events.PageQuery{Limit: 10, SortColumn: "user_agent"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestFindPageEscapesLikePatterns(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)

	testsupport.InsertPageViews(t, dbManager.GetConnection(),
		testsupport.NewPageView("/100%-real", "v1", base),
		testsupport.NewPageView("/1000-real", "v1", base.Add(time.Minute)),
	)

	views, total, err := store.FindPage(context.Background(), events.PageQuery{Limit: 10, Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "/100%-real", views[0].Path)
}

func TestColumnFor(t *testing.T) {
	column, ok := events.ColumnFor("visitorId")
	assert.True(t, ok)
	assert.Equal(t, "visitor_id", column)

	_, ok = events.ColumnFor("userAgent")
	assert.False(t, ok)

	assert.Contains(t, events.QueryableFields(), "deviceType")
}
