package flush_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pulse/internal/apperrors"
	"pulse/internal/events"
	"pulse/internal/flush"
	"pulse/internal/queue"
	"pulse/internal/testsupport"
)

type fakeArchiver struct {
	calls atomic.Int32
	err   error
}

func (a *fakeArchiver) Archive(context.Context) error {
	a.calls.Add(1)
	return a.err
}

type failingStore struct {
	events.Store
	err error
}

func (s failingStore) InsertSkipDuplicates(context.Context, []events.PageView) (int64, error) {
	return 0, s.err
}

var at = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func push(t *testing.T, q queue.Queue, views ...events.PageView) {
	t.Helper()
	for _, pv := range views {
		payload, err := json.Marshal(pv)
		require.NoError(t, err)
		require.NoError(t, q.Push(context.Background(), payload))
	}
}

func queueLen(t *testing.T, q queue.Queue) int {
	t.Helper()
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	return n
}

func viewCount(t *testing.T, db *gorm.DB, path string) events.ViewCount {
	t.Helper()
	var vc events.ViewCount
	require.NoError(t, db.Where("path = ?", path).First(&vc).Error)
	return vc
}

func TestFlush(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	store := events.NewGormStore(dbManager, logger)

	q := queue.NewMemoryQueue()
	archiver := &fakeArchiver{}
	flusher := flush.NewFlusher(q, store, archiver, 500, logger)

	push(t, q,
		testsupport.NewPageView("/posts/a", "v1", at),
		testsupport.NewPageView("/posts/a", "v2", at.Add(time.Minute)),
		testsupport.NewPageView("/about", "v1", at.Add(2*time.Minute)),
	)

	result := flusher.Flush(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Peeked)
	assert.Equal(t, int64(3), result.Inserted)
	assert.Equal(t, 2, result.Paths)
	assert.True(t, result.Trimmed)
	assert.Equal(t, int32(1), archiver.calls.Load())

	assert.Zero(t, queueLen(t, q))
	assert.Equal(t, int64(3), testsupport.CountPageViews(t, db))

	posts := viewCount(t, db, "/posts/a")
	assert.Equal(t, int64(2), posts.Count)
	require.NotNil(t, posts.PostSlug)
	assert.Equal(t, "a", *posts.PostSlug)

	about := viewCount(t, db, "/about")
	assert.Equal(t, int64(1), about.Count)
	assert.Nil(t, about.PostSlug)

	t.Run("empty queue is a no-op", func(t *testing.T) {
		result := flusher.Flush(context.Background())
		require.NoError(t, result.Err)
		assert.Zero(t, result.Peeked)
		assert.Equal(t, int32(1), archiver.calls.Load())
	})
}

func TestFlushFailureLeavesBatchQueued(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	store := events.NewGormStore(dbManager, logger)

	q := queue.NewMemoryQueue()
	archiver := &fakeArchiver{err: errors.New("archive store offline")}
	flusher := flush.NewFlusher(q, store, archiver, 500, logger)

	push(t, q,
		testsupport.NewPageView("/a", "v1", at),
		testsupport.NewPageView("/b", "v2", at),
	)

	first := flusher.Flush(context.Background())
	require.Error(t, first.Err)
	assert.ErrorContains(t, first.Err, "archive")
	assert.False(t, first.Trimmed)
	assert.Equal(t, 2, queueLen(t, q))
	assert.Equal(t, int64(2), testsupport.CountPageViews(t, db))

	// The same window is delivered again; inserts are skipped as duplicates.
	archiver.err = nil
	second := flusher.Flush(context.Background())
	require.NoError(t, second.Err)
	assert.Zero(t, second.Inserted)
	assert.True(t, second.Trimmed)
	assert.Zero(t, queueLen(t, q))
	assert.Equal(t, int64(2), testsupport.CountPageViews(t, db))

	// Counters are incremented once per delivery.
	assert.Equal(t, int64(2), viewCount(t, db, "/a").Count)
}

func TestFlushInsertFailure(t *testing.T) {
	q := queue.NewMemoryQueue()
	archiver := &fakeArchiver{}
	store := failingStore{err: apperrors.Transient("insert page views", errors.New("database is locked"))}
	flusher := flush.NewFlusher(q, store, archiver, 500, testsupport.GetLogger())

	push(t, q, testsupport.NewPageView("/a", "v1", at))

	result := flusher.Flush(context.Background())
	require.Error(t, result.Err)
	assert.True(t, apperrors.IsTransient(result.Err))
	assert.Equal(t, 1, queueLen(t, q))
	assert.Zero(t, archiver.calls.Load())
}

func TestFlushDropsUndecodableEntries(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)

	q := queue.NewMemoryQueue()
	require.NoError(t, q.Push(context.Background(), []byte("not json")))
	push(t, q, testsupport.NewPageView("/a", "v1", at))
	require.NoError(t, q.Push(context.Background(), []byte(`{"visitorId":"no-path"}`)))

	result := flush.NewFlusher(q, store, nil, 500, logger).Flush(context.Background())

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Peeked)
	assert.Equal(t, 2, result.Invalid)
	assert.Equal(t, int64(1), result.Inserted)
	assert.Zero(t, queueLen(t, q))
}

func TestFlushRespectsBatchSize(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := events.NewGormStore(dbManager, logger)

	q := queue.NewMemoryQueue()
	for i := 0; i < 5; i++ {
		push(t, q, testsupport.NewPageView("/a", "v1", at.Add(time.Duration(i)*time.Second)))
	}

	flusher := flush.NewFlusher(q, store, nil, 2, logger)

	result := flusher.Flush(context.Background())
	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Peeked)
	assert.Equal(t, 3, queueLen(t, q))
}

func TestConcurrentFlushes(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	store := events.NewGormStore(dbManager, logger)

	q := queue.NewMemoryQueue()
	for i := 0; i < 20; i++ {
		push(t, q, testsupport.NewPageView("/a", "v1", at.Add(time.Duration(i)*time.Second)))
	}
	flusher := flush.NewFlusher(q, store, nil, 500, logger)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flusher.Flush(context.Background())
		}()
	}
	wg.Wait()

	assert.Zero(t, queueLen(t, q))
	assert.Equal(t, int64(20), testsupport.CountPageViews(t, db))
}

// gatedStore holds the first insert until release is closed.
type gatedStore struct {
	events.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) InsertSkipDuplicates(ctx context.Context, views []events.PageView) (int64, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.Store.InsertSkipDuplicates(ctx, views)
}

func TestFlushCoversEventsQueuedDuringInFlightRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	store := &gatedStore{
		Store:   events.NewGormStore(dbManager, logger),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	q := queue.NewMemoryQueue()
	push(t, q, testsupport.NewPageView("/early", "v1", at))
	flusher := flush.NewFlusher(q, store, nil, 500, logger)

	background := make(chan flush.Result, 1)
	go func() { background <- flusher.Flush(context.Background()) }()
	<-store.entered

	// Queued after the in-flight run peeked.
	push(t, q, testsupport.NewPageView("/late", "v2", at.Add(time.Second)))

	reader := make(chan flush.Result, 1)
	go func() { reader <- flusher.Flush(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	first := <-background
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.Peeked)

	result := <-reader
	require.NoError(t, result.Err)
	assert.Zero(t, queueLen(t, q))
	assert.Equal(t, int64(2), testsupport.CountPageViews(t, db))
	assert.Equal(t, int64(1), viewCount(t, db, "/late").Count)
}

func TestTriggerFlush(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	store := events.NewGormStore(dbManager, logger)

	q := queue.NewMemoryQueue()
	push(t, q, testsupport.NewPageView("/a", "v1", at))

	flush.NewFlusher(q, store, nil, 500, logger).TriggerFlush()

	assert.Eventually(t, func() bool {
		return queueLen(t, q) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), testsupport.CountPageViews(t, db))
}

func TestPathCounts(t *testing.T) {
	counts := flush.PathCounts([]events.PageView{
		{Path: "/a"}, {Path: "/b"}, {Path: "/a"},
	})
	assert.Equal(t, map[string]int64{"/a": 2, "/b": 1}, counts)
}
