package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	pool := async.NewPool(2)
	var running, peak int32

	task := func(value int) func(context.Context) (any, error) {
		return func(context.Context) (any, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return value, nil
		}
	}

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "a", Execute: task(1)},
		{Name: "b", Execute: task(2)},
		{Name: "c", Execute: task(3)},
		{Name: "fails", Execute: func(context.Context) (any, error) { return nil, errors.New("boom") }},
		{Name: "panics", Execute: func(context.Context) (any, error) { panic("oops") }},
	})

	require.Len(t, results, 5)
	assert.Equal(t, 1, results["a"].Data)
	assert.Equal(t, 2, results["b"].Data)
	assert.Equal(t, 3, results["c"].Data)
	assert.EqualError(t, results["fails"].Err, "boom")
	assert.ErrorContains(t, results["panics"].Err, "panicked")
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))

	// Pools are reusable.
	again := pool.Execute(context.Background(), []async.Task{{Name: "a", Execute: task(7)}})
	assert.Equal(t, 7, again["a"].Data)
}

func TestPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := async.NewPool(1).Execute(ctx, []async.Task{
		{Name: "a", Execute: func(ctx context.Context) (any, error) { return nil, ctx.Err() }},
		{Name: "b", Execute: func(ctx context.Context) (any, error) { return nil, ctx.Err() }},
	})

	require.Len(t, results, 2)
	assert.ErrorIs(t, results["a"].Err, context.Canceled)
	assert.ErrorIs(t, results["b"].Err, context.Canceled)
}
