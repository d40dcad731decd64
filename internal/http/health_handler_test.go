package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pulsehttp "pulse/internal/http"
	"pulse/internal/queue"
	"pulse/internal/testsupport"
)

type brokenQueue struct{}

func (brokenQueue) Len(context.Context) (int, error) {
	return 0, errors.New("queue is closed")
}

func TestHealthIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	healthy := queue.NewMemoryQueue()
	require.NoError(t, healthy.Push(context.Background(), []byte(`{}`)))

	testCases := []struct {
		name        string
		queue       pulsehttp.QueueDepth
		wantStatus  int
		wantHealth  string
		wantQueue   string
		wantPending int
	}{
		{name: "healthy", queue: healthy, wantStatus: http.StatusOK, wantHealth: "ok", wantQueue: "ok", wantPending: 1},
		{name: "queue failure", queue: brokenQueue{}, wantStatus: http.StatusServiceUnavailable, wantHealth: "degraded", wantQueue: "error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := testsupport.NewTestApp(t, db, func(srv *cartridge.Server) {
				srv.Get("/_health", pulsehttp.HealthIndexAction(tc.queue))
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/_health", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)

			var health pulsehttp.HealthStatus
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
			assert.Equal(t, tc.wantHealth, health.Status)
			assert.Equal(t, "ok", health.DBStatus)
			assert.Equal(t, tc.wantQueue, health.QueueStatus)
			assert.Equal(t, tc.wantPending, health.QueueDepth)
		})
	}
}
