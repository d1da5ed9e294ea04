package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncd/asyncd/internal/runtime/reactor"
	"github.com/asyncd/asyncd/internal/runtime/task"
	"github.com/asyncd/asyncd/internal/runtime/wake"
	"github.com/asyncd/asyncd/internal/runtime/worker"
	"github.com/asyncd/asyncd/pkg/logging"
)

func newTestPool(t *testing.T) *worker.Pool {
	t.Helper()
	table := task.NewTable(16)
	sched := wake.NewScheduler(0)
	r := reactor.New(sched, nil)
	return worker.New(table, sched, r, nil)
}

func TestManagementRouterIndex(t *testing.T) {
	router := NewManagementRouter(newTestPool(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestManagementRouterStats(t *testing.T) {
	pool := newTestPool(t)
	pool.Spawn(task.TaskFunc(func(cx *task.Cx) task.Poll { return task.Pending }))

	router := NewManagementRouter(pool, nil)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats worker.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Outstanding)
}

func TestManagementRouterUnknownRouteIs404(t *testing.T) {
	router := NewManagementRouter(newTestPool(t), logging.GetGlobalLogger())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
