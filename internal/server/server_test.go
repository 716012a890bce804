package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/irrbb/internal/engine"
	"github.com/sawpanic/irrbb/internal/persistence"
)

type fakeRuns struct {
	runs    []persistence.Run
	rows    []persistence.ScenarioRow
	pingErr error
}

func (f *fakeRuns) SaveReport(ctx context.Context, report *engine.Report) error { return nil }

func (f *fakeRuns) GetRun(ctx context.Context, runID string) (*persistence.Run, []persistence.ScenarioRow, error) {
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			return &f.runs[i], f.rows, nil
		}
	}
	return nil, nil, assertNotFoundErr
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit int) ([]persistence.Run, error) {
	return f.runs, nil
}

func (f *fakeRuns) Ping(ctx context.Context) error { return f.pingErr }

var assertNotFoundErr = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "run not found" }

func newTestServer(runs persistence.RunsRepo) *Server {
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 1000
	cfg.RateBurst = 1000
	return New(cfg, prometheus.NewRegistry(), runs)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeRuns{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_DegradedOnDBFailure(t *testing.T) {
	srv := newTestServer(&fakeRuns{pingErr: assertNotFoundErr})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_NoPersistence(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "disabled", resp.Database)
}

func TestListRuns(t *testing.T) {
	srv := newTestServer(&fakeRuns{runs: []persistence.Run{
		{RunID: "a", Scenarios: 7, WorstID: "parallel-up", CreatedAt: time.Now()},
	}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "parallel-up", runs[0].WorstID)
}

func TestListRuns_BadLimit(t *testing.T) {
	srv := newTestServer(&fakeRuns{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/runs?limit=wat", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun(t *testing.T) {
	srv := newTestServer(&fakeRuns{
		runs: []persistence.Run{{RunID: "abc", Scenarios: 2}},
		rows: []persistence.ScenarioRow{{RunID: "abc", ScenarioID: "base"}},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/runs/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	engine.NewMetrics(registry)
	cfg := DefaultConfig()
	srv := New(cfg, registry, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "irrbb_cashflow_records")
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 1
	cfg.RateBurst = 1
	srv := New(cfg, prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
