package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/metrics"
	"github.com/JakeFAU/carcatalog-crawler/internal/orchestrator"
)

type fakeRun struct {
	summary orchestrator.Summary
}

func (f *fakeRun) Snapshot() orchestrator.Summary { return f.summary }

type fakeCheckpoint struct {
	stats checkpoint.Stats
}

func (f *fakeCheckpoint) Stats() checkpoint.Stats { return f.stats }

var started = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	run := &fakeRun{summary: orchestrator.Summary{
		RunID:      "0190d1a0-5f3c-7b2e-8c11-3e5a6f7b8c9d",
		Discovered: 10,
		Done:       6,
		Skipped:    2,
		Failed:     1,
		Persisted:  3,
		StartedAt:  started,
		Failures: []orchestrator.Failure{{
			URL:    "https://cars.test/bmw/2023-x5/",
			Kind:   crawler.KindModel,
			Reason: orchestrator.ReasonFetch,
			Error:  "fetch https://cars.test/bmw/2023-x5/: server_error (status 503)",
			At:     started.Add(time.Minute),
		}},
	}}
	cp := &fakeCheckpoint{stats: checkpoint.Stats{
		Completed: 8,
		ByKind:    map[crawler.Kind]int{crawler.KindModel: 3, crawler.KindListing: 2},
		Frontier:  2,
		UpdatedAt: started,
	}}
	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg)
	require.NoError(t, err)
	return NewServer(run, cp, reg, httpMetrics, zap.NewNop()), reg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzWithoutRun(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, prometheus.NewRegistry(), nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/v1/status").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/v1/failures").Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := get(t, s, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Run.Discovered)
	assert.Equal(t, 6, resp.Run.Done)
	assert.Empty(t, resp.Run.Failures, "failures are served separately")
	assert.Equal(t, "8/10 (80.0%)", resp.Completeness)
	assert.Equal(t, 8, resp.Checkpoint.Completed)
	assert.Equal(t, 3, resp.Checkpoint.ByKind[crawler.KindModel])
}

func TestFailures(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := get(t, s, "/v1/failures")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count    int                    `json:"count"`
		Failures []orchestrator.Failure `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, crawler.KindModel, resp.Failures[0].Kind)
	assert.Equal(t, orchestrator.ReasonFetch, resp.Failures[0].Reason)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, get(t, s, "/v1/status").Code)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `carcrawl_http_requests_total{code="200",method="GET",route="/v1/status"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/v1/jobs").Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
