package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdash/internal/pipeline"
	"github.com/leapstack-labs/leapdash/internal/state"
	"github.com/leapstack-labs/leapdash/pkg/core"
)

// stubFetcher returns a fixed payload.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ core.FetchRequest) (*core.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &core.FetchResult{
		Data: map[string]any{
			"results": []any{
				map[string]any{"date": "2026-01-01", "visitors": float64(10)},
				map[string]any{"date": "2026-01-02", "visitors": float64(20)},
			},
		},
		Status: 200,
	}, nil
}

// stubGenerator emits working transform code for both kinds.
type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	if req.Kind == core.KindIngest {
		return &core.GenerateResult{Code: `
def transform(data):
    return [{"timestamp": r["date"], "value": r["visitors"]} for r in data["results"]]
`}, nil
	}
	return &core.GenerateResult{Code: `
def transform(points, prefs):
    return {"type": "line", "count": len(points)}
`}, nil
}

func setupServer(t *testing.T) (*Server, *state.SQLiteStore) {
	t.Helper()

	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	orch := pipeline.New(pipeline.Config{
		Store:     store,
		Fetcher:   &stubFetcher{},
		Generator: stubGenerator{},
		Templates: map[string]core.Template{
			"tpl": {ID: "tpl", ProviderID: "plausible", EndpointPath: "/api/stats"},
		},
	})

	srv := NewServer(Config{Store: store, Orchestrator: orch})
	return srv, store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createMetric(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/metrics", map[string]any{
		"name":        "Visitors",
		"templateId":  "tpl",
		"cadenceType": "time-series",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.ID)
	return out.ID
}

// waitIdle polls the progress endpoint until the background run ends.
func waitIdle(t *testing.T, handler http.Handler, metricID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		rec := doJSON(t, handler, http.MethodGet, "/api/metrics/"+metricID+"/progress", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var p map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		if processing, _ := p["isProcessing"].(bool); !processing {
			if steps, ok := p["completedSteps"].([]any); ok && len(steps) > 0 {
				return p
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline did not finish: %+v", p)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := setupServer(t)
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestCreateMetric_Validation(t *testing.T) {
	srv, _ := setupServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/metrics", map[string]any{
		"name": "x", "templateId": "tpl", "cadenceType": "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown cadence")

	rec = doJSON(t, h, http.MethodPost, "/api/metrics", map[string]any{
		"name": "x", "templateId": "nope", "cadenceType": "snapshot",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown template")
}

func TestMetricLifecycle(t *testing.T) {
	srv, _ := setupServer(t)
	h := srv.Routes()

	id := createMetric(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/metrics/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"templateId":"tpl"`)

	rec = doJSON(t, h, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/metrics/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/metrics/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh_EndToEnd(t *testing.T) {
	srv, store := setupServer(t)
	h := srv.Routes()
	id := createMetric(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	progress := waitIdle(t, h, id)
	steps := progress["completedSteps"].([]any)
	assert.Len(t, steps, len(core.StepOrder))
	assert.Empty(t, progress["error"])

	rec = doJSON(t, h, http.MethodGet, "/api/metrics/"+id+"/points", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var points []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.Len(t, points, 2)

	rec = doJSON(t, h, http.MethodGet, "/api/metrics/"+id+"/chart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"line"`)

	m, err := store.GetMetric(id)
	require.NoError(t, err)
	assert.NotNil(t, m.LastFetchedAt)
}

func TestRefresh_ConflictWhileRunning(t *testing.T) {
	srv, store := setupServer(t)
	h := srv.Routes()
	id := createMetric(t, h)

	// Hold the soft lock as an in-flight run would.
	require.NoError(t, store.BeginRun(id, core.StepFetchingAPIData))

	rec := doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/chart", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefresh_UnknownMetric(t *testing.T) {
	srv, _ := setupServer(t)
	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/metrics/missing/refresh", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetChart_NotRenderedYet(t *testing.T) {
	srv, _ := setupServer(t)
	h := srv.Routes()
	id := createMetric(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/metrics/"+id+"/chart", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChartRegenerate_EndToEnd(t *testing.T) {
	srv, store := setupServer(t)
	h := srv.Routes()
	id := createMetric(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitIdle(t, h, id)

	pointsBefore, err := store.ListDataPoints(id)
	require.NoError(t, err)

	rec = doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/chart", map[string]any{
		"preferences": map[string]any{"valueLabel": "Visitors"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitIdle(t, h, id)

	pointsAfter, err := store.ListDataPoints(id)
	require.NoError(t, err)
	assert.Equal(t, pointsBefore, pointsAfter)
}

func TestProgress_LongPoll(t *testing.T) {
	srv, _ := setupServer(t)
	h := srv.Routes()
	id := createMetric(t, h)

	// No activity: the request returns once the wait elapses.
	start := time.Now()
	rec := doJSON(t, h, http.MethodGet, "/api/metrics/"+id+"/progress?wait=50ms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A progress ping releases the poll well before the wait elapses.
	go func() {
		time.Sleep(30 * time.Millisecond)
		srv.notifier.Broadcast()
	}()
	start = time.Now()
	rec = doJSON(t, h, http.MethodGet, "/api/metrics/"+id+"/progress?wait=5s", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second)

	rec = doJSON(t, h, http.MethodGet, "/api/metrics/"+id+"/progress?wait=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// blockingFetcher holds every fetch until released, pinning a run
// mid-flight.
type blockingFetcher struct {
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ core.FetchRequest) (*core.FetchResult, error) {
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &core.FetchResult{Data: map[string]any{"results": []any{}}, Status: 200}, nil
}

func TestRefresh_LockClaimedBeforeAccepted(t *testing.T) {
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	fetch := &blockingFetcher{release: make(chan struct{})}
	orch := pipeline.New(pipeline.Config{
		Store:     store,
		Fetcher:   fetch,
		Generator: stubGenerator{},
		Templates: map[string]core.Template{
			"tpl": {ID: "tpl", ProviderID: "plausible", EndpointPath: "/api/stats"},
		},
	})
	srv := NewServer(Config{Store: store, Orchestrator: orch})
	h := srv.Routes()
	id := createMetric(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The 202 means the soft lock is already held, with no window in
	// which the claim could still fail.
	m, err := store.GetMetric(id)
	require.NoError(t, err)
	assert.True(t, m.IsProcessing())

	rec = doJSON(t, h, http.MethodPost, "/api/metrics/"+id+"/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(fetch.release)
	waitIdle(t, h, id)
}

func TestProgress_UnknownMetric(t *testing.T) {
	srv, _ := setupServer(t)
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/metrics/missing/progress", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	srv, _ := setupServer(t)
	srv.port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	// Wait for the listener, then shut down.
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/healthz", srv.port))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 25*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
