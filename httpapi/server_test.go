package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	offload "github.com/wippyai/wasm-offload"
	"github.com/wippyai/wasm-offload/history"
	"github.com/wippyai/wasm-offload/host"
	"github.com/wippyai/wasm-offload/worker"
)

type testEnv struct {
	ctrl  *host.Controller
	store *history.SQLiteStore
	ts    *httptest.Server
}

func newTestEnv(t *testing.T, mod offload.Module, opts ...Option) *testEnv {
	t.Helper()
	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	ctrl := host.New(mod,
		host.OnComplete(history.Recorder(store, zap.NewNop())),
		host.WithWorkerOptions(worker.WithMetrics(worker.NewMetrics(reg))),
	)
	t.Cleanup(func() { _ = ctrl.Dispose(context.Background()) })

	srv := NewServer(":0", ctrl, append([]Option{WithStore(store), WithRegistry(reg)}, opts...)...)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ctrl: ctrl, store: store, ts: ts}
}

func (e *testEnv) settle(t *testing.T) host.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := e.ctrl.Settled(ctx)
	require.NoError(t, err)
	return st
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	return resp
}

func verifying() offload.ModuleFuncs {
	return offload.ModuleFuncs{
		RunFunc: func(context.Context) (string, error) { return "Proof verified", nil },
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, verifying())

	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[healthResponse](t, resp).Status)
}

func TestStatusAndRun(t *testing.T) {
	env := newTestEnv(t, verifying())
	env.settle(t)

	resp, err := http.Get(env.ts.URL + "/v1/status")
	require.NoError(t, err)
	st := decode[statusResponse](t, resp)
	assert.Equal(t, "ready", st.Status)
	assert.False(t, st.Pending)

	resp = post(t, env.ts.URL+"/v1/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	run := decode[runResponse](t, resp)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, "Proof verified", run.Result)
	require.NotEmpty(t, run.ID)

	// the completion hook records the run before the request resolves
	rec, err := env.store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, history.OutcomeSuccess, rec.Outcome)

	resp, err = http.Get(env.ts.URL + "/v1/runs/" + run.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, run.ID, decode[history.Record](t, resp).ID)
}

func TestRunFaultIs422(t *testing.T) {
	env := newTestEnv(t, offload.ModuleFuncs{
		RunFunc: func(context.Context) (string, error) { return "", errors.New("constraint unsatisfied") },
	})
	env.settle(t)

	resp := post(t, env.ts.URL+"/v1/runs")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	run := decode[runResponse](t, resp)
	assert.Equal(t, "error", run.Status)
	assert.Equal(t, "constraint unsatisfied", run.Error)
}

func TestConcurrentRunIs409(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, offload.ModuleFuncs{
		RunFunc: func(ctx context.Context) (string, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return "Proof verified", nil
		},
	})
	env.settle(t)
	defer close(release)

	resp := post(t, env.ts.URL+"/v1/runs?wait=false")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	first := decode[runResponse](t, resp)
	assert.Equal(t, "pending", first.Status)

	resp = post(t, env.ts.URL+"/v1/runs")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "already pending")
}

func TestRunWaitElapsesIs202(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, offload.ModuleFuncs{
		RunFunc: func(ctx context.Context) (string, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return "Proof verified", nil
		},
	}, WithRunWait(20*time.Millisecond))
	env.settle(t)
	defer close(release)

	resp := post(t, env.ts.URL+"/v1/runs")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", decode[runResponse](t, resp).Status)
}

func TestRetryInit(t *testing.T) {
	env := newTestEnv(t, offload.ModuleFuncs{
		InitFunc: func(context.Context) error { return errors.New("resource exhausted") },
	})
	st := env.settle(t)
	require.Equal(t, host.StatusError, st.Status)

	resp, err := http.Get(env.ts.URL + "/v1/status")
	require.NoError(t, err)
	got := decode[statusResponse](t, resp)
	assert.Equal(t, "error", got.Status)
	assert.Equal(t, "resource exhausted", got.Message)

	resp = post(t, env.ts.URL+"/v1/init")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	env.settle(t)
	resp = post(t, env.ts.URL+"/v1/init")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, "retry is accepted again after the next failure")
	resp.Body.Close()
}

func TestRetryInitWhenReadyIs409(t *testing.T) {
	env := newTestEnv(t, verifying())
	env.settle(t)

	resp := post(t, env.ts.URL+"/v1/init")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestDisposedControllerIs503(t *testing.T) {
	env := newTestEnv(t, verifying())
	env.settle(t)
	require.NoError(t, env.ctrl.Dispose(context.Background()))

	resp := post(t, env.ts.URL+"/v1/runs")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestListRunsAndStats(t *testing.T) {
	env := newTestEnv(t, verifying())
	env.settle(t)

	for i := 0; i < 3; i++ {
		resp := post(t, env.ts.URL+"/v1/runs")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(env.ts.URL + "/v1/runs?limit=2")
	require.NoError(t, err)
	list := decode[listRunsResponse](t, resp)
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Runs, 2)
	assert.Equal(t, 2, list.Limit)

	resp, err = http.Get(env.ts.URL + "/v1/stats")
	require.NoError(t, err)
	stats := decode[history.Stats](t, resp)
	assert.Equal(t, 3, stats.CountByOutcome[history.OutcomeSuccess])
}

func TestGetRunNotFound(t *testing.T) {
	env := newTestEnv(t, verifying())

	resp, err := http.Get(env.ts.URL + "/v1/runs/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryDisabled(t *testing.T) {
	ctrl := host.New(verifying())
	t.Cleanup(func() { _ = ctrl.Dispose(context.Background()) })
	ts := httptest.NewServer(NewServer(":0", ctrl).Router())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/v1/runs", "/v1/runs/x", "/v1/stats"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, verifying())
	env.settle(t)

	resp := post(t, env.ts.URL+"/v1/runs")
	resp.Body.Close()

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "offload_http_requests_total"), "missing http metrics")
	assert.True(t, strings.Contains(text, `path="/v1/runs`), "missing route pattern label")
	assert.True(t, strings.Contains(text, "offload_runs_total"), "missing worker metrics")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, verifying(), WithCORSOrigins([]string{"https://app.example"}))

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/v1/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
