package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beecolony/abcopt/internal/config"
	"github.com/beecolony/abcopt/internal/dataset"
	"github.com/beecolony/abcopt/internal/logging"
	"github.com/beecolony/abcopt/internal/optimization"
	"github.com/beecolony/abcopt/internal/optimization/abc"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "stdout"

	cfg.Colony = config.Colony{
		MaxIterations:      50,
		LowerBound:         0,
		UpperBound:         1,
		Target:             0.05,
		MaxConcurrentRuns:  2,
		JobRetention:       time.Hour,
		MaxIterationsLimit: 500,
	}
	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	return logging.New(logging.WarnLevel, io.Discard)
}

type testServer struct {
	srv     *Server
	router  chi.Router
	metrics *prometheus.Registry
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	srv := NewServer(cfg, testLogger(t), reg)
	t.Cleanup(func() { _ = srv.Close() })

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return &testServer{srv: srv, router: r, metrics: reg}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func referenceRequest(iterations int) RunRequest {
	return RunRequest{
		Params: RunParams{Iterations: iterations, Seed: int64Ptr(2025)},
		Input:  RunInput{Mode: ModePreloaded, DatasetName: dataset.ReferenceName},
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), prometheus.NewRegistry())
	assert.NotNil(t, srv, "Server should be created")
	assert.NoError(t, srv.Close())
	assert.NoError(t, srv.Close(), "Close must be idempotent")
}

func TestRegisterRoutes(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/run", true},
		{"POST", "/api/v1/optimize", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/optimization/123", true},
		{"GET", "/api/v1/datasets", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", true},
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := ts.do(t, tt.method, tt.path, nil)
			// Unknown job IDs answer 404 with a JSON body, so tell them
			// apart from chi's plain-text 404.
			routed := rr.Code != http.StatusNotFound || rr.Header().Get("Content-Type") == "application/json"
			assert.Equal(t, tt.shouldExist, routed)
		})
	}
}

func TestHandleRun(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	rr := ts.do(t, http.MethodPost, "/api/v1/run", referenceRequest(25))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp RunResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

	ref := dataset.Reference()
	state, err := abc.Initialize(ref.Matrix, nil, nil, 25, abc.WithSeed(2025), abc.WithLabels(ref.Alternatives))
	require.NoError(t, err)
	want, err := state.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, resp.ResultSeries, 25)
	assert.Equal(t, want.Best.Cost, resp.BestCost)
	assert.Equal(t, want.Best.Position, resp.BestSolution)
	assert.Equal(t, want.Best.Iteration, resp.BestIteration)
	assert.Equal(t, want.Best.Label, resp.BestAlternative)
	assert.Equal(t, int64(2025), resp.Seed)
	assert.True(t, resp.Completed)
	for i, p := range resp.ResultSeries {
		assert.Equal(t, i+1, p.Iteration)
		assert.Equal(t, want.History[i].BestCost, p.BestFitness)
	}

	require.NotEmpty(t, resp.KPIs)
	assert.Equal(t, "Best fitness", resp.KPIs[0].Label)
	assert.Equal(t, want.Best.Cost, resp.KPIs[0].Value)

	assert.Equal(t, 25.0, testutil.ToFloat64(ts.srv.metrics.IterationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.srv.metrics.RunsTotal.WithLabelValues("sync", "completed")))
	assert.Equal(t, want.Best.Cost, testutil.ToFloat64(ts.srv.metrics.BestCost))

	families, err := ts.metrics.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "abc_colony_runs_total")
	assert.Contains(t, names, "abc_colony_iterations_total")
}

func TestHandleRunIsDeterministic(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	req := RunRequest{
		Params: RunParams{Iterations: 10, Seed: int64Ptr(7), FeedLimit: 3},
		Input:  RunInput{Inline: "0.1,0.9;0.4,0.2;0.7,0.5", Alternatives: []string{"x", "y", "z"}},
	}
	first := ts.do(t, http.MethodPost, "/api/v1/run", req)
	second := ts.do(t, http.MethodPost, "/api/v1/run", req)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	var a, b RunResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	a.DurationMs, b.DurationMs = 0, 0
	a.KPIs, b.KPIs = nil, nil
	assert.Equal(t, a, b)
	assert.Contains(t, []string{"x", "y", "z"}, a.BestAlternative)
}

func TestHandleRunValidation(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "malformed body", body: "{", want: http.StatusBadRequest},
		{name: "unknown dataset", body: RunRequest{Input: RunInput{Mode: ModePreloaded, DatasetName: "nope"}}, want: http.StatusNotFound},
		{name: "unknown mode", body: RunRequest{Input: RunInput{Mode: "carrier-pigeon"}}, want: http.StatusBadRequest},
		{name: "matrix mode without matrix", body: RunRequest{Input: RunInput{Mode: ModeMatrix}}, want: http.StatusBadRequest},
		{name: "ragged matrix", body: RunRequest{Input: RunInput{Matrix: [][]float64{{0.1, 0.2}, {0.3}}}}, want: http.StatusBadRequest},
		{name: "alternative count mismatch", body: RunRequest{Input: RunInput{Matrix: [][]float64{{0.1}}, Alternatives: []string{"a", "b"}}}, want: http.StatusBadRequest},
		{name: "bad inline", body: RunRequest{Input: RunInput{Mode: ModeInline, Inline: "1,x"}}, want: http.StatusBadRequest},
		{name: "too many iterations", body: RunRequest{Params: RunParams{Iterations: 501}}, want: http.StatusBadRequest},
		{name: "negative iterations", body: RunRequest{Params: RunParams{Iterations: -1}}, want: http.StatusBadRequest},
		{name: "negative feed limit", body: RunRequest{Params: RunParams{FeedLimit: -1}}, want: http.StatusBadRequest},
		{name: "inverted bounds", body: RunRequest{Params: RunParams{LowerBound: float64Ptr(1), UpperBound: float64Ptr(0)}}, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/v1/run", tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleRunInlineError(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	rr := ts.do(t, http.MethodPost, "/api/v1/run", RunRequest{Input: RunInput{Mode: ModeInline, Inline: "0.1,0.2;0.3"}})
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Contains(t, body["error"], "inline input")
}

func TestRunDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Colony.MaxIterations = 7
	ts := newTestServer(t, cfg)

	rr := ts.do(t, http.MethodPost, "/api/v1/run", RunRequest{})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp RunResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Len(t, resp.ResultSeries, 7)
	assert.NotEmpty(t, resp.BestSolution)
	for _, kpi := range resp.KPIs {
		if kpi.Label == "Feed Limit" {
			assert.Equal(t, float64(45), kpi.Value, "default limit is alternatives times criteria")
		}
	}
}

func waitForStatus(t *testing.T, ts *testServer, id string, want JobStatus) StatusResponse {
	t.Helper()
	var status StatusResponse
	require.Eventually(t, func() bool {
		rr := ts.do(t, http.MethodGet, "/api/v1/status/"+id, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		status = StatusResponse{}
		if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
			return false
		}
		return status.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestOptimizeLifecycle(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	rr := ts.do(t, http.MethodPost, "/api/v1/optimize", referenceRequest(30))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var start StartResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&start))
	assert.Equal(t, StatusPending, start.Status)
	require.NotEmpty(t, start.OptimizationID)

	status := waitForStatus(t, ts, start.OptimizationID, StatusCompleted)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, 30, status.Iteration)
	assert.Equal(t, dataset.ReferenceName, status.Dataset)
	assert.Len(t, status.ResultSeries, 30)
	assert.NotEmpty(t, status.EndTime)
	require.NotNil(t, status.Result)
	require.NotNil(t, status.BestSolution)
	assert.Equal(t, status.Result.BestCost, status.BestSolution.Value)
	assert.Equal(t, status.Result.BestIteration, status.BestSolution.Iteration)

	rr = ts.do(t, http.MethodDelete, "/api/v1/optimization/"+start.OptimizationID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "finished jobs cannot be cancelled")
}

func TestCancelPendingOptimization(t *testing.T) {
	cfg := testConfig(t)
	cfg.Colony.MaxConcurrentRuns = 1
	ts := newTestServer(t, cfg)

	// Hold the only run slot so the job stays pending.
	ts.srv.slots <- struct{}{}
	defer func() { <-ts.srv.slots }()

	rr := ts.do(t, http.MethodPost, "/api/v1/optimize", referenceRequest(10))
	require.Equal(t, http.StatusAccepted, rr.Code)
	var start StartResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&start))

	status := waitForStatus(t, ts, start.OptimizationID, StatusPending)
	assert.Zero(t, status.Progress)

	rr = ts.do(t, http.MethodDelete, "/api/v1/optimization/"+start.OptimizationID, nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	status = waitForStatus(t, ts, start.OptimizationID, StatusCancelled)
	assert.Nil(t, status.Result)
	assert.Nil(t, status.BestSolution)
	assert.NotEmpty(t, status.EndTime)

	job, err := ts.srv.jobs.get(start.OptimizationID)
	require.NoError(t, err)
	require.NotNil(t, job.engine)
	_, err = job.engine.Optimize(context.Background(), optimization.OptimizerConfig{})
	assert.True(t, abc.IsCancelled(err), "cancelling a job stops its engine")

	rr = ts.do(t, http.MethodDelete, "/api/v1/optimization/"+start.OptimizationID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/v1/optimization/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOptimizeAfterClose(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	require.NoError(t, ts.srv.Close())

	rr := ts.do(t, http.MethodPost, "/api/v1/optimize", referenceRequest(5))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())
	assert.Equal(t, 0.0, testutil.ToFloat64(ts.srv.metrics.Jobs.WithLabelValues(string(StatusPending))))
}

func TestOptimizeStatusFollowsEngine(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	rr := ts.do(t, http.MethodPost, "/api/v1/optimize", referenceRequest(20))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var start StartResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&start))

	status := waitForStatus(t, ts, start.OptimizationID, StatusCompleted)
	job, err := ts.srv.jobs.get(start.OptimizationID)
	require.NoError(t, err)

	best := job.engine.GetBestSolution()
	require.NotNil(t, best)
	require.NotNil(t, status.BestSolution)
	assert.Equal(t, best.Value, status.BestSolution.Value)
	assert.Equal(t, best.Parameters, status.BestSolution.Parameters)
	assert.Len(t, job.engine.GetHistory(), 20)

	want, err := abc.Initialize(dataset.Reference().Matrix, nil, nil, 20, abc.WithSeed(2025))
	require.NoError(t, err)
	direct, err := want.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, direct.Best.Cost, status.BestSolution.Value)
	assert.Equal(t, direct.Best.Iteration, status.BestSolution.Iteration)
}

func TestDatasets(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	rr := ts.do(t, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []DatasetSummary
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list, 3)
	assert.Contains(t, list, DatasetSummary{
		Name:         "toy-9x5",
		Description:  "Small test case with 9 alternatives and 5 criteria",
		Alternatives: 9,
		Criteria:     5,
	})

	rr = ts.do(t, http.MethodGet, "/api/v1/datasets/toy-9x5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var d dataset.Dataset
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&d))
	assert.Equal(t, dataset.Reference().Matrix, d.Matrix)

	rr = ts.do(t, http.MethodGet, "/api/v1/datasets/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	rr := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRespondWithError(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), prometheus.NewRegistry())
	defer srv.Close()

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{name: "valid error response", code: rpcInvalidParams, message: "invalid input", id: "123", expectedID: "123"},
		{name: "nil id", code: rpcServerError, message: "server error", id: nil, expectedID: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in a 200 response
			assert.Equal(t, http.StatusOK, rr.Code)

			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))

			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}
