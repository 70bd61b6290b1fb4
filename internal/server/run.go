package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/beecolony/abcopt/internal/dataset"
	apperrors "github.com/beecolony/abcopt/internal/errors"
	"github.com/beecolony/abcopt/internal/logging"
	"github.com/beecolony/abcopt/internal/optimization"
	"github.com/beecolony/abcopt/internal/optimization/abc"
	"github.com/beecolony/abcopt/internal/report"
)

// Input modes accepted by RunInput.Mode.
const (
	ModePreloaded = "preloaded"
	ModeMatrix    = "matrix"
	ModeInline    = "inline"
)

// RunParams are the colony parameters of a run request. Zero values fall
// back to the configured defaults.
type RunParams struct {
	FeedLimit  int      `json:"feedLimit"`
	Iterations int      `json:"iterations"`
	Seed       *int64   `json:"seed,omitempty"`
	LowerBound *float64 `json:"lowerBound,omitempty"`
	UpperBound *float64 `json:"upperBound,omitempty"`
	Target     *float64 `json:"target,omitempty"`
}

// RunInput selects the decision matrix of a run.
type RunInput struct {
	Mode         string      `json:"mode"`
	DatasetName  string      `json:"datasetName,omitempty"`
	Matrix       [][]float64 `json:"matrix,omitempty"`
	Inline       string      `json:"inline,omitempty"`
	Alternatives []string    `json:"alternatives,omitempty"`
}

// RunRequest is the body of POST /api/v1/run and /api/v1/optimize.
type RunRequest struct {
	Params RunParams `json:"params"`
	Input  RunInput  `json:"input"`
}

// RunResponse is the outcome of a finished run.
type RunResponse struct {
	DurationMs           int64                `json:"durationMs"`
	KPIs                 []report.KPI         `json:"kpis"`
	BestSolution         []float64            `json:"bestSolution"`
	BestCost             float64              `json:"bestCost"`
	BestIteration        int                  `json:"bestIteration"`
	BestAlternative      string               `json:"bestAlternative"`
	FinalBestAlternative string               `json:"finalBestAlternative"`
	Seed                 int64                `json:"seed"`
	Completed            bool                 `json:"completed"`
	ResultSeries         []report.SeriesPoint `json:"resultSeries"`
}

// runSpec is a validated run request.
type runSpec struct {
	data       *dataset.Dataset
	lower      []float64
	upper      []float64
	iterations int
	limit      int
	seed       *int64
	target     float64
}

func (s *Server) buildSpec(req RunRequest) (*runSpec, error) {
	data, err := resolveInput(req.Input)
	if err != nil {
		return nil, err
	}

	col := s.cfg.Colony
	spec := &runSpec{
		data:       data,
		iterations: req.Params.Iterations,
		limit:      req.Params.FeedLimit,
		seed:       req.Params.Seed,
		target:     col.Target,
	}
	if spec.iterations == 0 {
		spec.iterations = col.MaxIterations
	}
	if spec.iterations < 0 {
		return nil, apperrors.BadRequest("iterations must be positive, got %d", spec.iterations)
	}
	if spec.limit < 0 {
		return nil, apperrors.BadRequest("feed limit must not be negative, got %d", spec.limit)
	}
	if spec.iterations > col.MaxIterationsLimit {
		return nil, apperrors.BadRequest("iterations %d exceed the limit of %d", spec.iterations, col.MaxIterationsLimit)
	}
	if req.Params.Target != nil {
		spec.target = *req.Params.Target
	}

	spec.lower, spec.upper = col.Bounds(data.Cols())
	for d := range spec.lower {
		if req.Params.LowerBound != nil {
			spec.lower[d] = *req.Params.LowerBound
		}
		if req.Params.UpperBound != nil {
			spec.upper[d] = *req.Params.UpperBound
		}
	}
	bounds := abc.Bounds{Lower: spec.lower, Upper: spec.upper}
	if err := bounds.Validate(data.Cols()); err != nil {
		return nil, err
	}
	return spec, nil
}

func (spec *runSpec) bounds() [][2]float64 {
	out := make([][2]float64, len(spec.lower))
	for d := range out {
		out[d] = [2]float64{spec.lower[d], spec.upper[d]}
	}
	return out
}

func resolveInput(in RunInput) (*dataset.Dataset, error) {
	mode := strings.ToLower(in.Mode)
	if mode == "" {
		switch {
		case len(in.Matrix) > 0:
			mode = ModeMatrix
		case in.Inline != "":
			mode = ModeInline
		default:
			mode = ModePreloaded
		}
	}

	switch mode {
	case ModePreloaded:
		name := in.DatasetName
		if name == "" {
			name = dataset.ReferenceName
		}
		return dataset.Lookup(name)
	case ModeMatrix, "manual", "upload":
		if len(in.Matrix) == 0 {
			return nil, apperrors.BadRequest("no matrix data provided")
		}
		return dataset.FromMatrix("matrix", in.Matrix, in.Alternatives)
	case ModeInline:
		d, err := dataset.ParseInline(in.Inline)
		if err != nil {
			return nil, apperrors.Wrapf(err, "inline input")
		}
		if len(in.Alternatives) > 0 {
			return dataset.FromMatrix("inline", d.Matrix, in.Alternatives)
		}
		return d, nil
	default:
		return nil, apperrors.BadRequest("unknown input mode %q", in.Mode)
	}
}

// newEngine builds the colony for spec behind the shared optimizer contract.
// observer, if set, receives every completed iteration after the metrics.
func (s *Server) newEngine(mode string, spec *runSpec, observer func(abc.IterationRecord)) (*abc.Optimizer, error) {
	opts := []abc.Option{
		abc.WithObserver(func(rec abc.IterationRecord) {
			s.metrics.IterationsTotal.Inc()
			s.metrics.ScoutResetsTotal.Add(float64(rec.ScoutResets))
			if observer != nil {
				observer(rec)
			}
		}),
	}
	if spec.seed != nil {
		opts = append(opts, abc.WithSeed(*spec.seed))
	}

	logger := s.engineLogger.With(zap.String("dataset", spec.data.Name), zap.String("mode", mode))
	return abc.NewOptimizer(optimization.OptimizerConfig{
		Objective:     optimization.SquaredDeviation(spec.target),
		Bounds:        spec.bounds(),
		MaxIterations: spec.iterations,
		InitialPoints: spec.data.Matrix,
		Labels:        spec.data.Alternatives,
		Limit:         spec.limit,
	}, logger, opts...)
}

// execute runs engine to completion once a concurrency slot is free. onStart
// fires after the slot is acquired. On cancellation the partial result is
// returned together with the context error.
func (s *Server) execute(ctx context.Context, mode string, engine *abc.Optimizer, onStart func()) (*abc.RunResult, error) {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.slots }()
	s.metrics.ActiveRuns.Inc()
	defer s.metrics.ActiveRuns.Dec()

	if onStart != nil {
		onStart()
	}

	out, err := engine.Optimize(ctx, optimization.OptimizerConfig{})
	switch {
	case err == nil:
		s.metrics.RunsTotal.WithLabelValues(mode, "completed").Inc()
	case abc.IsCancelled(err):
		s.metrics.RunsTotal.WithLabelValues(mode, "cancelled").Inc()
	case optimization.IsInvalidInput(err):
		s.metrics.RunsTotal.WithLabelValues(mode, "rejected").Inc()
	default:
		s.metrics.RunsTotal.WithLabelValues(mode, "failed").Inc()
	}
	if out != nil && out.BestSolution != nil {
		s.metrics.BestCost.Set(out.BestSolution.Value)
	}

	res := engine.RunResult()
	if res == nil {
		return nil, err
	}
	s.metrics.RunDurationSeconds.WithLabelValues(mode).Observe(res.Elapsed.Seconds())
	return res, err
}

func newRunResponse(res *abc.RunResult) *RunResponse {
	return &RunResponse{
		DurationMs:           res.Elapsed.Milliseconds(),
		KPIs:                 report.ComputeKPIs(res).List(),
		BestSolution:         res.Best.Position,
		BestCost:             res.Best.Cost,
		BestIteration:        res.Best.Iteration,
		BestAlternative:      res.Best.Label,
		FinalBestAlternative: res.FinalBestLabel,
		Seed:                 res.Seed,
		Completed:            res.Completed(),
		ResultSeries:         report.Series(res.History),
	}
}

func decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, apperrors.BadRequest("invalid request body: %v", err)
	}
	return req, nil
}

// handleRun handles POST /api/v1/run: a synchronous run answered with the
// full result.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r)
	if err != nil {
		apperrors.WriteError(w, r, err)
		return
	}
	resp, err := s.runSync(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("Run completed", map[string]interface{}{
		"best_cost":   resp.BestCost,
		"iterations":  len(resp.ResultSeries),
		"duration_ms": resp.DurationMs,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runSync(ctx context.Context, req RunRequest) (*RunResponse, error) {
	spec, err := s.buildSpec(req)
	if err != nil {
		return nil, err
	}
	engine, err := s.newEngine("sync", spec, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.execute(ctx, "sync", engine, nil)
	if err != nil {
		return nil, err
	}
	return newRunResponse(res), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
