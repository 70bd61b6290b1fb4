package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/beecolony/abcopt/internal/dataset"
	apperrors "github.com/beecolony/abcopt/internal/errors"
	"github.com/beecolony/abcopt/internal/optimization"
	"github.com/beecolony/abcopt/internal/optimization/abc"
	"github.com/beecolony/abcopt/internal/report"
)

// StartResponse acknowledges an accepted asynchronous run.
type StartResponse struct {
	OptimizationID string    `json:"optimization_id"`
	Status         JobStatus `json:"status"`
}

// BestView is the global best of a job so far.
type BestView struct {
	Parameters  []float64 `json:"parameters"`
	Value       float64   `json:"value"`
	Iteration   int       `json:"iteration"`
	Alternative string    `json:"alternative"`
}

// StatusResponse describes a job.
type StatusResponse struct {
	OptimizationID string               `json:"optimization_id"`
	Status         JobStatus            `json:"status"`
	Dataset        string               `json:"dataset"`
	Progress       float64              `json:"progress"`
	Iteration      int                  `json:"iteration"`
	MaxIterations  int                  `json:"max_iterations"`
	StartTime      string               `json:"start_time"`
	LastUpdate     string               `json:"last_update"`
	EndTime        string               `json:"end_time,omitempty"`
	BestSolution   *BestView            `json:"best_solution,omitempty"`
	ResultSeries   []report.SeriesPoint `json:"result_series,omitempty"`
	Result         *RunResponse         `json:"result,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// DatasetSummary lists a preloaded dataset without its values.
type DatasetSummary struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Alternatives int    `json:"alternatives"`
	Criteria     int    `json:"criteria"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newStatusResponse(job Job) StatusResponse {
	resp := StatusResponse{
		OptimizationID: job.ID,
		Status:         job.Status,
		Dataset:        job.Dataset,
		Progress:       job.Progress(),
		Iteration:      job.Iteration,
		MaxIterations:  job.MaxIterations,
		StartTime:      formatTime(job.StartTime),
		LastUpdate:     formatTime(job.LastUpdated),
		ResultSeries:   job.Series,
		Result:         job.Result,
		Error:          job.Error,
	}
	if job.EndTime != nil {
		resp.EndTime = formatTime(*job.EndTime)
	}
	if job.engine != nil {
		resp.BestSolution = bestView(job.engine)
	}
	return resp
}

// bestView reads the global best of a running or finished engine. The
// iteration is the earliest one whose best matches it.
func bestView(engine optimization.Optimizer) *BestView {
	best := engine.GetBestSolution()
	if best == nil {
		return nil
	}
	view := &BestView{
		Parameters:  best.Parameters,
		Value:       best.Value,
		Alternative: best.Label,
	}
	for _, ev := range engine.GetHistory() {
		if ev.Solution != nil && ev.Solution.Value == best.Value {
			view.Iteration = ev.Iteration
			break
		}
	}
	return view
}

// startOptimization validates req and launches it as a background job.
func (s *Server) startOptimization(req RunRequest) (*StartResponse, error) {
	spec, err := s.buildSpec(req)
	if err != nil {
		return nil, err
	}

	var id string
	observer := func(rec abc.IterationRecord) {
		s.jobs.update(id, func(j *Job) {
			j.Iteration = rec.Iteration
			j.Series = append(j.Series, report.SeriesPoint{
				Iteration:   rec.Iteration,
				BestFitness: rec.BestCost,
				AvgFitness:  rec.MeanFitness,
				StdFitness:  rec.StdFitness,
			})
		})
	}
	engine, err := s.newEngine("async", spec, observer)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.Unavailable("server is shutting down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	id = s.jobs.create(spec.data.Name, spec.iterations, engine, func() {
		cancel()
		engine.Stop()
	})

	s.wg.Add(1)
	go s.runOptimization(ctx, cancel, id, engine)

	s.logger.Info("Optimization started", map[string]interface{}{
		"optimization_id": id,
		"dataset":         spec.data.Name,
		"iterations":      spec.iterations,
	})
	return &StartResponse{OptimizationID: id, Status: StatusPending}, nil
}

// runOptimization executes a job and records its outcome.
func (s *Server) runOptimization(ctx context.Context, cancel context.CancelFunc, id string, engine *abc.Optimizer) {
	defer s.wg.Done()
	defer cancel()

	onStart := func() {
		s.jobs.update(id, func(j *Job) { j.Status = StatusRunning })
	}

	res, err := s.execute(ctx, "async", engine, onStart)
	switch {
	case err == nil:
		s.jobs.update(id, func(j *Job) {
			j.Status = StatusCompleted
			j.Result = newRunResponse(res)
		})
		s.logger.Info("Optimization completed", map[string]interface{}{
			"optimization_id": id,
			"best_cost":       res.Best.Cost,
		})
	case abc.IsCancelled(err):
		s.jobs.update(id, func(j *Job) { j.Status = StatusCancelled })
		s.logger.Info("Optimization cancelled", map[string]interface{}{
			"optimization_id": id,
		})
	default:
		s.jobs.update(id, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
		})
		s.logger.Error("Optimization failed", map[string]interface{}{
			"optimization_id": id,
			"error":           err.Error(),
		})
	}
}

func (s *Server) optimizationStatus(id string) (*StatusResponse, error) {
	job, err := s.jobs.get(id)
	if err != nil {
		return nil, err
	}
	resp := newStatusResponse(job)
	return &resp, nil
}

func (s *Server) cancelOptimization(id string) error {
	if err := s.jobs.cancel(id); err != nil {
		return err
	}
	s.logger.Info("Optimization cancellation requested", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

func datasetSummaries() []DatasetSummary {
	all := dataset.Preloaded()
	out := make([]DatasetSummary, len(all))
	for i, d := range all {
		out[i] = DatasetSummary{
			Name:         d.Name,
			Description:  d.Description,
			Alternatives: d.Rows(),
			Criteria:     d.Cols(),
		}
	}
	return out
}

// handleOptimize handles POST /api/v1/optimize
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r)
	if err != nil {
		apperrors.WriteError(w, r, err)
		return
	}
	resp, err := s.startOptimization(req)
	if err != nil {
		apperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles DELETE /api/v1/optimization/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cancelOptimization(id); err != nil {
		apperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"optimization_id": id,
		"status":          "cancellation requested",
	})
}

// handleDatasets handles GET /api/v1/datasets
func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, datasetSummaries())
}

// handleDataset handles GET /api/v1/datasets/{name}
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	d, err := dataset.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		apperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
