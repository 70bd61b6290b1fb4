package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/beecolony/abcopt/internal/errors"
	"github.com/beecolony/abcopt/internal/optimization"
	"github.com/beecolony/abcopt/internal/report"
)

// JobStatus is the lifecycle state of an asynchronous run.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

var allStatuses = []JobStatus{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job tracks one asynchronous colony run. Fields are guarded by the
// registry lock; callers only ever see copies.
type Job struct {
	ID            string
	Status        JobStatus
	Dataset       string
	MaxIterations int
	Iteration     int
	Series        []report.SeriesPoint
	Result        *RunResponse
	Error         string
	StartTime     time.Time
	EndTime       *time.Time
	LastUpdated   time.Time

	// engine is safe to query while the job runs.
	engine optimization.Optimizer
	stop   func()
}

// Progress is the fraction of the iteration budget completed.
func (j *Job) Progress() float64 {
	if j.MaxIterations == 0 {
		return 0
	}
	return float64(j.Iteration) / float64(j.MaxIterations)
}

func (j *Job) snapshot() Job {
	out := *j
	out.stop = nil
	out.Series = append([]report.SeriesPoint(nil), j.Series...)
	if j.EndTime != nil {
		t := *j.EndTime
		out.EndTime = &t
	}
	return out
}

// registry holds the jobs of one server.
type registry struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration
	metrics   *Metrics
	now       func() time.Time
}

func newRegistry(retention time.Duration, metrics *Metrics) *registry {
	return &registry{
		jobs:      make(map[string]*Job),
		retention: retention,
		metrics:   metrics,
		now:       time.Now,
	}
}

// create registers a pending job and returns its ID. stop is called when the
// job is cancelled.
func (r *registry) create(dataset string, maxIterations int, engine optimization.Optimizer, stop func()) string {
	now := r.now()
	job := &Job{
		ID:            uuid.NewString(),
		Status:        StatusPending,
		Dataset:       dataset,
		MaxIterations: maxIterations,
		StartTime:     now,
		LastUpdated:   now,
		engine:        engine,
		stop:          stop,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.refreshGauges()
	r.mu.Unlock()
	return job.ID
}

// get returns a copy of the job.
func (r *registry) get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, apperrors.NotFound("optimization %q not found", id)
	}
	return job.snapshot(), nil
}

// update applies fn to a non-terminal job. Updates to finished or removed
// jobs are dropped, so a late iteration cannot revive a cancelled job.
func (r *registry) update(id string, fn func(*Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	fn(job)
	job.LastUpdated = r.now()
	if job.Status.Terminal() {
		end := job.LastUpdated
		job.EndTime = &end
	}
	r.refreshGauges()
	return true
}

// cancel moves a pending or running job to cancelled and stops its run.
func (r *registry) cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return apperrors.NotFound("optimization %q not found", id)
	}
	if job.Status.Terminal() {
		return apperrors.Conflict("cannot cancel optimization with status: %s", job.Status)
	}
	if job.stop != nil {
		job.stop()
	}
	now := r.now()
	job.Status = StatusCancelled
	job.EndTime = &now
	job.LastUpdated = now
	r.refreshGauges()
	return nil
}

// sweep drops terminal jobs that ended more than the retention ago.
func (r *registry) sweep() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.Status.Terminal() && job.EndTime != nil && job.EndTime.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		r.refreshGauges()
	}
	return removed
}

// cancelAll stops every unfinished job.
func (r *registry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.stop != nil {
			job.stop()
		}
	}
}

// refreshGauges must be called with r.mu held.
func (r *registry) refreshGauges() {
	if r.metrics == nil {
		return
	}
	counts := make(map[JobStatus]int, len(allStatuses))
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	for _, s := range allStatuses {
		r.metrics.Jobs.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
