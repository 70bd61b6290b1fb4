package abc

import (
	"time"
)

// IterationRecord captures the state of the colony at the end of one iteration.
type IterationRecord struct {
	// Iteration is 1-based.
	Iteration    int
	BestCost     float64
	BestPosition []float64
	BestIndex    int
	BestLabel    string

	MeanFitness float64
	StdFitness  float64

	// Improvements counts greedy replacements made by employed and onlooker bees.
	Improvements int
	// OnlookerVisits counts onlooker bees that fired.
	OnlookerVisits int
	ScoutResets    int
	// DegenerateFitness is set when onlooker selection fell back to 1/N.
	DegenerateFitness bool
}

func (r IterationRecord) clone() IterationRecord {
	r.BestPosition = append([]float64(nil), r.BestPosition...)
	return r
}

// Best is the lowest cost observed across a run's per-iteration bests.
type Best struct {
	Cost      float64
	Position  []float64
	Iteration int
	Label     string
}

// RunResult is everything that survives a run.
type RunResult struct {
	History []IterationRecord
	Best    Best
	// FinalBestLabel names the lowest-cost food source of the final population.
	FinalBestLabel  string
	FinalPopulation []FoodSource

	Seed          int64
	Limit         int
	MaxIterations int

	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

// Completed reports whether the run used its whole iteration budget.
func (r *RunResult) Completed() bool {
	return len(r.History) == r.MaxIterations
}

// Tracker accumulates iteration records and keeps the global best.
type Tracker struct {
	records []IterationRecord
	best    Best
	hasBest bool
}

// NewTracker creates a tracker sized for the expected number of iterations.
func NewTracker(capacity int) *Tracker {
	return &Tracker{records: make([]IterationRecord, 0, capacity)}
}

// Record appends rec. The global best only moves on a strictly lower cost, so
// ties keep the earliest iteration.
func (t *Tracker) Record(rec IterationRecord) {
	t.records = append(t.records, rec)
	if !t.hasBest || rec.BestCost < t.best.Cost {
		t.best = Best{
			Cost:      rec.BestCost,
			Position:  append([]float64(nil), rec.BestPosition...),
			Iteration: rec.Iteration,
			Label:     rec.BestLabel,
		}
		t.hasBest = true
	}
}

// Len returns the number of recorded iterations.
func (t *Tracker) Len() int { return len(t.records) }

// Records returns a copy of the history.
func (t *Tracker) Records() []IterationRecord {
	return append([]IterationRecord(nil), t.records...)
}

// Best returns the global best so far and whether any iteration was recorded.
func (t *Tracker) Best() (Best, bool) {
	if !t.hasBest {
		return Best{}, false
	}
	b := t.best
	b.Position = append([]float64(nil), t.best.Position...)
	return b, true
}
