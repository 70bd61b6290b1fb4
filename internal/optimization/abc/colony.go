// Package abc implements the Artificial Bee Colony optimizer: a population
// of food sources refined by employed, onlooker and scout bees.
package abc

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/beecolony/abcopt/internal/optimization"
)

const component = "abc"

// Option customizes a run at Initialize.
type Option func(*settings)

type settings struct {
	seed      int64
	seeded    bool
	limit     int
	objective optimization.ObjectiveFunction
	labels    []string
	logger    *zap.Logger
	observer  func(IterationRecord)
}

// WithSeed fixes the pseudo-random seed. Runs with equal seeds and inputs are
// bit-identical.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithLimit overrides the stagnation threshold. Zero keeps the N*D default.
func WithLimit(limit int) Option {
	return func(s *settings) { s.limit = limit }
}

// WithObjective replaces the reference objective.
func WithObjective(obj optimization.ObjectiveFunction) Option {
	return func(s *settings) { s.objective = obj }
}

// WithLabels names the food sources, in row order.
func WithLabels(labels []string) Option {
	return func(s *settings) { s.labels = labels }
}

// WithLogger sets the logger used by the engine.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a callback invoked with a copy of every completed
// iteration record. It runs on the stepping goroutine between iterations.
func WithObserver(fn func(IterationRecord)) Option {
	return func(s *settings) { s.observer = fn }
}

// RunState owns one run: its population, random source and history. It is
// not safe for concurrent use.
type RunState struct {
	pop           *Population
	hive          *hive
	tracker       *Tracker
	maxIterations int
	iteration     int
	seed          int64

	logger   *zap.Logger
	observer func(IterationRecord)

	startedAt  time.Time
	finishedAt time.Time

	// err poisons the state after a failed iteration.
	err error
}

func resolveSettings(opts []Option) *settings {
	s := &settings{
		objective: optimization.SquaredDeviation(optimization.DefaultTarget),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.seeded {
		s.seed = time.Now().UnixNano()
	}
	return s
}

// Initialize validates matrix and bounds and seeds a population with one food
// source per row. Nil lb/ub default to 0 and 1 in every dimension.
func Initialize(matrix [][]float64, lb, ub []float64, maxIterations int, opts ...Option) (*RunState, error) {
	if err := validateMatrix(matrix); err != nil {
		return nil, err.WithComponent(component).WithOperation("initialize")
	}
	s := resolveSettings(opts)
	return initialize(matrix, lb, ub, maxIterations, s, rand.New(rand.NewSource(s.seed)))
}

// InitializeRandom seeds n food sources uniformly inside the bounds, drawing
// from the run's own random source.
func InitializeRandom(n int, lb, ub []float64, maxIterations int, opts ...Option) (*RunState, error) {
	if n < 1 || len(lb) == 0 {
		return nil, optimization.NewErrorf(optimization.ErrInvalidDatasetShape,
			"random population needs at least one food source and one dimension, got %dx%d", n, len(lb)).
			WithComponent(component).WithOperation("initialize")
	}
	bounds := Bounds{Lower: lb, Upper: ub}
	if err := bounds.Validate(len(lb)); err != nil {
		return nil, err
	}

	s := resolveSettings(opts)
	rng := rand.New(rand.NewSource(s.seed))
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, len(lb))
		for d := range matrix[i] {
			matrix[i][d] = bounds.Clip(d, lb[d]+rng.Float64()*(ub[d]-lb[d]))
		}
	}
	return initialize(matrix, lb, ub, maxIterations, s, rng)
}

func validateMatrix(matrix [][]float64) *optimization.Error {
	if len(matrix) == 0 {
		return optimization.NewErrorf(optimization.ErrInvalidDatasetShape, "matrix has no rows")
	}
	dim := len(matrix[0])
	if dim == 0 {
		return optimization.NewErrorf(optimization.ErrInvalidDatasetShape, "matrix has no columns")
	}
	for i, row := range matrix {
		if len(row) != dim {
			return optimization.NewErrorf(optimization.ErrInvalidDatasetShape,
				"row %d has %d columns, expected %d", i, len(row), dim)
		}
		for d, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return optimization.NewErrorf(optimization.ErrInvalidDatasetShape,
					"row %d column %d is not a finite number", i, d)
			}
		}
	}
	return nil
}

func initialize(matrix [][]float64, lb, ub []float64, maxIterations int, s *settings, rng *rand.Rand) (*RunState, error) {
	n, dim := len(matrix), len(matrix[0])

	if lb == nil && ub == nil {
		def := DefaultBounds(dim)
		lb, ub = def.Lower, def.Upper
	}
	bounds := Bounds{Lower: lb, Upper: ub}.clone()
	if err := bounds.Validate(dim); err != nil {
		return nil, optimization.WrapErrorf(err, "validating bounds").
			WithComponent(component).WithOperation("initialize")
	}
	if maxIterations < 1 {
		return nil, optimization.NewErrorf(optimization.ErrInvalidConfig,
			"max iterations must be positive, got %d", maxIterations).
			WithComponent(component).WithOperation("initialize")
	}
	if s.limit < 0 {
		return nil, optimization.NewErrorf(optimization.ErrInvalidConfig,
			"limit must not be negative, got %d", s.limit).
			WithComponent(component).WithOperation("initialize")
	}
	if len(s.labels) > 0 && len(s.labels) != n {
		return nil, optimization.NewErrorf(optimization.ErrInvalidDatasetShape,
			"%d labels for %d rows", len(s.labels), n).
			WithComponent(component).WithOperation("initialize")
	}
	limit := s.limit
	if limit == 0 {
		limit = n * dim
	}

	startedAt := time.Now()
	pop := newPopulation(matrix, s.labels)

	clipped := 0
	for i := 0; i < n; i++ {
		row := pop.position(i)
		for d, v := range row {
			if c := bounds.Clip(d, v); c != v {
				row[d] = c
				clipped++
			}
		}
	}
	if clipped > 0 {
		s.logger.Warn("initial positions clipped into bounds", zap.Int("coordinates", clipped))
	}

	if err := pop.evaluate(s.objective); err != nil {
		return nil, optimization.WrapErrorf(err, "evaluating initial population").
			WithComponent(component).WithOperation("initialize")
	}

	s.logger.Info("colony initialized",
		zap.Int("food_sources", n),
		zap.Int("dimensions", dim),
		zap.Int("limit", limit),
		zap.Int("max_iterations", maxIterations),
		zap.Int64("seed", s.seed))

	return &RunState{
		pop:           pop,
		hive:          newHive(pop, bounds, s.objective, rng, limit, s.logger),
		tracker:       NewTracker(maxIterations),
		maxIterations: maxIterations,
		seed:          s.seed,
		logger:        s.logger,
		observer:      s.observer,
		startedAt:     startedAt,
		finishedAt:    startedAt,
	}, nil
}

// Seed returns the seed the run's random source was created with.
func (s *RunState) Seed() int64 { return s.seed }

// Limit returns the stagnation threshold in effect.
func (s *RunState) Limit() int { return s.hive.limit }

// Iteration returns the number of completed iterations.
func (s *RunState) Iteration() int { return s.iteration }

// MaxIterations returns the iteration budget.
func (s *RunState) MaxIterations() int { return s.maxIterations }

// Done reports whether the iteration budget is exhausted.
func (s *RunState) Done() bool { return s.iteration >= s.maxIterations }

// Population exposes the live population for inspection between iterations.
func (s *RunState) Population() *Population { return s.pop }

// Bounds returns a copy of the search box.
func (s *RunState) Bounds() Bounds { return s.hive.bounds.clone() }

// Err returns the failure that aborted the run, if any.
func (s *RunState) Err() error { return s.err }

// Step runs exactly one iteration: employed, onlooker, then scout bees over
// the whole population. The context is only consulted before the iteration
// starts. A failure inside the iteration aborts the run for good.
func (s *RunState) Step(ctx context.Context) (IterationRecord, error) {
	if s.err != nil {
		return IterationRecord{}, optimization.WrapErrorf(optimization.ErrRunAborted, "%v", s.err).
			WithComponent(component).WithOperation("step")
	}
	if s.Done() {
		return IterationRecord{}, optimization.NewErrorf(optimization.ErrRunComplete,
			"all %d iterations already ran", s.maxIterations).
			WithComponent(component).WithOperation("step")
	}
	if err := ctx.Err(); err != nil {
		return IterationRecord{}, err
	}

	employed, err := s.hive.employed()
	if err != nil {
		return IterationRecord{}, s.abort(err)
	}
	onlooker, err := s.hive.onlooker()
	if err != nil {
		return IterationRecord{}, s.abort(err)
	}
	scout, err := s.hive.scout()
	if err != nil {
		return IterationRecord{}, s.abort(err)
	}

	s.iteration++
	rec := s.record(employed, onlooker, scout)
	s.tracker.Record(rec)
	s.finishedAt = time.Now()

	s.logger.Debug("iteration complete",
		zap.Int("iteration", rec.Iteration),
		zap.Float64("best_cost", rec.BestCost),
		zap.String("best_label", rec.BestLabel),
		zap.Int("improvements", rec.Improvements),
		zap.Int("scout_resets", rec.ScoutResets))

	if s.observer != nil {
		s.observer(rec.clone())
	}
	return rec.clone(), nil
}

func (s *RunState) abort(err error) error {
	s.err = err
	s.logger.Error("iteration failed, run aborted",
		zap.Int("iteration", s.iteration+1),
		zap.Error(err))
	return optimization.WrapErrorf(err, "iteration %d", s.iteration+1).
		WithComponent(component).WithOperation("step")
}

func (s *RunState) record(employed, onlooker, scout phaseStats) IterationRecord {
	idx := s.pop.BestIndex()
	mean, std := stat.MeanStdDev(s.pop.fitness, nil)
	if s.pop.Size() < 2 {
		std = 0
	}
	return IterationRecord{
		Iteration:         s.iteration,
		BestCost:          s.pop.cost[idx],
		BestPosition:      append([]float64(nil), s.pop.position(idx)...),
		BestIndex:         idx,
		BestLabel:         s.pop.labels[idx],
		MeanFitness:       mean,
		StdFitness:        std,
		Improvements:      employed.Improvements + onlooker.Improvements,
		OnlookerVisits:    onlooker.Attempts,
		ScoutResets:       scout.Resets,
		DegenerateFitness: onlooker.Degenerate,
	}
}

// Run steps until the iteration budget is exhausted. Cancellation is honored
// between iterations; the result of the completed iterations is returned
// together with the context error.
func (s *RunState) Run(ctx context.Context) (*RunResult, error) {
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			s.logger.Info("run cancelled",
				zap.Int("completed_iterations", s.iteration),
				zap.Int("max_iterations", s.maxIterations))
			return s.Result(), err
		}
		if _, err := s.Step(ctx); err != nil {
			return nil, err
		}
	}

	res := s.Result()
	s.logger.Info("run complete",
		zap.Int("iterations", len(res.History)),
		zap.Float64("best_cost", res.Best.Cost),
		zap.Int("best_iteration", res.Best.Iteration),
		zap.String("best_label", res.FinalBestLabel),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// BestSoFar returns the lowest per-iteration best cost recorded so far. Before
// the first iteration it reports the best of the initial population as
// iteration 0.
func (s *RunState) BestSoFar() Best {
	if b, ok := s.tracker.Best(); ok {
		return b
	}
	idx := s.pop.BestIndex()
	return Best{
		Cost:      s.pop.cost[idx],
		Position:  append([]float64(nil), s.pop.position(idx)...),
		Iteration: 0,
		Label:     s.pop.labels[idx],
	}
}

// Result assembles the run result from the iterations completed so far.
// After a failed iteration the population holds partial updates, so the
// result carries the history only: FinalPopulation is nil and
// FinalBestLabel is empty.
func (s *RunState) Result() *RunResult {
	best, _ := s.tracker.Best()
	res := &RunResult{
		History:       s.tracker.Records(),
		Best:          best,
		Seed:          s.seed,
		Limit:         s.hive.limit,
		MaxIterations: s.maxIterations,
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
		Elapsed:       s.finishedAt.Sub(s.startedAt),
	}
	if s.err == nil {
		res.FinalBestLabel = s.pop.labels[s.pop.BestIndex()]
		res.FinalPopulation = s.pop.Snapshot()
	}
	return res
}
