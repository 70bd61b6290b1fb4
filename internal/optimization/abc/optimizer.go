package abc

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/beecolony/abcopt/internal/optimization"
)

const (
	defaultMaxIterations = 50
	defaultInitialPoints = 10
)

// Optimizer drives a colony through the optimization.Optimizer contract.
// GetBestSolution and GetHistory may be called from other goroutines while
// Optimize is running.
type Optimizer struct {
	logger *zap.Logger
	opts   []Option

	mu      sync.RWMutex
	config  optimization.OptimizerConfig
	best    *optimization.Solution
	history []optimization.Evaluation
	last    *RunResult
	cancel  context.CancelFunc
	stopped bool
	seed    int64
}

var _ optimization.Optimizer = (*Optimizer)(nil)

// NewOptimizer creates an ABC optimizer with defaults applied to config.
// opts are applied to every run after the settings derived from config, so
// WithSeed overrides RandomSeed. An observer given in opts is called after
// the optimizer has recorded the iteration.
func NewOptimizer(config optimization.OptimizerConfig, logger *zap.Logger, opts ...Option) (*Optimizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = withDefaults(config)
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &Optimizer{
		config:  config,
		logger:  logger,
		opts:    opts,
		history: make([]optimization.Evaluation, 0, config.MaxIterations),
	}, nil
}

func withDefaults(config optimization.OptimizerConfig) optimization.OptimizerConfig {
	if config.MaxIterations < 1 {
		config.MaxIterations = defaultMaxIterations
	}
	if len(config.InitialPoints) == 0 && config.NInitialPoints < 1 {
		config.NInitialPoints = defaultInitialPoints
	}
	if config.Objective == nil {
		config.Objective = optimization.SquaredDeviation(optimization.DefaultTarget)
	}
	return config
}

func validateConfig(config optimization.OptimizerConfig) error {
	if len(config.InitialPoints) == 0 && len(config.Bounds) == 0 {
		return optimization.NewErrorf(optimization.ErrInvalidConfig,
			"bounds are required when no initial points are given").
			WithComponent(component).WithOperation("configure")
	}
	return nil
}

// Config returns the effective configuration.
func (o *Optimizer) Config() optimization.OptimizerConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

// Seed returns the seed used by the last Optimize call.
func (o *Optimizer) Seed() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.seed
}

// Optimize runs a full colony. A config carrying initial points or an
// objective replaces the one given to NewOptimizer. When the context is
// cancelled or Stop is called, the iterations completed so far are returned
// together with the context error.
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	replace := config.Objective != nil || len(config.InitialPoints) > 0
	if replace {
		config = withDefaults(config)
		if err := validateConfig(config); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, context.Canceled
	}
	if replace {
		o.config = config
	}
	cfg := o.config
	o.cancel = cancel
	o.best = nil
	o.history = o.history[:0]
	o.last = nil
	o.mu.Unlock()

	state, err := o.newRunState(cfg)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.seed = state.Seed()
	o.mu.Unlock()

	res, err := state.Run(ctx)
	if res == nil {
		return nil, err
	}

	o.mu.Lock()
	o.last = res
	o.mu.Unlock()
	return toOptimizationResult(res), err
}

// RunResult returns the full result of the last Optimize call, or nil when
// it failed or has not finished.
func (o *Optimizer) RunResult() *RunResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

func (o *Optimizer) newRunState(cfg optimization.OptimizerConfig) (*RunState, error) {
	var lb, ub []float64
	if len(cfg.Bounds) > 0 {
		lb = make([]float64, len(cfg.Bounds))
		ub = make([]float64, len(cfg.Bounds))
		for d, b := range cfg.Bounds {
			lb[d], ub[d] = b[0], b[1]
		}
	}

	opts := []Option{
		WithObjective(cfg.Objective),
		WithLimit(cfg.Limit),
		WithLabels(cfg.Labels),
		WithLogger(o.logger),
	}
	if cfg.RandomSeed != 0 {
		opts = append(opts, WithSeed(cfg.RandomSeed))
	}
	opts = append(opts, o.opts...)

	var extra settings
	for _, opt := range o.opts {
		opt(&extra)
	}
	opts = append(opts, WithObserver(func(rec IterationRecord) {
		o.observe(rec, cfg.Verbose)
		if extra.observer != nil {
			extra.observer(rec)
		}
	}))

	if len(cfg.InitialPoints) > 0 {
		return Initialize(cfg.InitialPoints, lb, ub, cfg.MaxIterations, opts...)
	}
	return InitializeRandom(cfg.NInitialPoints, lb, ub, cfg.MaxIterations, opts...)
}

// observe runs between iterations on the Optimize goroutine.
func (o *Optimizer) observe(rec IterationRecord, verbose bool) {
	sol := &optimization.Solution{
		Parameters: rec.BestPosition,
		Value:      rec.BestCost,
		Label:      rec.BestLabel,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, optimization.Evaluation{Iteration: rec.Iteration, Solution: sol})
	if o.best == nil || sol.Value < o.best.Value {
		o.best = sol
	}

	if verbose {
		o.logger.Info("iteration", zap.Int("iteration", rec.Iteration), zap.Float64("best_cost", rec.BestCost))
	}
}

// GetBestSolution returns the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.best == nil {
		return nil
	}
	return copySolution(o.best)
}

// GetHistory returns the per-iteration bests recorded so far
func (o *Optimizer) GetHistory() []optimization.Evaluation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]optimization.Evaluation, len(o.history))
	for i, ev := range o.history {
		out[i] = optimization.Evaluation{Iteration: ev.Iteration, Solution: copySolution(ev.Solution), Error: ev.Error}
	}
	return out
}

// Stop cancels a running Optimize at the next iteration boundary and
// prevents later runs.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
}

func copySolution(s *optimization.Solution) *optimization.Solution {
	return &optimization.Solution{
		Parameters: append([]float64(nil), s.Parameters...),
		Value:      s.Value,
		Label:      s.Label,
	}
}

func toOptimizationResult(res *RunResult) *optimization.OptimizationResult {
	history := make([]optimization.Evaluation, len(res.History))
	for i, rec := range res.History {
		history[i] = optimization.Evaluation{
			Iteration: rec.Iteration,
			Solution: &optimization.Solution{
				Parameters: append([]float64(nil), rec.BestPosition...),
				Value:      rec.BestCost,
				Label:      rec.BestLabel,
			},
		}
	}

	out := &optimization.OptimizationResult{
		History:    history,
		Iterations: len(res.History),
		Converged:  res.Completed(),
	}
	if len(res.History) > 0 {
		out.BestSolution = &optimization.Solution{
			Parameters: append([]float64(nil), res.Best.Position...),
			Value:      res.Best.Cost,
			Label:      res.Best.Label,
		}
		out.BestIteration = res.Best.Iteration
	}
	return out
}

// IsCancelled reports whether err comes from a stopped or cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
