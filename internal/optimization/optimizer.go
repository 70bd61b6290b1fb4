package optimization

import (
	"context"
)

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Optimize runs the optimization process
	Optimize(ctx context.Context, config OptimizerConfig) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the per-iteration history of best solutions
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process at the next
	// iteration boundary
	Stop()
}

// OptimizerConfig contains configuration for the optimizer
type OptimizerConfig struct {
	// Objective function to minimize. Defaults to SquaredDeviation(DefaultTarget).
	Objective ObjectiveFunction

	// Bounds for each dimension [min, max]
	Bounds [][2]float64

	// Maximum number of iterations
	MaxIterations int

	// InitialPoints seeds the population, one row per candidate.
	InitialPoints [][]float64

	// Labels names each initial point (alternative names).
	Labels []string

	// Number of random points sampled inside Bounds when InitialPoints is empty
	NInitialPoints int

	// Limit is the stagnation threshold. Zero means N*D.
	Limit int

	// Random seed for reproducibility. Zero picks a time-derived seed.
	RandomSeed int64

	// Verbose logging
	Verbose bool
}

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64
	Value      float64
	// Label of the food source the solution came from, if known
	Label string
}

// Evaluation represents the best solution observed in a single iteration
type Evaluation struct {
	Iteration int
	Solution  *Solution
	Error     error
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	// BestIteration is the iteration in which BestSolution was first observed
	BestIteration int
	History       []Evaluation
	Iterations    int
	Converged     bool
}
