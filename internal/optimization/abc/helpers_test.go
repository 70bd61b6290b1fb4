package abc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// referenceMatrix is the 9-alternative, 5-criterion decision matrix.
func referenceMatrix() [][]float64 {
	return [][]float64{
		{0.048, 0.047, 0.070, 0.087, 0.190},
		{0.053, 0.052, 0.066, 0.081, 0.058},
		{0.057, 0.057, 0.066, 0.076, 0.022},
		{0.062, 0.062, 0.063, 0.058, 0.007},
		{0.066, 0.066, 0.070, 0.085, 0.004},
		{0.070, 0.071, 0.066, 0.058, 0.003},
		{0.075, 0.075, 0.066, 0.047, 0.002},
		{0.079, 0.079, 0.066, 0.035, 0.002},
		{0.083, 0.083, 0.066, 0.051, 0.000},
	}
}

func referenceLabels() []string {
	return []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9"}
}

// newReferenceRun initializes the reference fixture with the given seed.
func newReferenceRun(t testing.TB, seed int64, maxIter int, opts ...Option) *RunState {
	t.Helper()
	opts = append([]Option{WithSeed(seed), WithLabels(referenceLabels())}, opts...)
	state, err := Initialize(referenceMatrix(), nil, nil, maxIter, opts...)
	require.NoError(t, err)
	return state
}

// assertInBounds fails if any food source left the search box.
func assertInBounds(t *testing.T, pop *Population, b Bounds) {
	t.Helper()
	for i := 0; i < pop.Size(); i++ {
		fs := pop.FoodSource(i)
		for d, v := range fs.Position {
			if v < b.Lower[d] || v > b.Upper[d] {
				t.Fatalf("food source %d dimension %d = %v outside [%v, %v]", i, d, v, b.Lower[d], b.Upper[d])
			}
		}
	}
}

// scanGlobalBest scans a history for its minimum best cost, earliest on ties.
func scanGlobalBest(history []IterationRecord) (Best, bool) {
	if len(history) == 0 {
		return Best{}, false
	}
	idx := 0
	for i, rec := range history[1:] {
		if rec.BestCost < history[idx].BestCost {
			idx = i + 1
		}
	}
	rec := history[idx]
	return Best{
		Cost:      rec.BestCost,
		Position:  append([]float64(nil), rec.BestPosition...),
		Iteration: rec.Iteration,
		Label:     rec.BestLabel,
	}, true
}
