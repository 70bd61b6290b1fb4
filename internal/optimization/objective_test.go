package optimization

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSquaredDeviation(t *testing.T) {
	obj := SquaredDeviation(DefaultTarget)

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"at target", []float64{0.05, 0.05, 0.05}, 0},
		{"single dimension", []float64{0.15}, 0.01},
		{"mixed", []float64{0.05, 0.25, 0.0}, 0.04 + 0.0025},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := obj(tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestSquaredDeviationDeterministic(t *testing.T) {
	obj := SquaredDeviation(DefaultTarget)
	x := []float64{0.048, 0.047, 0.070, 0.087, 0.190}

	first, err := obj(x)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := obj(x)
		require.NoError(t, err)
		assert.Equal(t, first, got, "repeated evaluation must be bit-identical")
	}
	assert.Equal(t, []float64{0.048, 0.047, 0.070, 0.087, 0.190}, x, "input must not be mutated")
}

func TestEvaluateBatchMatchesSingle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	X := generateRandomMatrix(rng, 12, 5, 0, 1)
	obj := SquaredDeviation(DefaultTarget)

	batch, err := EvaluateBatch(obj, X)
	require.NoError(t, err)

	want := make([]float64, 12)
	for i := range want {
		want[i], err = obj(X.RawRowView(i))
		require.NoError(t, err)
	}
	assertFloat64SlicesEqual(t, batch, want, 0)

	// Evaluating in reverse row order yields the same per-row costs.
	for i := 11; i >= 0; i-- {
		got, err := Evaluate(obj, mat.Row(nil, i, X))
		require.NoError(t, err)
		assert.Equal(t, batch[i], got)
	}
}

func TestEvaluateFaults(t *testing.T) {
	boom := errors.New("boom")

	_, err := Evaluate(func([]float64) (float64, error) { return 0, boom }, []float64{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrObjectiveFault)
	assert.ErrorIs(t, err, boom)

	_, err = Evaluate(func([]float64) (float64, error) { return math.NaN(), nil }, []float64{1})
	assert.ErrorIs(t, err, ErrObjectiveFault)

	cost, err := Evaluate(func([]float64) (float64, error) { return math.Inf(1), nil }, []float64{1})
	require.NoError(t, err, "infinite costs are legal, only NaN is a fault")
	assert.True(t, math.IsInf(cost, 1))

	X := mat.NewDense(2, 1, []float64{1, 2})
	_, err = EvaluateBatch(func(x []float64) (float64, error) {
		if x[0] > 1 {
			return 0, boom
		}
		return x[0], nil
	}, X)
	assert.ErrorIs(t, err, ErrObjectiveFault)
	assert.Contains(t, err.Error(), "row 1")
}
