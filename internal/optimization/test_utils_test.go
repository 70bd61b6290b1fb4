package optimization

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// generateRandomMatrix generates a random matrix with values in [min, max]
func generateRandomMatrix(rng *rand.Rand, rows, cols int, min, max float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = min + rng.Float64()*(max-min)
	}
	return mat.NewDense(rows, cols, data)
}
