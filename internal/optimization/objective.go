package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultTarget is the per-criterion value the reference objective pulls towards.
const DefaultTarget = 0.05

// ObjectiveFunction defines the function to be minimized
type ObjectiveFunction func([]float64) (float64, error)

// SquaredDeviation returns the reference cost: the sum over dimensions of the
// squared deviation from target.
func SquaredDeviation(target float64) ObjectiveFunction {
	return func(x []float64) (float64, error) {
		sum := 0.0
		for _, v := range x {
			diff := v - target
			sum += diff * diff
		}
		return sum, nil
	}
}

// Evaluate calls obj and turns a failure or a NaN cost into an ErrObjectiveFault.
func Evaluate(obj ObjectiveFunction, x []float64) (float64, error) {
	cost, err := obj(x)
	if err != nil {
		return 0, &Error{Message: "evaluating objective", Op: "evaluate", Err: joinFault(err)}
	}
	if math.IsNaN(cost) {
		return 0, NewErrorf(ErrObjectiveFault, "objective returned NaN for %v", x).WithOperation("evaluate")
	}
	return cost, nil
}

// EvaluateBatch evaluates every row of X. Row r of the result equals
// Evaluate(obj, row r) exactly.
func EvaluateBatch(obj ObjectiveFunction, X mat.Matrix) ([]float64, error) {
	r, c := X.Dims()
	costs := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		cost, err := Evaluate(obj, row)
		if err != nil {
			return nil, WrapErrorf(err, "row %d", i)
		}
		costs[i] = cost
	}
	return costs, nil
}

type faultError struct{ err error }

func (f faultError) Error() string { return f.err.Error() }

func (f faultError) Unwrap() []error { return []error{ErrObjectiveFault, f.err} }

// joinFault keeps the caller's error reachable while tagging it as an objective fault.
func joinFault(err error) error {
	return faultError{err: err}
}
