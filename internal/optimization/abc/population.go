package abc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/beecolony/abcopt/internal/optimization"
)

// Bounds holds the per-dimension search box. It is constant for a run.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// DefaultBounds returns the unit box [0,1]^dim.
func DefaultBounds(dim int) Bounds {
	b := Bounds{Lower: make([]float64, dim), Upper: make([]float64, dim)}
	for d := range b.Upper {
		b.Upper[d] = 1
	}
	return b
}

// Dim returns the number of dimensions covered by the bounds.
func (b Bounds) Dim() int { return len(b.Lower) }

// Validate checks the bounds against the expected dimensionality.
func (b Bounds) Validate(dim int) error {
	if len(b.Lower) != dim || len(b.Upper) != dim {
		return optimization.NewErrorf(optimization.ErrInvalidBounds,
			"expected %d lower and upper bounds, got %d and %d", dim, len(b.Lower), len(b.Upper))
	}
	for d := 0; d < dim; d++ {
		lo, hi := b.Lower[d], b.Upper[d]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return optimization.NewErrorf(optimization.ErrInvalidBounds, "dimension %d has non-finite bounds [%v, %v]", d, lo, hi)
		}
		if lo > hi {
			return optimization.NewErrorf(optimization.ErrInvalidBounds, "dimension %d has lower bound %v above upper bound %v", d, lo, hi)
		}
	}
	return nil
}

// Clip clamps v into [Lower[d], Upper[d]].
func (b Bounds) Clip(d int, v float64) float64 {
	return math.Max(b.Lower[d], math.Min(v, b.Upper[d]))
}

// Contains reports whether every coordinate of x lies inside the bounds.
func (b Bounds) Contains(x []float64) bool {
	for d, v := range x {
		if v < b.Lower[d] || v > b.Upper[d] {
			return false
		}
	}
	return true
}

func (b Bounds) clone() Bounds {
	return Bounds{
		Lower: append([]float64(nil), b.Lower...),
		Upper: append([]float64(nil), b.Upper...),
	}
}

// FoodSource is a read-only copy of one candidate solution.
type FoodSource struct {
	Index    int
	Label    string
	Position []float64
	Cost     float64
	Fitness  float64
	Trial    int
}

// Population is the colony's fixed-size set of food sources. Positions are
// stored row-wise, one row per food source.
type Population struct {
	positions *mat.Dense
	cost      []float64
	fitness   []float64
	trial     []int
	labels    []string
}

func newPopulation(matrix [][]float64, labels []string) *Population {
	n, dim := len(matrix), len(matrix[0])
	p := &Population{
		positions: mat.NewDense(n, dim, nil),
		cost:      make([]float64, n),
		fitness:   make([]float64, n),
		trial:     make([]int, n),
		labels:    make([]string, n),
	}
	for i, row := range matrix {
		p.positions.SetRow(i, row)
		if i < len(labels) && labels[i] != "" {
			p.labels[i] = labels[i]
		} else {
			p.labels[i] = fmt.Sprintf("A%d", i+1)
		}
	}
	return p
}

// Size returns the number of food sources N.
func (p *Population) Size() int { return len(p.cost) }

// Dim returns the dimensionality D.
func (p *Population) Dim() int {
	_, c := p.positions.Dims()
	return c
}

// FoodSource returns a copy of food source i.
func (p *Population) FoodSource(i int) FoodSource {
	return FoodSource{
		Index:    i,
		Label:    p.labels[i],
		Position: mat.Row(nil, i, p.positions),
		Cost:     p.cost[i],
		Fitness:  p.fitness[i],
		Trial:    p.trial[i],
	}
}

// Snapshot returns copies of all food sources in index order.
func (p *Population) Snapshot() []FoodSource {
	out := make([]FoodSource, p.Size())
	for i := range out {
		out[i] = p.FoodSource(i)
	}
	return out
}

// BestIndex returns the index of the lowest-cost food source, the first one on ties.
func (p *Population) BestIndex() int {
	return floats.MinIdx(p.cost)
}

// position returns the live row of food source i. Callers must not retain it.
func (p *Population) position(i int) []float64 {
	return p.positions.RawRowView(i)
}

// set replaces position and cost of food source i and refreshes its fitness.
func (p *Population) set(i int, pos []float64, cost float64) {
	p.positions.SetRow(i, pos)
	p.cost[i] = cost
	p.fitness[i] = optimization.Fitness(cost)
}

// evaluate computes cost and fitness for every food source.
func (p *Population) evaluate(obj optimization.ObjectiveFunction) error {
	costs, err := optimization.EvaluateBatch(obj, p.positions)
	if err != nil {
		return err
	}
	copy(p.cost, costs)
	optimization.FitnessBatch(p.fitness, p.cost)
	return nil
}
