// Package dataset loads decision matrices: one row per alternative, one
// column per criterion.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/beecolony/abcopt/internal/optimization"
)

const component = "dataset"

// Dataset is a named decision matrix.
type Dataset struct {
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Alternatives []string    `json:"alternatives"`
	Criteria     []string    `json:"criteria"`
	Matrix       [][]float64 `json:"matrix"`
}

// Rows returns the number of alternatives.
func (d *Dataset) Rows() int { return len(d.Matrix) }

// Cols returns the number of criteria.
func (d *Dataset) Cols() int {
	if len(d.Matrix) == 0 {
		return 0
	}
	return len(d.Matrix[0])
}

// Validate checks that the matrix is non-empty, rectangular and finite, and
// that names match its shape.
func (d *Dataset) Validate() error {
	if len(d.Matrix) == 0 {
		return invalid("dataset %q has no alternatives", d.Name)
	}
	cols := len(d.Matrix[0])
	if cols == 0 {
		return invalid("dataset %q has no criteria", d.Name)
	}
	for i, row := range d.Matrix {
		if len(row) != cols {
			return invalid("alternative %d has %d values, expected %d", i+1, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid("alternative %d criterion %d is not a finite number", i+1, j+1)
			}
		}
	}
	if len(d.Alternatives) != len(d.Matrix) {
		return invalid("%d alternative names for %d rows", len(d.Alternatives), len(d.Matrix))
	}
	if len(d.Criteria) != cols {
		return invalid("%d criterion names for %d columns", len(d.Criteria), cols)
	}
	return nil
}

// Clone returns a deep copy, safe to hand to a run.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Name:         d.Name,
		Description:  d.Description,
		Alternatives: append([]string(nil), d.Alternatives...),
		Criteria:     append([]string(nil), d.Criteria...),
		Matrix:       make([][]float64, len(d.Matrix)),
	}
	for i, row := range d.Matrix {
		out.Matrix[i] = append([]float64(nil), row...)
	}
	return out
}

// FromMatrix wraps a raw matrix, generating A<i>/C<j> names where missing.
func FromMatrix(name string, matrix [][]float64, alternatives []string) (*Dataset, error) {
	d := &Dataset{Name: name, Matrix: matrix}
	if len(alternatives) > 0 {
		d.Alternatives = alternatives
	} else {
		d.Alternatives = defaultNames("A", len(matrix))
	}
	d.Criteria = defaultNames("C", d.Cols())
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// ParseInline reads a matrix written as rows separated by ';' and values by
// ',', e.g. "0.1,0.2;0.3,0.4".
func ParseInline(s string) (*Dataset, error) {
	var matrix [][]float64
	for i, rowText := range strings.Split(strings.TrimSpace(s), ";") {
		rowText = strings.TrimSpace(rowText)
		if rowText == "" {
			continue
		}
		var row []float64
		for j, cell := range strings.Split(rowText, ",") {
			v, err := parseValue(cell)
			if err != nil {
				return nil, invalid("row %d value %d: %v", i+1, j+1, err)
			}
			row = append(row, v)
		}
		matrix = append(matrix, row)
	}
	return FromMatrix("inline", matrix, nil)
}

// ReferenceName names the 9x5 reference fixture.
const ReferenceName = "toy-9x5"

var preloaded = map[string]func() *Dataset{
	ReferenceName: func() *Dataset {
		return &Dataset{
			Name:         ReferenceName,
			Description:  "Small test case with 9 alternatives and 5 criteria",
			Alternatives: []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9"},
			Criteria:     []string{"C1", "C2", "C3", "C4", "C5"},
			Matrix: [][]float64{
				{0.048, 0.047, 0.070, 0.087, 0.190},
				{0.053, 0.052, 0.066, 0.081, 0.058},
				{0.057, 0.057, 0.066, 0.076, 0.022},
				{0.062, 0.062, 0.063, 0.058, 0.007},
				{0.066, 0.066, 0.070, 0.085, 0.004},
				{0.070, 0.071, 0.066, 0.058, 0.003},
				{0.075, 0.075, 0.066, 0.047, 0.002},
				{0.079, 0.079, 0.066, 0.035, 0.002},
				{0.083, 0.083, 0.066, 0.051, 0.000},
			},
		}
	},
	"sample-10x10": func() *Dataset {
		return randomDataset("sample-10x10", "Medium test case with 10 alternatives and 10 criteria", 10, 10, 1010)
	},
	"large-20x15": func() *Dataset {
		return randomDataset("large-20x15", "Large test case with 20 alternatives and 15 criteria", 20, 15, 2015)
	},
}

// Lookup returns a fresh copy of a preloaded dataset.
func Lookup(name string) (*Dataset, error) {
	build, ok := preloaded[name]
	if !ok {
		return nil, optimization.NewErrorf(ErrUnknownDataset, "%q (available: %s)", name, strings.Join(Names(), ", ")).
			WithComponent(component).WithOperation("lookup")
	}
	return build(), nil
}

// Reference returns the 9x5 reference fixture.
func Reference() *Dataset {
	return preloaded[ReferenceName]()
}

// Names lists the preloaded datasets in lexical order.
func Names() []string {
	names := make([]string, 0, len(preloaded))
	for name := range preloaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preloaded returns every preloaded dataset in lexical order.
func Preloaded() []*Dataset {
	names := Names()
	out := make([]*Dataset, len(names))
	for i, name := range names {
		out[i] = preloaded[name]()
	}
	return out
}

// randomDataset draws a fixture from a fixed seed so it is identical on every call.
func randomDataset(name, description string, rows, cols int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	matrix := make([][]float64, rows)
	for i := range matrix {
		matrix[i] = make([]float64, cols)
		for j := range matrix[i] {
			matrix[i][j] = rng.Float64()
		}
	}
	return &Dataset{
		Name:         name,
		Description:  description,
		Alternatives: defaultNames("A", rows),
		Criteria:     defaultNames("C", cols),
		Matrix:       matrix,
	}
}

func defaultNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return names
}

func parseValue(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", cell)
	}
	return v, nil
}

func invalid(format string, args ...interface{}) error {
	return optimization.NewErrorf(optimization.ErrInvalidDatasetShape, format, args...).
		WithComponent(component).WithOperation("validate")
}
