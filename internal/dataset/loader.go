package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/beecolony/abcopt/internal/optimization"
)

var (
	// ErrUnknownDataset is returned by Lookup for names that are not preloaded.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrUnsupportedFormat is returned by LoadFile for extensions other than csv and xlsx.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// LoadCSV reads a decision matrix from CSV. The header row names the
// criteria after a leading index cell; every following row starts with the
// alternative name.
func LoadCSV(name string, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, optimization.NewErrorf(optimization.ErrInvalidDatasetShape, "reading csv: %v", err).
			WithComponent(component).WithOperation("load_csv")
	}
	return fromTable(name, records)
}

// LoadXLSX reads a decision matrix from a workbook sheet laid out like
// LoadCSV expects. An empty sheet name selects the first sheet.
func LoadXLSX(name string, r io.Reader, sheet string) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, optimization.NewErrorf(optimization.ErrInvalidDatasetShape, "opening workbook: %v", err).
			WithComponent(component).WithOperation("load_xlsx")
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, invalid("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, optimization.NewErrorf(optimization.ErrInvalidDatasetShape, "reading sheet %q: %v", sheet, err).
			WithComponent(component).WithOperation("load_xlsx")
	}
	return fromTable(name, rows)
}

// LoadFile picks LoadCSV or LoadXLSX by extension and names the dataset
// after the file.
func LoadFile(path, sheet string) (*Dataset, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer file.Close()

	if ext == ".csv" {
		return LoadCSV(name, file)
	}
	return LoadXLSX(name, file, sheet)
}

// fromTable converts a header-plus-rows table of strings into a Dataset.
func fromTable(name string, rows [][]string) (*Dataset, error) {
	rows = dropBlankRows(rows)
	if len(rows) < 2 {
		return nil, invalid("table needs a header row and at least one alternative")
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, invalid("header row has no criteria")
	}
	criteria := make([]string, len(header)-1)
	for j, c := range header[1:] {
		criteria[j] = strings.TrimSpace(c)
		if criteria[j] == "" {
			criteria[j] = fmt.Sprintf("C%d", j+1)
		}
	}

	d := &Dataset{
		Name:         name,
		Criteria:     criteria,
		Alternatives: make([]string, 0, len(rows)-1),
		Matrix:       make([][]float64, 0, len(rows)-1),
	}
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, invalid("row %d has %d cells, header has %d", i+2, len(row), len(header))
		}
		alt := strings.TrimSpace(row[0])
		if alt == "" {
			alt = fmt.Sprintf("A%d", i+1)
		}
		values := make([]float64, len(criteria))
		for j, cell := range row[1:] {
			v, err := parseValue(cell)
			if err != nil {
				return nil, invalid("row %d (%s) column %s: %v", i+2, alt, criteria[j], err)
			}
			values[j] = v
		}
		d.Alternatives = append(d.Alternatives, alt)
		d.Matrix = append(d.Matrix, values)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		blank := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out
}
