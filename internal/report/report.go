// Package report renders colony runs for the terminal and derives the
// summary indicators exposed by the API.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/beecolony/abcopt/internal/dataset"
	"github.com/beecolony/abcopt/internal/optimization/abc"
)

var (
	colorAccent = lipgloss.Color("#F4D03F")
	colorMuted  = lipgloss.Color("#2C4A54")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	bestStyle   = cellStyle.Bold(true).Foreground(colorAccent)
	borderStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

const timeLayout = "2006-01-02 15:04:05"

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle)
}

// PopulationTable renders one row per food source with its position, cost,
// fitness and trial counter. The lowest-cost row is highlighted.
func PopulationTable(iteration int, criteria []string, sources []abc.FoodSource) string {
	headers := make([]string, 0, len(criteria)+4)
	headers = append(headers, "")
	headers = append(headers, criteria...)
	headers = append(headers, "f(x)", "fitness", "trial")

	best := -1
	for i, fs := range sources {
		if best < 0 || fs.Cost < sources[best].Cost {
			best = i
		}
	}

	t := newTable().Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == best:
				return bestStyle
			default:
				return cellStyle
			}
		})
	for _, fs := range sources {
		cells := make([]string, 0, len(headers))
		cells = append(cells, fs.Label)
		for _, v := range fs.Position {
			cells = append(cells, formatFloat(v))
		}
		cells = append(cells, formatFloat(fs.Cost), formatFloat(fs.Fitness), strconv.Itoa(fs.Trial))
		t.Row(cells...)
	}

	return titleStyle.Render(fmt.Sprintf("Iteration %d", iteration)) + "\n" + t.String()
}

// BestTable lists the best cost and food source of every iteration.
func BestTable(history []abc.IterationRecord) string {
	t := newTable().Headers("iteration", "best f(x)", "alternative", "mean fitness", "std fitness", "scouts").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, rec := range history {
		t.Row(
			strconv.Itoa(rec.Iteration),
			formatFloat(rec.BestCost),
			rec.BestLabel,
			formatFloat(rec.MeanFitness),
			formatFloat(rec.StdFitness),
			strconv.Itoa(rec.ScoutResets),
		)
	}
	return t.String()
}

// Summary renders the closing block of a run.
func Summary(res *abc.RunResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Artificial Bee Colony"))
	b.WriteString("\n")

	rows := [][2]string{
		{"Iterations", fmt.Sprintf("%d of %d", len(res.History), res.MaxIterations)},
		{"Feed limit", strconv.Itoa(res.Limit)},
		{"Seed", strconv.FormatInt(res.Seed, 10)},
		{"Started", res.StartedAt.Format(timeLayout)},
		{"Finished", res.FinishedAt.Format(timeLayout)},
		{"Elapsed", res.Elapsed.Round(time.Microsecond).String()},
	}
	if len(res.History) > 0 {
		rows = append(rows,
			[2]string{"Best position", formatVector(res.Best.Position)},
			[2]string{"Best optimum", formatFloat(res.Best.Cost)},
			[2]string{"Best iteration", strconv.Itoa(res.Best.Iteration)},
			[2]string{"Best alternative", res.Best.Label},
		)
	}
	rows = append(rows, [2]string{"Final best alternative", res.FinalBestLabel})

	t := newTable().StyleFunc(func(row, col int) lipgloss.Style {
		if col == 0 {
			return headerStyle
		}
		return cellStyle
	})
	for _, r := range rows {
		t.Row(r[0], r[1])
	}
	b.WriteString(t.String())
	return b.String()
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = formatFloat(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DatasetTable lists datasets with their shape.
func DatasetTable(datasets []*dataset.Dataset) string {
	t := newTable().Headers("name", "alternatives", "criteria", "description").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, d := range datasets {
		t.Row(d.Name, strconv.Itoa(d.Rows()), strconv.Itoa(d.Cols()), d.Description)
	}
	return t.String()
}

// MatrixTable renders a dataset's decision matrix.
func MatrixTable(d *dataset.Dataset) string {
	headers := append([]string{""}, d.Criteria...)
	t := newTable().Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow || col == 0 {
				return headerStyle
			}
			return cellStyle
		})
	for i, row := range d.Matrix {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, d.Alternatives[i])
		for _, v := range row {
			cells = append(cells, formatFloat(v))
		}
		t.Row(cells...)
	}
	return titleStyle.Render(d.Name) + "\n" + t.String()
}
