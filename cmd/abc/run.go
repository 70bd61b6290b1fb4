package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beecolony/abcopt/internal/dataset"
	"github.com/beecolony/abcopt/internal/logging"
	"github.com/beecolony/abcopt/internal/optimization"
	"github.com/beecolony/abcopt/internal/optimization/abc"
	"github.com/beecolony/abcopt/internal/report"
)

var (
	datasetName string
	filePath    string
	sheetName   string
	inlineInput string
	iterations  int
	seed        int64
	limit       int
	lowerBound  float64
	upperBound  float64
	target      float64
	verbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the colony on a decision matrix",
	Long: `Runs the colony on a preloaded dataset, a CSV or XLSX file, or an inline
matrix such as "0.1,0.2;0.3,0.4", and prints the per-iteration bests and a
summary. Interrupting the run prints the iterations completed so far.`,
	RunE: runColony,
}

func init() {
	runCmd.Flags().StringVar(&datasetName, "dataset", dataset.ReferenceName, "Preloaded dataset name")
	runCmd.Flags().StringVar(&filePath, "file", "", "CSV or XLSX file with the decision matrix")
	runCmd.Flags().StringVar(&sheetName, "sheet", "", "XLSX sheet name (default first sheet)")
	runCmd.Flags().StringVar(&inlineInput, "matrix", "", `Inline matrix, rows separated by ';' and values by ','`)
	runCmd.Flags().IntVar(&iterations, "iterations", 0, "Iterations (default ABC_MAX_ITERATIONS)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (default time based)")
	runCmd.Flags().IntVar(&limit, "limit", 0, "Feed limit before a source is abandoned (default alternatives x criteria)")
	runCmd.Flags().Float64Var(&lowerBound, "lower", 0, "Lower bound for every criterion (default ABC_LOWER_BOUND)")
	runCmd.Flags().Float64Var(&upperBound, "upper", 1, "Upper bound for every criterion (default ABC_UPPER_BOUND)")
	runCmd.Flags().Float64Var(&target, "target", optimization.DefaultTarget, "Target value of the squared deviation objective (default ABC_TARGET)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the population after every iteration")

	runCmd.MarkFlagsMutuallyExclusive("file", "matrix")
	rootCmd.AddCommand(runCmd)
}

func loadInput() (*dataset.Dataset, error) {
	switch {
	case filePath != "":
		return dataset.LoadFile(filePath, sheetName)
	case inlineInput != "":
		return dataset.ParseInline(inlineInput)
	default:
		return dataset.Lookup(datasetName)
	}
}

func runColony(cmd *cobra.Command, args []string) error {
	data, err := loadInput()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	col := cfg.Colony
	if !flags.Changed("iterations") {
		iterations = col.MaxIterations
	}
	if !flags.Changed("lower") {
		lowerBound = col.LowerBound
	}
	if !flags.Changed("upper") {
		upperBound = col.UpperBound
	}
	if !flags.Changed("target") {
		target = col.Target
	}
	lb, ub := col.Bounds(data.Cols())
	for d := range lb {
		lb[d], ub[d] = lowerBound, upperBound
	}

	runLogger := logger.WithFields(map[string]interface{}{"dataset": data.Name})
	opts := []abc.Option{
		abc.WithLabels(data.Alternatives),
		abc.WithLimit(limit),
		abc.WithObjective(optimization.SquaredDeviation(target)),
		abc.WithLogger(logging.NewZapLogger(runLogger)),
	}
	if flags.Changed("seed") {
		opts = append(opts, abc.WithSeed(seed))
	}

	state, err := abc.Initialize(data.Matrix, lb, ub, iterations, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if verbose {
		fmt.Fprintln(out, report.PopulationTable(0, data.Criteria, state.Population().Snapshot()))
	}
	runErr := stepAll(ctx, state, out, data.Criteria)
	return finish(out, state, runErr, runLogger)
}

// finish prints the per-iteration bests and the summary of state. A run that
// failed mid-iteration prints nothing and returns its error; an interrupted
// run reports the iterations it completed.
func finish(out io.Writer, state *abc.RunState, runErr error, log *logging.Logger) error {
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	res := state.Result()
	if len(res.History) > 0 {
		fmt.Fprintln(out, report.BestTable(res.History))
	}
	fmt.Fprintln(out, report.Summary(res))

	if runErr != nil {
		log.Warn("run interrupted", map[string]interface{}{"iterations": len(res.History)})
	}
	return nil
}

// stepAll advances state until its budget is spent, printing the population
// after each iteration when verbose.
func stepAll(ctx context.Context, state *abc.RunState, out io.Writer, criteria []string) error {
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := state.Step(ctx)
		if err != nil {
			return err
		}
		if verbose {
			fmt.Fprintln(out, report.PopulationTable(rec.Iteration, criteria, state.Population().Snapshot()))
		}
	}
	return nil
}
