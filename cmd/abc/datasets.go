package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beecolony/abcopt/internal/dataset"
	"github.com/beecolony/abcopt/internal/report"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets [name]",
	Short: "List preloaded datasets or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			fmt.Fprintln(out, report.DatasetTable(dataset.Preloaded()))
			return nil
		}
		d, err := dataset.Lookup(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, report.MatrixTable(d))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}
