package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beecolony/abcopt/internal/config"
	"github.com/beecolony/abcopt/internal/logging"
)

var (
	logLevel  string
	logFormat string
	logger    *logging.Logger
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "abc",
	Short: "Artificial Bee Colony optimizer for decision matrices",
	Long: `abc seeds a bee colony with the rows of a decision matrix and improves
them through employed, onlooker and scout phases, reporting the best
alternative found.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level := logLevel
		if _, set := os.LookupEnv("LOG_LEVEL"); set && !cmd.Flags().Changed("log-level") {
			level = cfg.Logging.Level
		}
		logger, err = logging.NewLogger(&logging.Config{
			Level:  level,
			Format: logFormat,
			Output: "stderr",
		})
		if err != nil {
			return err
		}
		logger = logger.WithField("cmd", cmd.Name())
		return nil
	},
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}
