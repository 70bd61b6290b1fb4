package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/beecolony/abcopt/internal/logging"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging logging.Config
	Colony  Colony
}

// Colony holds the run defaults and the service limits.
type Colony struct {
	MaxIterations int     `env:"ABC_MAX_ITERATIONS" envDefault:"50"`
	LowerBound    float64 `env:"ABC_LOWER_BOUND" envDefault:"0"`
	UpperBound    float64 `env:"ABC_UPPER_BOUND" envDefault:"1"`
	Target        float64 `env:"ABC_TARGET" envDefault:"0.05"`

	MaxConcurrentRuns  int           `env:"ABC_MAX_CONCURRENT_RUNS" envDefault:"4"`
	JobRetention       time.Duration `env:"ABC_JOB_RETENTION" envDefault:"1h"`
	MaxIterationsLimit int           `env:"ABC_MAX_ITERATIONS_LIMIT" envDefault:"10000"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	col := c.Colony
	switch {
	case c.HTTP.Port < 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("HTTP_PORT %d out of range", c.HTTP.Port)
	case col.MaxIterations < 1:
		return fmt.Errorf("ABC_MAX_ITERATIONS must be at least 1, got %d", col.MaxIterations)
	case col.LowerBound > col.UpperBound:
		return fmt.Errorf("ABC_LOWER_BOUND %g is above ABC_UPPER_BOUND %g", col.LowerBound, col.UpperBound)
	case col.MaxConcurrentRuns < 1:
		return fmt.Errorf("ABC_MAX_CONCURRENT_RUNS must be at least 1, got %d", col.MaxConcurrentRuns)
	case col.JobRetention <= 0:
		return fmt.Errorf("ABC_JOB_RETENTION must be positive, got %s", col.JobRetention)
	case col.MaxIterationsLimit < col.MaxIterations:
		return fmt.Errorf("ABC_MAX_ITERATIONS_LIMIT %d is below ABC_MAX_ITERATIONS %d",
			col.MaxIterationsLimit, col.MaxIterations)
	}
	return nil
}

// Bounds expands the scalar bounds to dim dimensions.
func (c Colony) Bounds(dim int) (lower, upper []float64) {
	lower = make([]float64, dim)
	upper = make([]float64, dim)
	for d := 0; d < dim; d++ {
		lower[d] = c.LowerBound
		upper[d] = c.UpperBound
	}
	return lower, upper
}
