package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 50, cfg.Colony.MaxIterations)
	assert.Equal(t, 0.0, cfg.Colony.LowerBound)
	assert.Equal(t, 1.0, cfg.Colony.UpperBound)
	assert.Equal(t, 0.05, cfg.Colony.Target)
	assert.Equal(t, 4, cfg.Colony.MaxConcurrentRuns)
	assert.Equal(t, time.Hour, cfg.Colony.JobRetention)
	assert.Equal(t, 10000, cfg.Colony.MaxIterationsLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ABC_MAX_ITERATIONS", "120")
	t.Setenv("ABC_LOWER_BOUND", "-1")
	t.Setenv("ABC_UPPER_BOUND", "2.5")
	t.Setenv("ABC_JOB_RETENTION", "15m")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_OUTPUT", "stdout")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 120, cfg.Colony.MaxIterations)
	assert.Equal(t, -1.0, cfg.Colony.LowerBound)
	assert.Equal(t, 2.5, cfg.Colony.UpperBound)
	assert.Equal(t, 15*time.Minute, cfg.Colony.JobRetention)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "not a number", env: map[string]string{"ABC_MAX_ITERATIONS": "many"}},
		{name: "zero iterations", env: map[string]string{"ABC_MAX_ITERATIONS": "0"}},
		{name: "inverted bounds", env: map[string]string{"ABC_LOWER_BOUND": "2"}},
		{name: "no concurrency", env: map[string]string{"ABC_MAX_CONCURRENT_RUNS": "0"}},
		{name: "limit below default", env: map[string]string{"ABC_MAX_ITERATIONS_LIMIT": "10"}},
		{name: "port out of range", env: map[string]string{"HTTP_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestColonyBounds(t *testing.T) {
	c := Colony{LowerBound: -0.5, UpperBound: 0.5}
	lb, ub := c.Bounds(3)
	assert.Equal(t, []float64{-0.5, -0.5, -0.5}, lb)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, ub)
}
