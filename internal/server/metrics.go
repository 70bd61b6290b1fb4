package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the colony service collectors.
type Metrics struct {
	// RunsTotal counts finished runs by mode and outcome.
	RunsTotal *prometheus.CounterVec

	// IterationsTotal counts colony iterations across all runs.
	IterationsTotal prometheus.Counter

	// ScoutResetsTotal counts abandoned food sources across all runs.
	ScoutResetsTotal prometheus.Counter

	// RunDurationSeconds measures wall time of finished runs.
	RunDurationSeconds *prometheus.HistogramVec

	// BestCost is the global best cost of the most recently finished run.
	BestCost prometheus.Gauge

	// ActiveRuns is the number of runs holding a concurrency slot.
	ActiveRuns prometheus.Gauge

	// Jobs is the number of jobs in the registry by status.
	Jobs *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "abc",
				Subsystem: "colony",
				Name:      "runs_total",
				Help:      "Finished colony runs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),

		IterationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "abc",
				Subsystem: "colony",
				Name:      "iterations_total",
				Help:      "Colony iterations executed",
			},
		),

		ScoutResetsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "abc",
				Subsystem: "colony",
				Name:      "scout_resets_total",
				Help:      "Food sources abandoned by scout bees",
			},
		),

		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "abc",
				Subsystem: "colony",
				Name:      "run_duration_seconds",
				Help:      "Wall time of finished colony runs",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"mode"},
		),

		BestCost: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "abc",
				Subsystem: "colony",
				Name:      "best_cost",
				Help:      "Global best cost of the most recently finished run",
			},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "abc",
				Subsystem: "colony",
				Name:      "active_runs",
				Help:      "Runs currently holding a concurrency slot",
			},
		),

		Jobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "abc",
				Subsystem: "jobs",
				Name:      "registered",
				Help:      "Jobs in the registry by status",
			},
			[]string{"status"},
		),
	}
}
