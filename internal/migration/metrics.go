package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_migration_runs_total",
			Help: "Migration runs by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	scriptsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_migration_scripts_applied_total",
			Help: "Migration scripts applied",
		},
		[]string{"provider"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_migration_duration_seconds",
			Help:    "Migration run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"provider"},
	)
)
