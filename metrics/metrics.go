// Package metrics exposes Prometheus instrumentation for the research
// workflow. Metrics are registered on the default registry via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session lifecycle metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchmesh_sessions_created_total",
			Help: "Total number of research sessions created",
		},
	)

	SessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_sessions_finished_total",
			Help: "Total number of research sessions reaching a terminal status",
		},
		[]string{"status"}, // completed, failed
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researchmesh_sessions_active",
			Help: "Number of sessions currently held in memory",
		},
	)

	SessionsInterrupted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_sessions_interrupted_total",
			Help: "Total number of gate interrupts raised",
		},
		[]string{"gate"}, // planning, write
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchmesh_stage_duration_seconds",
			Help:    "Wall time spent per workflow stage execution",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_stage_errors_total",
			Help: "Total number of stage executions that returned an error",
		},
		[]string{"stage"},
	)

	// Upstream call metrics
	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_completion_calls_total",
			Help: "Total number of model completion calls",
		},
		[]string{"status"}, // success, error
	)

	SearchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_search_calls_total",
			Help: "Total number of search backend calls",
		},
		[]string{"status"}, // success, error
	)

	EvidenceCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchmesh_evidence_collected_total",
			Help: "Total number of deduplicated evidence items added to sessions",
		},
	)
)

// ObserveStage records one stage execution.
func ObserveStage(stage string, start time.Time, err error) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		StageErrors.WithLabelValues(stage).Inc()
	}
}
