// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Orchestrator
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ehcalibre_jobs_active",
			Help: "Jobs accepted and not yet terminal",
		},
	)

	JobSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ehcalibre_job_slots_in_use",
			Help: "Concurrency slots currently held by running pipelines",
		},
	)

	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_jobs_submitted_total",
			Help: "Job submissions by kind and outcome of acceptance",
		},
		[]string{"kind", "result"}, // result: accepted, duplicate, invalid
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_jobs_finished_total",
			Help: "Terminal job states by kind, failing stage and result",
		},
		[]string{"kind", "stage", "result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ehcalibre_job_duration_seconds",
			Help:    "Pipeline wall time from slot acquisition to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"kind"},
	)

	ArchiveBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ehcalibre_archive_bytes_total",
			Help: "Bytes of archives downloaded",
		},
	)

	// Upstream HTTP
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_upstream_requests_total",
			Help: "Outbound requests by target and status",
		},
		[]string{"target", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ehcalibre_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Tag translation cache
	TagSyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_tag_sync_runs_total",
			Help: "Resync runs by result (applied, current, failed)",
		},
		[]string{"result"},
	)

	TagSyncRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_tag_sync_rows_total",
			Help: "Rows classified during resync",
		},
		[]string{"namespace", "op"}, // op: insert, update, skip
	)

	TagLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_tag_lookups_total",
			Help: "Translation lookups by hit or miss",
		},
		[]string{"result"},
	)

	// Catalog
	CatalogOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ehcalibre_catalog_operations_total",
			Help: "Calibre library operations by name and result",
		},
		[]string{"op", "result"},
	)
)

// ObserveJob records a terminal job state. stage is empty on success.
func ObserveJob(kind, stage string, err error, started time.Time) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	if stage == "" {
		stage = "none"
	}
	JobsFinished.WithLabelValues(kind, stage, result).Inc()
	JobDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Result maps an error to a "success"/"failure" label.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
