// Package metrics registers the pipeline's Prometheus collectors. Exposition
// is left to the deployment (external sink); only the counters live here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntakeBytes counts bytes spooled by the intake handler.
	IntakeBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fim_intake_bytes_total",
		Help: "Bytes accepted by the upload intake handler",
	})

	// JobsCompleted counts jobs that finished with the record COMPLETED.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fim_jobs_completed_total",
		Help: "Ingestion jobs finished successfully",
	})

	// JobsRetried counts jobs rescheduled after a transient failure.
	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fim_jobs_retried_total",
		Help: "Ingestion jobs rescheduled for retry",
	})

	// JobsAbandoned counts jobs dropped after the retry budget ran out.
	JobsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fim_jobs_abandoned_total",
		Help: "Ingestion jobs abandoned after exhausting retries",
	})

	// JobDuration observes wall-clock processing time per job run.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fim_job_duration_seconds",
		Help:    "Duration of one ingestion job run",
		Buckets: prometheus.DefBuckets,
	})
)
