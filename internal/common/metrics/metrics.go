package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_reconciliations_total",
			Help: "Total number of per-request reconciliation runs by outcome",
		},
		[]string{"outcome"},
	)

	SessionReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_reconcile_duration_seconds",
			Help:    "Duration of session list reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	SessionsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_removed_total",
			Help: "Total number of session records removed from principals",
		},
		[]string{"reason"},
	)

	SessionStoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_failures_total",
			Help: "Total number of failed session store calls",
		},
		[]string{"operation"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of jobs currently being processed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)

const (
	ReasonPruned      = "pruned"
	ReasonInvalidated = "invalidated"
	ReasonLogout      = "logout"
	ReasonRevoked     = "revoked"

	OperationProbe   = "probe"
	OperationDestroy = "destroy"
)
