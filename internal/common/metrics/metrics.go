// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"backend", "status"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_pipeline_failures_total",
			Help: "Total number of failed pipeline runs by error code",
		},
		[]string{"backend", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlquery_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "stage"},
	)

	PipelineActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nlquery_pipeline_active",
			Help: "Number of in-flight pipeline runs",
		},
		[]string{"backend"},
	)

	SandboxRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_sandbox_runs_total",
			Help: "Total number of sandboxed expression runs by outcome",
		},
		[]string{"outcome"},
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Sandbox outcome labels.
const (
	SandboxOK       = "ok"
	SandboxError    = "error"
	SandboxBudget   = "budget_exceeded"
	SandboxNoResult = "no_result"
)
