package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchDuration observes wall-clock seconds per dispatched action,
	// labeled by action type and terminal status.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "praxis_dispatch_duration_seconds",
			Help: "Wall-clock duration of dispatched actions in seconds",
		},
		[]string{"action_type", "status"},
	)

	// QueueDepth tracks the current backlog of the background inference queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praxis_inference_queue_depth",
			Help: "Current depth of the background inference job queue",
		},
	)

	// QueueRejections counts fail-fast submissions rejected at the depth guard.
	QueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_inference_queue_rejections_total",
			Help: "Submissions rejected because the queue was at max depth",
		},
	)

	// QueueWaitTimeouts counts submitters that abandoned their result wait.
	QueueWaitTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_inference_queue_wait_timeouts_total",
			Help: "Submitters that timed out waiting for a job result",
		},
	)

	// WorkerHeartbeatStale counts watchdog observations of a stale worker
	// heartbeat. Observability only; never blocks the submit path.
	WorkerHeartbeatStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_inference_worker_heartbeat_stale_total",
			Help: "Watchdog observations of a stale inference worker heartbeat",
		},
	)

	// SandboxKillFailures counts execution units that could not be reclaimed
	// during teardown. This is the one fatal-class condition in the engine.
	SandboxKillFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_sandbox_kill_failures_total",
			Help: "Sandboxed execution units that could not be force-removed",
		},
	)

	// SandboxRuns counts substrate executions by outcome.
	SandboxRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_sandbox_runs_total",
			Help: "Sandboxed tool executions by outcome",
		},
		[]string{"outcome"},
	)
)
