package telemetry

import "github.com/prometheus/client_golang/prometheus"

// DeploymentsCreatedTotal counts intake calls by chosen environment.
var DeploymentsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "deployify",
		Subsystem: "deployments",
		Name:      "created_total",
		Help:      "Total number of deployments created, by environment.",
	},
	[]string{"environment"},
)

// DeploymentsCompletedTotal counts terminal deployments by final state and
// chosen provider.
var DeploymentsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "deployify",
		Subsystem: "deployments",
		Name:      "completed_total",
		Help:      "Total number of deployments reaching a terminal state.",
	},
	[]string{"state", "provider"},
)

// DeploymentDuration tracks end-to-end pipeline duration by final state.
var DeploymentDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "deployify",
		Subsystem: "deployments",
		Name:      "duration_seconds",
		Help:      "Deployment pipeline duration in seconds, from queued to terminal.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
	},
	[]string{"state"},
)

// JobQueueDepth reports the current number of queued (not yet leased) items.
var JobQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "deployify",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Current number of queued job items awaiting a lease.",
	},
)

// JobRetriesTotal counts job re-enqueues by reason kind.
var JobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "deployify",
		Subsystem: "queue",
		Name:      "retries_total",
		Help:      "Total number of job re-enqueues, by error kind.",
	},
	[]string{"kind"},
)

// IntakeThrottledTotal counts intake calls rejected by the rate limiter.
var IntakeThrottledTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "deployify",
		Subsystem: "intake",
		Name:      "throttled_total",
		Help:      "Total number of intake calls that exceeded the rate limit.",
	},
)

// LogEventsAppendedTotal counts durable log appends by level.
var LogEventsAppendedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "deployify",
		Subsystem: "logbus",
		Name:      "events_appended_total",
		Help:      "Total number of log events durably appended, by level.",
	},
	[]string{"level"},
)

// All returns all deployify-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		DeploymentsCreatedTotal,
		DeploymentsCompletedTotal,
		DeploymentDuration,
		JobQueueDepth,
		JobRetriesTotal,
		IntakeThrottledTotal,
		LogEventsAppendedTotal,
	}
}
