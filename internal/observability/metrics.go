package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studyhub_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// GraphStepFailures counts entity graph steps that aborted their transaction.
	GraphStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_entity_graph_step_failures_total",
		Help: "Entity graph steps that failed and rolled back the transaction",
	}, []string{"step"})

	// GraphCleanupFailures counts best-effort rollback actions that failed.
	GraphCleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_entity_graph_cleanup_failures_total",
		Help: "Rollback cleanup actions that failed (file removal or hook)",
	}, []string{"kind"})

	// GroupProvisioning counts group creation attempts by outcome.
	GroupProvisioning = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_group_provisioning_total",
		Help: "Group provisioning attempts by outcome",
	}, []string{"outcome"})

	// ResourcesStaged counts files moved into group resource directories.
	ResourcesStaged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_resources_staged_total",
		Help: "Resource files staged by file type",
	}, []string{"file_type"})

	// RepliesCreated counts replies by depth.
	RepliesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_replies_created_total",
		Help: "Replies created by depth (top_level or nested)",
	}, []string{"depth"})

	// ReactionTransitions counts reaction state machine outcomes.
	ReactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_reaction_transitions_total",
		Help: "Reaction transitions by outcome",
	}, []string{"outcome"})

	// ThreadModeration counts pin and lock toggles by action and resulting state.
	ThreadModeration = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_thread_moderation_total",
		Help: "Thread pin/lock toggles by action and resulting state",
	}, []string{"action", "state"})

	// RateLimitRejections counts requests refused by the rate limiter.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyhub_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter by resource and reason",
	}, []string{"resource", "reason"})
)

// TrackQuery returns a function that records latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
