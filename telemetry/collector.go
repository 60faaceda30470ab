package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the prometheus instruments shared across a process:
// peer-server HTTP traffic, tool dispatch, and task pool/worker lifecycle.
// Token/cost accounting lives in usage.Tracker instead, since those
// counters are keyed by (agent, model) and tracked alongside a ring
// buffer, not a standalone concern.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	toolExecutionsTotal   *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	tasksTotal      *prometheus.CounterVec
	workersSpawned  prometheus.Counter
	workersFinished *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the process's prometheus instruments under
// namespace and returns a Collector ready to record against them.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger.With(zap.String("component", "telemetry"))}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of peer-server HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Peer-server HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.toolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool calls dispatched",
		},
		[]string{"agent", "tool", "status"},
	)

	c.toolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent", "tool"},
	)

	c.tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of task pool transitions",
		},
		[]string{"status"}, // created, claimed, completed, failed, reset
	)

	c.workersSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_spawned_total",
			Help:      "Total number of ephemeral workers spawned",
		},
	)

	c.workersFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_finished_total",
			Help:      "Total number of ephemeral workers retired",
		},
		[]string{"reason"}, // complete_task, fail_task, iteration_cap; the event bridge in cmd/agentsociety records every retirement as "resolved"
	)

	logger.Info("telemetry collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one peer-server HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordToolExecution records one tool dispatch outcome.
func (c *Collector) RecordToolExecution(agent, tool, status string, duration time.Duration) {
	c.toolExecutionsTotal.WithLabelValues(agent, tool, status).Inc()
	c.toolExecutionDuration.WithLabelValues(agent, tool).Observe(duration.Seconds())
}

// RecordTaskTransition records a task pool state change.
func (c *Collector) RecordTaskTransition(status string) {
	c.tasksTotal.WithLabelValues(status).Inc()
}

// RecordWorkerSpawned records one ephemeral worker spawn.
func (c *Collector) RecordWorkerSpawned() {
	c.workersSpawned.Inc()
}

// RecordWorkerFinished records one ephemeral worker retirement.
func (c *Collector) RecordWorkerFinished(reason string) {
	c.workersFinished.WithLabelValues(reason).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
