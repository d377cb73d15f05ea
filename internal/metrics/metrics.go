package metrics

import (
	"context"
	"runtime"
	"time"
)

// Metrics holds all operational metrics for the evaluation service.
type Metrics struct {
	// Experiment lifecycle
	ExperimentsStarted   *CounterVec // labels: type
	ExperimentsCompleted *Counter
	ExperimentsFailed    *Counter

	// Evaluation tasks
	TasksDispatched *Counter
	TaskFailures    *CounterVec // labels: reason
	TaskLatency     *Histogram

	// Import flow
	ImportedRecords *Counter
	ImportFailures  *Counter

	// Backend queries
	QueriesExecuted *Counter
	QueryLatency    *Histogram
	BackendErrors   *Counter

	// Judgments
	JudgmentLookups *Counter
	JudgmentMisses  *Counter

	// Document store
	StoreOps    *CounterVec // labels: op
	StoreErrors *CounterVec // labels: op

	// HTTP surface
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System
	GoroutineCount *Gauge
	MemoryUsage    *Gauge
	Uptime         *Counter

	history *RedisStorage

	stop chan struct{}
}

// New creates a metrics instance with in-memory storage only.
func New() *Metrics {
	return NewWithHistory("")
}

// NewWithHistory creates a metrics instance. When historyURL names a Redis
// instance, completed-task history is persisted there for trend charts;
// a failed connection falls back to in-memory silently.
func NewWithHistory(historyURL string) *Metrics {
	var history *RedisStorage
	if historyURL != "" {
		if storage, err := NewRedisStorage(historyURL); err == nil {
			history = storage
		}
	}

	m := &Metrics{
		ExperimentsStarted: NewCounterVec(
			"seval_experiments_started_total",
			"Total number of experiments started",
			[]string{"type"},
		),
		ExperimentsCompleted: NewCounter(
			"seval_experiments_completed_total",
			"Total number of experiments that reached COMPLETED",
			nil,
		),
		ExperimentsFailed: NewCounter(
			"seval_experiments_failed_total",
			"Total number of experiments that reached FAILED",
			nil,
		),

		TasksDispatched: NewCounter(
			"seval_tasks_dispatched_total",
			"Total number of evaluation tasks dispatched",
			nil,
		),
		TaskFailures: NewCounterVec(
			"seval_task_failures_total",
			"Total number of per-task failures",
			[]string{"reason"},
		),
		TaskLatency: NewHistogram(
			"seval_task_latency_ms",
			"Evaluation task latency in milliseconds",
			[]float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		),

		ImportedRecords: NewCounter(
			"seval_imported_records_total",
			"Total number of pre-computed result records imported",
			nil,
		),
		ImportFailures: NewCounter(
			"seval_import_failures_total",
			"Total number of malformed import records",
			nil,
		),

		QueriesExecuted: NewCounter(
			"seval_queries_executed_total",
			"Total number of backend searches issued",
			nil,
		),
		QueryLatency: NewHistogram(
			"seval_query_latency_ms",
			"Backend search latency in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		),
		BackendErrors: NewCounter(
			"seval_backend_errors_total",
			"Total number of backend search failures",
			nil,
		),

		JudgmentLookups: NewCounter(
			"seval_judgment_lookups_total",
			"Total number of judgment resolutions",
			nil,
		),
		JudgmentMisses: NewCounter(
			"seval_judgment_misses_total",
			"Total number of queries with no judgments found",
			nil,
		),

		StoreOps: NewCounterVec(
			"seval_store_ops_total",
			"Total number of document store operations",
			[]string{"op"},
		),
		StoreErrors: NewCounterVec(
			"seval_store_errors_total",
			"Total number of document store errors",
			[]string{"op"},
		),

		HTTPRequests: NewCounterVec(
			"seval_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"seval_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		),
		HTTPRequestsInFlight: NewGauge(
			"seval_http_requests_in_flight",
			"Number of HTTP requests currently being processed",
			nil,
		),

		GoroutineCount: NewGauge(
			"seval_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"seval_memory_bytes",
			"Memory usage in bytes",
			nil,
		),
		Uptime: NewCounter(
			"seval_uptime_seconds",
			"Application uptime in seconds",
			nil,
		),

		history: history,
		stop:    make(chan struct{}),
	}

	go m.collectSystemMetrics()

	return m
}

func (m *Metrics) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.MemoryUsage.Set(float64(memStats.Alloc))

			m.Uptime.Add(15)
		}
	}
}

// RecordExperimentStart records a new experiment by type.
func (m *Metrics) RecordExperimentStart(experimentType string) {
	m.ExperimentsStarted.WithLabels(experimentType).Inc()
}

// RecordExperimentOutcome records a terminal experiment status.
func (m *Metrics) RecordExperimentOutcome(completed bool) {
	if completed {
		m.ExperimentsCompleted.Inc()
	} else {
		m.ExperimentsFailed.Inc()
	}
}

// RecordTask records one evaluation task outcome. reason is empty for
// successful tasks.
func (m *Metrics) RecordTask(latencyMs int64, reason string) {
	m.TasksDispatched.Inc()
	m.TaskLatency.Observe(float64(latencyMs))
	if reason != "" {
		m.TaskFailures.WithLabels(reason).Inc()
	}

	if m.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = m.history.SaveDataPoint(ctx, "task_latency_ms", DataPoint{
			Timestamp: time.Now(),
			Value:     float64(latencyMs),
		})
		cancel()
	}
}

// RecordImport records an import batch outcome.
func (m *Metrics) RecordImport(records, failures int) {
	m.ImportedRecords.Add(int64(records))
	m.ImportFailures.Add(int64(failures))
}

// RecordQuery records one backend search.
func (m *Metrics) RecordQuery(latencyMs int64, err error) {
	m.QueriesExecuted.Inc()
	m.QueryLatency.Observe(float64(latencyMs))
	if err != nil {
		m.BackendErrors.Inc()
	}
}

// RecordJudgmentLookup records one judgment resolution.
func (m *Metrics) RecordJudgmentLookup(miss bool) {
	m.JudgmentLookups.Inc()
	if miss {
		m.JudgmentMisses.Inc()
	}
}

// RecordStoreOp records a document store operation.
func (m *Metrics) RecordStoreOp(op string, err error) {
	m.StoreOps.WithLabels(op).Inc()
	if err != nil {
		m.StoreErrors.WithLabels(op).Inc()
	}
}

// RecordHTTP records HTTP request metrics.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabels(method, path, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, path).Observe(durationSeconds)
}

// History returns the Redis-backed history store, nil when not configured.
func (m *Metrics) History() *RedisStorage {
	return m.history
}

// Close stops background collection and releases the history connection.
func (m *Metrics) Close() error {
	close(m.stop)
	if m.history != nil {
		return m.history.Close()
	}
	return nil
}

func statusCode(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
