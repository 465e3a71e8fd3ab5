// Package metrics provides Prometheus metrics for the duel ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Selection outcomes used as the "outcome" label.
const (
	OutcomeFresh     = "fresh"
	OutcomeRepeat    = "repeat"
	OutcomeExhausted = "exhausted"
)

// Manager owns every collector registered by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Ranking core
	comparisonsRecorded prometheus.Counter
	recordLatency       prometheus.Histogram
	recordErrors        *prometheus.CounterVec
	selections          *prometheus.CounterVec
	selectionLookups    prometheus.Histogram
	selectionLatency    prometheus.Histogram
	progressQueries     prometheus.Counter
	idempotentReplays   prometheus.Counter

	// Change notifications
	notificationsEnqueued  prometheus.Counter
	notificationsDropped   prometheus.Counter
	notificationsDelivered prometheus.Counter
	notificationsFailed    prometheus.Counter
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	workerActiveCount      prometheus.Gauge
	subscribers            prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "duel",
		subsystem:        "ranking",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.comparisonsRecorded = m.counter("comparisons_recorded_total", "Comparisons committed to the ledger")
	m.recordLatency = m.histogram("record_latency_milliseconds", "Latency of the record transaction", m.histogramBuckets)
	m.recordErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "record_errors_total", Help: "Failed record calls by error kind",
	}, []string{"kind"})
	m.selections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "selections_total", Help: "Pair selections by outcome",
	}, []string{"outcome"})
	m.selectionLookups = m.histogram("selection_ledger_lookups", "Ledger lookups spent per selection",
		[]float64{1, 2, 3, 4, 6, 8, 12, 16})
	m.selectionLatency = m.histogram("selection_latency_milliseconds", "Latency of pair selection", m.histogramBuckets)
	m.progressQueries = m.counter("progress_queries_total", "Progress computations served")
	m.idempotentReplays = m.counter("idempotent_replays_total", "Comparison submissions suppressed by idempotency key")

	m.notificationsEnqueued = m.counter("notifications_enqueued_total", "Change notifications accepted by the queue")
	m.notificationsDropped = m.counter("notifications_dropped_total", "Change notifications dropped on backpressure")
	m.notificationsDelivered = m.counter("notifications_delivered_total", "Change notifications delivered to sinks")
	m.notificationsFailed = m.counter("notifications_failed_total", "Change notifications whose delivery failed")
	m.queueSize = m.gauge("notify_queue_size", "Pending change notifications")
	m.queueCapacity = m.gauge("notify_queue_capacity", "Capacity of the change notification queue")
	m.workerActiveCount = m.gauge("notify_worker_count", "Running notification workers")
	m.subscribers = m.gauge("subscribers", "Connected change-stream subscribers")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "errors_by_component_total", Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// RecordComparison counts one committed comparison and its latency.
func RecordComparison(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.comparisonsRecorded.Inc()
	globalManager.recordLatency.Observe(latencyMs)
}

// RecordRecordError counts a failed record call.
func RecordRecordError(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.recordErrors.WithLabelValues(kind).Inc()
}

// RecordSelection counts a selection by outcome together with its cost.
func RecordSelection(outcome string, lookups int, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.selections.WithLabelValues(outcome).Inc()
	globalManager.selectionLookups.Observe(float64(lookups))
	globalManager.selectionLatency.Observe(latencyMs)
}

// RecordProgressQuery counts a progress computation.
func RecordProgressQuery() {
	if !globalManager.enabled {
		return
	}
	globalManager.progressQueries.Inc()
}

// RecordIdempotentReplay counts a suppressed duplicate submission.
func RecordIdempotentReplay() {
	if !globalManager.enabled {
		return
	}
	globalManager.idempotentReplays.Inc()
}

// RecordNotificationEnqueued counts an accepted change notification.
func RecordNotificationEnqueued() {
	if !globalManager.enabled {
		return
	}
	globalManager.notificationsEnqueued.Inc()
}

// RecordNotificationDropped counts a change notification lost to backpressure.
func RecordNotificationDropped() {
	if !globalManager.enabled {
		return
	}
	globalManager.notificationsDropped.Inc()
}

// RecordNotificationDelivered counts a delivered change notification.
func RecordNotificationDelivered() {
	if !globalManager.enabled {
		return
	}
	globalManager.notificationsDelivered.Inc()
}

// RecordNotificationFailed counts a failed delivery.
func RecordNotificationFailed() {
	if !globalManager.enabled {
		return
	}
	globalManager.notificationsFailed.Inc()
}

// UpdateQueueSize sets the pending notification count.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the notification queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateWorkerActiveCount sets the number of running notification workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateSubscribers sets the number of connected change-stream subscribers.
func UpdateSubscribers(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.subscribers.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// SetEnabled turns recording on or off for the global manager.
func SetEnabled(enabled bool) {
	globalManager.enabled = enabled
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
