// Package metrics provides Prometheus metrics for the scoreboard service.
package metrics

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Cache change kinds reported by leaderboard caches.
const (
	CacheInserted = "inserted"
	CacheUpdated  = "updated"
	CacheEvicted  = "evicted"
	CacheIgnored  = "ignored"
)

// Manager manages all Prometheus metrics for the scoreboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer
	gatherer         prometheus.Gatherer

	// Ingestion
	ingestTotal       *prometheus.CounterVec
	ingestLatency     prometheus.Histogram
	ingestWriteSkips  prometheus.Counter
	broadcastFailures prometheus.Counter

	// Durable store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Leaderboards
	cacheChanges           *prometheus.CounterVec
	cacheEntries           *prometheus.GaugeVec
	leaderboardsRegistered prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Broker consumer
	consumerMessages *prometheus.CounterVec
	consumerInFlight prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager.Store(NewManager(WithPrometheusRegistry(customRegistry)))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoreboard",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
		gatherer:         prometheus.DefaultGatherer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval is how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether the recorders write to this manager.
func (m *Manager) Enabled() bool { return m.enabled }

// Gatherer exposes the registry the manager's collectors live in.
func (m *Manager) Gatherer() prometheus.Gatherer { return m.gatherer }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.ingestTotal = m.counterVec("ingest_total", "Ingestions by terminal outcome", "outcome")
	m.ingestLatency = m.histogram("ingest_latency_milliseconds", "End-to-end ingestion latency in milliseconds")
	m.ingestWriteSkips = m.counter("ingest_write_skipped_total", "Ingestions whose store write was skipped because the stored score was not lower")
	m.broadcastFailures = m.counter("broadcast_failures_total", "Leaderboard cache updates that failed during fan-out")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Durable store call latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Durable store call failures", "op")

	m.cacheChanges = m.counterVec("cache_changes_total", "Leaderboard cache changes by kind", "kind")
	m.cacheEntries = m.gaugeVec("cache_entries", "Entries held by each leaderboard cache", "leaderboard")
	m.leaderboardsRegistered = m.gauge("leaderboards_registered", "Number of registered leaderboards")

	m.queueSize = m.gauge("queue_size", "Current number of records waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization (0.0 to 1.0)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Records enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Records dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Records rejected because the queue was full or closed")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time spent waiting in the queue in milliseconds")

	m.workerCount = m.gauge("worker_count", "Configured worker goroutines")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently processing a record")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Records whose ingestion failed in a worker")

	m.consumerMessages = m.counterVec("consumer_messages_total", "Broker messages by processing result", "result")
	m.consumerInFlight = m.gauge("consumer_in_flight", "Broker messages currently being processed")

	m.httpRequests = m.counterVec("http_requests_total", "Total HTTP requests by endpoint and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds")
}

// active returns the global manager, or nil when metrics are disabled.
func active() *Manager {
	if m := globalManager.Load(); m != nil && m.enabled {
		return m
	}
	return nil
}

// SetGlobal replaces the manager used by the package-level recorders.
func SetGlobal(m *Manager) {
	if m != nil {
		globalManager.Store(m)
	}
}

// Global returns the manager used by the package-level recorders.
func Global() *Manager { return globalManager.Load() }

// RecordIngest records one terminal ingestion outcome and its latency.
func RecordIngest(outcome string, latencyMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
	m.ingestLatency.Observe(latencyMs)
}

// RecordIngestWriteSkipped counts an ingestion that left the store untouched.
func RecordIngestWriteSkipped() {
	if m := active(); m != nil {
		m.ingestWriteSkips.Inc()
	}
}

// RecordBroadcastFailures adds n failed cache updates.
func RecordBroadcastFailures(n int) {
	if m := active(); m != nil && n > 0 {
		m.broadcastFailures.Add(float64(n))
	}
}

// RecordStoreLatency records one durable store call.
func RecordStoreLatency(op string, latencyMs float64) {
	if m := active(); m != nil {
		m.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// RecordStoreError counts one failed durable store call.
func RecordStoreError(op string) {
	if m := active(); m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

// RecordCacheChange counts one cache change of the given kind.
func RecordCacheChange(kind string) {
	if m := active(); m != nil {
		m.cacheChanges.WithLabelValues(kind).Inc()
	}
}

// UpdateCacheEntries sets the number of entries held by a leaderboard.
func UpdateCacheEntries(leaderboardID string, n int) {
	if m := active(); m != nil {
		m.cacheEntries.WithLabelValues(leaderboardID).Set(float64(n))
	}
}

// UpdateLeaderboardsRegistered sets the registered leaderboard count.
func UpdateLeaderboardsRegistered(n int) {
	if m := active(); m != nil {
		m.leaderboardsRegistered.Set(float64(n))
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if m := active(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := active(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if m := active(); m != nil {
		m.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if m := active(); m != nil {
		m.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if m := active(); m != nil {
		m.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if m := active(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

// RecordQueueProcessingLatency records time spent in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.queueProcessingLatency.Observe(latencyMs)
	}
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if m := active(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

// AddWorkerActive moves the active worker gauge by delta.
func AddWorkerActive(delta int) {
	if m := active(); m != nil {
		m.workerActiveCount.Add(float64(delta))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if m := active(); m != nil {
		m.workerErrors.Inc()
	}
}

// RecordConsumerMessage counts one broker message by result
// (processed, failed, decode_error, dlq).
func RecordConsumerMessage(result string) {
	if m := active(); m != nil {
		m.consumerMessages.WithLabelValues(result).Inc()
	}
}

// AddConsumerInFlight moves the in-flight broker message gauge by delta.
func AddConsumerInFlight(delta int) {
	if m := active(); m != nil {
		m.consumerInFlight.Add(float64(delta))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := active(); m != nil {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if m := active(); m != nil {
		m.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m := active(); m != nil {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMetrics samples runtime memory, goroutine and GC figures.
func UpdateSystemMetrics() {
	m := active()
	if m == nil {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.HeapInuse))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		last := ms.PauseNs[(ms.NumGC+255)%256]
		m.systemGCPauseTime.Observe(float64(last) / float64(time.Millisecond))
	}
}

// GetRegistry returns the gatherer behind the global manager, the one served
// on /metrics.
func GetRegistry() prometheus.Gatherer {
	if m := globalManager.Load(); m != nil && m.gatherer != nil {
		return m.gatherer
	}
	return customRegistry
}
