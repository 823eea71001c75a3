// Package metrics provides Prometheus metrics for the reading feed service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the feed service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Fan-out metrics
	fanoutQueries    *prometheus.CounterVec
	fanoutLatency    prometheus.Histogram
	relayErrors      *prometheus.CounterVec
	eventsFetched    prometheus.Counter
	stragglerWrites  prometheus.Counter
	relayConnections prometheus.Gauge

	// Cache metrics
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheWrites    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheEntries   prometheus.Gauge

	// Classifier metrics
	classifierDropped  *prometheus.CounterVec
	classifierExpanded prometheus.Counter

	// Enrichment metrics
	resolverCalls        *prometheus.CounterVec
	resolverErrors       *prometheus.CounterVec
	resolverLatency      *prometheus.HistogramVec
	placeholdersInserted *prometheus.CounterVec

	// Feed metrics
	feedsServed *prometheus.CounterVec
	feedLatency prometheus.Histogram
	feedSize    prometheus.Histogram

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	refreshCollapsed   prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "readfeed",
		subsystem:        "feed",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.fanoutQueries = m.counterVec("fanout_queries_total", "Fan-out queries by outcome", "outcome")
	m.fanoutLatency = m.histogram("fanout_latency_milliseconds", "Fan-out latency in milliseconds as seen by the caller", m.histogramBuckets)
	m.relayErrors = m.counterVec("relay_errors_total", "Relay query failures by endpoint", "endpoint")
	m.eventsFetched = m.counter("events_fetched_total", "Distinct events returned by relay fan-outs")
	m.stragglerWrites = m.counter("straggler_cache_writes_total", "Cache writes made by fan-outs that finished after the caller gave up")
	m.relayConnections = m.gauge("relay_connections", "Open relay connections")

	m.cacheHits = m.counter("cache_hits_total", "Result cache hits")
	m.cacheMisses = m.counter("cache_misses_total", "Result cache misses, including expired entries")
	m.cacheWrites = m.counter("cache_writes_total", "Result cache writes")
	m.cacheEvictions = m.counter("cache_evictions_total", "Expired result cache entries removed")
	m.cacheEntries = m.gauge("cache_entries", "Result cache entries currently held")

	m.classifierDropped = m.counterVec("classifier_dropped_total", "Events dropped by the classifier by reason", "reason")
	m.classifierExpanded = m.counter("classifier_candidates_total", "Candidate activities produced by the classifier")

	m.resolverCalls = m.counterVec("resolver_calls_total", "Batch resolver calls by resolver", "resolver")
	m.resolverErrors = m.counterVec("resolver_errors_total", "Failed batch resolver calls by resolver", "resolver")
	m.resolverLatency = m.histogramVec("resolver_latency_milliseconds", "Batch resolver latency in milliseconds", "resolver")
	m.placeholdersInserted = m.counterVec("placeholders_total", "Placeholder substitutions by kind", "kind")

	m.feedsServed = m.counterVec("feeds_served_total", "Feeds served by scope", "scope")
	m.feedLatency = m.histogram("feed_latency_milliseconds", "End-to-end feed assembly latency in milliseconds", m.histogramBuckets)
	m.feedSize = m.histogram("feed_size", "Activities per served feed", []float64{0, 1, 5, 10, 20, 50, 100})

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Pending background refreshes")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0-1)")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Refresh requests enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Refresh requests dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Refresh requests rejected by the queue")
	m.refreshCollapsed = m.counter("refresh_collapsed_total", "Refresh requests collapsed into an already pending one")

	m.workerCount = m.gauge("worker_count", "Configured refresh workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a refresh")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Background refresh latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Background refreshes that failed")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Fan-out Metrics Functions.

// RecordFanoutQuery counts a fan-out by its outcome.
func RecordFanoutQuery(outcome string) {
	globalManager.fanoutQueries.WithLabelValues(outcome).Inc()
}

// RecordFanoutLatency records the latency observed by the fan-out caller.
func RecordFanoutLatency(latencyMs float64) {
	globalManager.fanoutLatency.Observe(latencyMs)
}

// RecordRelayError counts a failed relay query.
func RecordRelayError(endpoint string) {
	globalManager.relayErrors.WithLabelValues(endpoint).Inc()
}

// RecordEventsFetched adds n distinct fetched events.
func RecordEventsFetched(n int) {
	globalManager.eventsFetched.Add(float64(n))
}

// RecordStragglerWrite counts a late cache write.
func RecordStragglerWrite() {
	globalManager.stragglerWrites.Inc()
}

// UpdateRelayConnections sets the number of open relay connections.
func UpdateRelayConnections(count int) {
	globalManager.relayConnections.Set(float64(count))
}

// Cache Metrics Functions.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheWrite increments the cache write counter.
func RecordCacheWrite() {
	globalManager.cacheWrites.Inc()
}

// RecordCacheEviction adds n evicted entries.
func RecordCacheEviction(n int) {
	globalManager.cacheEvictions.Add(float64(n))
}

// UpdateCacheEntries sets the number of cached entries.
func UpdateCacheEntries(count int) {
	globalManager.cacheEntries.Set(float64(count))
}

// Classifier Metrics Functions.

// RecordClassifierDrop counts an event dropped for reason.
func RecordClassifierDrop(reason string) {
	globalManager.classifierDropped.WithLabelValues(reason).Inc()
}

// RecordClassifierCandidates adds n produced candidates.
func RecordClassifierCandidates(n int) {
	globalManager.classifierExpanded.Add(float64(n))
}

// Enrichment Metrics Functions.

// RecordResolverCall records one batch resolver call and its latency.
func RecordResolverCall(resolver string, latencyMs float64, err error) {
	globalManager.resolverCalls.WithLabelValues(resolver).Inc()
	globalManager.resolverLatency.WithLabelValues(resolver).Observe(latencyMs)
	if err != nil {
		globalManager.resolverErrors.WithLabelValues(resolver).Inc()
	}
}

// RecordPlaceholders adds n placeholder substitutions of the given kind.
func RecordPlaceholders(kind string, n int) {
	globalManager.placeholdersInserted.WithLabelValues(kind).Add(float64(n))
}

// Feed Metrics Functions.

// RecordFeedServed records a served feed.
func RecordFeedServed(scope string, size int, latencyMs float64) {
	globalManager.feedsServed.WithLabelValues(scope).Inc()
	globalManager.feedSize.Observe(float64(size))
	globalManager.feedLatency.Observe(latencyMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordRefreshCollapsed counts a refresh merged into a pending one.
func RecordRefreshCollapsed() {
	globalManager.refreshCollapsed.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
