// Package metrics provides Prometheus metrics for the promille service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Engine
	evaluations       *prometheus.CounterVec
	evaluationLatency prometheus.Histogram
	samplesGenerated  prometheus.Counter
	invalidInputs     *prometheus.CounterVec

	// Drink log and sessions
	drinksLogged        prometheus.Counter
	drinksDuplicate     prometheus.Counter
	drinksDeleted       prometheus.Counter
	leaderboardRefresh  prometheus.Counter
	activeSessions      prometheus.Gauge
	liveSubscribers     prometheus.Gauge
	storeUpdateLatency  prometheus.Histogram
	storeQueryLatency   prometheus.Histogram
	participantsInStore prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

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

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "promille",
		subsystem:        "engine",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// collectors still work but are never exposed
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval is how often periodic gauges should be updated.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.evaluations = auto.NewCounterVec(m.counterOpts("evaluations_total",
		"Engine evaluations by kind (concentration, series, summary, leaderboard)"), []string{"kind"})
	m.evaluationLatency = auto.NewHistogram(m.histogramOpts("evaluation_latency_milliseconds",
		"Engine evaluation latency in milliseconds", nil))
	m.samplesGenerated = auto.NewCounter(m.counterOpts("samples_generated_total",
		"Concentration samples produced by the sampler"))
	m.invalidInputs = auto.NewCounterVec(m.counterOpts("invalid_input_total",
		"Rejected engine inputs by kind (profile, drink)"), []string{"kind"})

	m.drinksLogged = auto.NewCounter(m.counterOpts("drinks_logged_total", "Drinks appended to the log"))
	m.drinksDuplicate = auto.NewCounter(m.counterOpts("drinks_duplicate_total", "Drink submissions ignored as retries"))
	m.drinksDeleted = auto.NewCounter(m.counterOpts("drinks_deleted_total", "Drinks removed from the log"))
	m.leaderboardRefresh = auto.NewCounter(m.counterOpts("leaderboard_refresh_total", "Live leaderboard recomputations"))
	m.activeSessions = auto.NewGauge(m.gaugeOpts("active_sessions", "Sessions currently inside their time window"))
	m.liveSubscribers = auto.NewGauge(m.gaugeOpts("live_subscribers", "Connected live leaderboard subscribers"))
	m.participantsInStore = auto.NewGauge(m.gaugeOpts("participants", "Participants across all sessions"))
	m.storeUpdateLatency = auto.NewHistogram(m.histogramOpts("store_update_latency_milliseconds",
		"Drink log write latency in milliseconds", nil))
	m.storeQueryLatency = auto.NewHistogram(m.histogramOpts("store_query_latency_milliseconds",
		"Drink log read latency in milliseconds", nil))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Drinks waiting for ingestion"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum ingestion queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Ingestion queue utilization (0-1)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Drinks enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Drinks dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Ingestion workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Time to ingest one drink in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Failed drink ingestions"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"Average GC pause in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// RecordEvaluation counts one engine evaluation and its latency.
func RecordEvaluation(kind string, latencyMs float64) {
	globalManager.evaluations.WithLabelValues(kind).Inc()
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordSamplesGenerated adds n produced curve samples.
func RecordSamplesGenerated(n int) {
	globalManager.samplesGenerated.Add(float64(n))
}

// RecordInvalidInput counts a rejected profile or drink.
func RecordInvalidInput(kind string) {
	globalManager.invalidInputs.WithLabelValues(kind).Inc()
}

// RecordDrinkLogged increments the logged drinks counter.
func RecordDrinkLogged() { globalManager.drinksLogged.Inc() }

// RecordDrinkDuplicate increments the duplicate drinks counter.
func RecordDrinkDuplicate() { globalManager.drinksDuplicate.Inc() }

// RecordDrinkDeleted increments the deleted drinks counter.
func RecordDrinkDeleted() { globalManager.drinksDeleted.Inc() }

// RecordLeaderboardRefresh increments the live refresh counter.
func RecordLeaderboardRefresh() { globalManager.leaderboardRefresh.Inc() }

// UpdateActiveSessions sets the number of running sessions.
func UpdateActiveSessions(n int) { globalManager.activeSessions.Set(float64(n)) }

// UpdateLiveSubscribers sets the number of live subscribers.
func UpdateLiveSubscribers(n int) { globalManager.liveSubscribers.Set(float64(n)) }

// UpdateParticipants sets the number of stored participants.
func UpdateParticipants(n int) { globalManager.participantsInStore.Set(float64(n)) }

// RecordStoreUpdateLatency records a drink log write.
func RecordStoreUpdateLatency(latencyMs float64) { globalManager.storeUpdateLatency.Observe(latencyMs) }

// RecordStoreQueryLatency records a drink log read.
func RecordStoreQueryLatency(latencyMs float64) { globalManager.storeQueryLatency.Observe(latencyMs) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Global returns the process-wide manager.
func Global() *Manager {
	return globalManager
}
