// Package metrics provides Prometheus metrics for the netpulse service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default histogram buckets, in milliseconds for the timing ones.
var ( //nolint:gochecknoglobals // bucket defaults
	defaultLatencyBuckets  = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	defaultPipelineBuckets = []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000, 30000, 60000}
	defaultScoreBuckets    = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace       string
	subsystem       string
	metricPrefix    string
	latencyBuckets  []float64
	pipelineBuckets []float64
	scoreBuckets    []float64
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Network test metrics
	networkTests        *prometheus.CounterVec
	networkTestDuration *prometheus.HistogramVec
	qualityScore        prometheus.Histogram

	// Guard metrics
	guardConflicts *prometheus.CounterVec
	guardActive    prometheus.Gauge

	// Store metrics
	storeEntries   *prometheus.GaugeVec
	storeEvictions *prometheus.CounterVec

	// Feedback metrics
	feedbackSubmissions *prometheus.CounterVec
	dedupeEntries       prometheus.Gauge

	// Notification metrics
	notificationsSent     *prometheus.CounterVec
	notificationsFailed   *prometheus.CounterVec
	notificationsDropped  prometheus.Counter
	notificationLatency   prometheus.Histogram
	queueSize             prometheus.Gauge
	queueCapacity         prometheus.Gauge
	queueUtilization      prometheus.Gauge
	workerActiveCount     prometheus.Gauge
	workerProcessingError prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
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

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "netpulse",
		subsystem:       "orchestrator",
		latencyBuckets:  defaultLatencyBuckets,
		pipelineBuckets: defaultPipelineBuckets,
		scoreBuckets:    defaultScoreBuckets,
		constLabels:     make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.networkTests = auto.NewCounterVec(m.counterOpts("network_tests_total",
		"Network test requests by test type and outcome"), []string{"type", "outcome"})
	m.networkTestDuration = auto.NewHistogramVec(m.histogramOpts("network_test_duration_milliseconds",
		"Wall time of the measurement pipeline", m.pipelineBuckets), []string{"type"})
	m.qualityScore = auto.NewHistogram(m.histogramOpts("quality_score",
		"Distribution of derived connection quality scores", m.scoreBuckets))

	m.guardConflicts = auto.NewCounterVec(m.counterOpts("guard_conflicts_total",
		"Operations rejected because one was already in flight for the client"), []string{"kind"})
	m.guardActive = auto.NewGauge(m.gaugeOpts("guard_active",
		"Currently held single-flight guards"))

	m.storeEntries = auto.NewGaugeVec(m.gaugeOpts("store_entries",
		"Entries currently held by a TTL store"), []string{"store"})
	m.storeEvictions = auto.NewCounterVec(m.counterOpts("store_evictions_total",
		"Entries removed from a TTL store by reason"), []string{"store", "reason"})

	m.feedbackSubmissions = auto.NewCounterVec(m.counterOpts("feedback_submissions_total",
		"Feedback submissions by outcome"), []string{"outcome"})
	m.dedupeEntries = auto.NewGauge(m.gaugeOpts("dedupe_entries",
		"Fingerprints currently held by the duplicate-submission guard"))

	m.notificationsSent = auto.NewCounterVec(m.counterOpts("notifications_sent_total",
		"Notifications delivered by channel"), []string{"channel"})
	m.notificationsFailed = auto.NewCounterVec(m.counterOpts("notifications_failed_total",
		"Best-effort notification failures by channel"), []string{"channel"})
	m.notificationsDropped = auto.NewCounter(m.counterOpts("notifications_dropped_total",
		"Notifications dropped before dispatch (queue full or closed)"))
	m.notificationLatency = auto.NewHistogram(m.histogramOpts("notification_latency_milliseconds",
		"Time spent delivering one notification", m.latencyBuckets))
	m.queueSize = auto.NewGauge(m.gaugeOpts("notification_queue_size",
		"Notifications waiting for a worker"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("notification_queue_capacity",
		"Maximum notifications the queue holds"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("notification_queue_utilization_ratio",
		"Queue size divided by capacity"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("notification_workers",
		"Notification dispatcher workers"))
	m.workerProcessingError = auto.NewCounter(m.counterOpts("notification_worker_errors_total",
		"Errors observed by notification workers"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.latencyBuckets), []string{"endpoint", "method", "status_code"})
	m.rateLimited = auto.NewCounterVec(m.counterOpts("rate_limited_total",
		"Requests rejected by the per-client rate limiter"), []string{"endpoint"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"Average GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Network test metrics.

// RecordNetworkTest counts a network test request by type and outcome.
func RecordNetworkTest(testType, outcome string) {
	globalManager.networkTests.WithLabelValues(testType, outcome).Inc()
}

// RecordNetworkTestDuration observes pipeline wall time.
func RecordNetworkTestDuration(testType string, durationMs float64) {
	globalManager.networkTestDuration.WithLabelValues(testType).Observe(durationMs)
}

// RecordQualityScore observes a derived quality score.
func RecordQualityScore(score float64) {
	globalManager.qualityScore.Observe(score)
}

// Guard metrics.

// RecordGuardConflict counts a rejected acquisition.
func RecordGuardConflict(kind string) {
	globalManager.guardConflicts.WithLabelValues(kind).Inc()
}

// UpdateGuardActive sets the number of held guards.
func UpdateGuardActive(count int) {
	globalManager.guardActive.Set(float64(count))
}

// Store metrics.

// UpdateStoreEntries sets the entry count of a named store.
func UpdateStoreEntries(store string, count int) {
	globalManager.storeEntries.WithLabelValues(store).Set(float64(count))
}

// RecordStoreEviction counts one eviction from a named store.
func RecordStoreEviction(store, reason string) {
	globalManager.storeEvictions.WithLabelValues(store, reason).Inc()
}

// Feedback metrics.

// RecordFeedbackSubmission counts a feedback submission by outcome.
func RecordFeedbackSubmission(outcome string) {
	globalManager.feedbackSubmissions.WithLabelValues(outcome).Inc()
}

// UpdateDedupeEntries sets the number of held fingerprints.
func UpdateDedupeEntries(count int64) {
	globalManager.dedupeEntries.Set(float64(count))
}

// Notification metrics.

// RecordNotificationSent counts a delivered notification.
func RecordNotificationSent(channel string) {
	globalManager.notificationsSent.WithLabelValues(channel).Inc()
}

// RecordNotificationFailed counts a failed best-effort delivery.
func RecordNotificationFailed(channel string) {
	globalManager.notificationsFailed.WithLabelValues(channel).Inc()
}

// RecordNotificationDropped counts a notification that never reached a worker.
func RecordNotificationDropped() {
	globalManager.notificationsDropped.Inc()
}

// RecordNotificationLatency observes delivery time.
func RecordNotificationLatency(latencyMs float64) {
	globalManager.notificationLatency.Observe(latencyMs)
}

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

// UpdateWorkerActiveCount sets the number of dispatcher workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerProcessingError.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// Error metrics.

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

// System metrics.

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
