// Package metrics provides Prometheus metrics for the harvester service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the harvester.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Upstream traffic
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamRetries  prometheus.Counter

	// Quota
	quotaUsed      prometheus.Gauge
	quotaRemaining prometheus.Gauge
	quotaDenied    prometheus.Counter

	// Harvest outcomes
	matchesInserted  prometheus.Counter
	matchesExisting  prometheus.Counter
	statsInserted    prometheus.Counter
	matchesFiltered  *prometheus.CounterVec
	recordsMalformed prometheus.Counter
	unitsFailed      prometheus.Counter
	pendingUnits     prometheus.Gauge
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	runActive        prometheus.Gauge

	// Job queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "harvester",
		subsystem:        "football",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) opts(name, help string) (string, string, string, string, prometheus.Labels) {
	return m.namespace, m.subsystem, name, help, m.constLabels
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	ns, sub, n, h, labels := m.opts(name, help)
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: n, Help: h, ConstLabels: labels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	ns, sub, n, h, labels := m.opts(name, help)
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: n, Help: h, ConstLabels: labels,
	})
}

func (m *Manager) counterVec(name, help string, labelNames ...string) *prometheus.CounterVec {
	ns, sub, n, h, labels := m.opts(name, help)
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: n, Help: h, ConstLabels: labels,
	}, labelNames)
}

func (m *Manager) histogramVec(name, help string, labelNames ...string) *prometheus.HistogramVec {
	ns, sub, n, h, labels := m.opts(name, help)
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: sub, Name: n, Help: h, ConstLabels: labels, Buckets: m.histogramBuckets,
	}, labelNames)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.upstreamRequests = m.counterVec("upstream_requests_total",
		"Requests sent to the upstream football API by endpoint and outcome", "endpoint", "outcome")
	m.upstreamLatency = m.histogramVec("upstream_request_duration_milliseconds",
		"Upstream request latency in milliseconds", "endpoint")
	m.upstreamRetries = m.counter("upstream_retries_total",
		"Retried upstream requests after a transient failure")

	m.quotaUsed = m.gauge("quota_used", "Requests consumed from today's budget")
	m.quotaRemaining = m.gauge("quota_remaining", "Requests left in today's budget")
	m.quotaDenied = m.counter("quota_denied_total", "Requests refused because the daily budget was spent")

	m.matchesInserted = m.counter("matches_inserted_total", "Matches stored for the first time")
	m.matchesExisting = m.counter("matches_existing_total", "Admitted matches that were already stored")
	m.statsInserted = m.counter("player_stats_inserted_total", "Player statistic rows stored")
	m.matchesFiltered = m.counterVec("matches_filtered_total",
		"Matches not persisted by the competition filter", "competition", "decision")
	m.recordsMalformed = m.counter("records_malformed_total", "Upstream records dropped for missing fields")
	m.unitsFailed = m.counter("units_failed_total", "Units of work skipped after exhausting retries")
	m.pendingUnits = m.gauge("pending_units", "Units waiting to be replayed by a later run")
	m.runs = m.counterVec("runs_total", "Harvest runs by final status", "status")

	ns, sub, _, _, labels := m.opts("", "")
	m.runDuration = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Subsystem:   sub,
		Name:        "run_duration_seconds",
		Help:        "Wall time of harvest runs",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.runActive = m.gauge("run_active", "1 while a harvest run holds the lock")

	m.queueSize = m.gauge("queue_size", "Queued harvest jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queued harvest jobs")
	m.queueRejected = m.counter("queue_rejected_total", "Harvest jobs rejected because the queue was full or closed")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordUpstreamRequest counts an upstream call and observes its latency.
func RecordUpstreamRequest(endpoint, outcome string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	globalManager.upstreamLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordUpstreamRetry increments the retry counter.
func RecordUpstreamRetry() {
	globalManager.upstreamRetries.Inc()
}

// UpdateQuota sets the quota gauges.
func UpdateQuota(used, remaining int) {
	globalManager.quotaUsed.Set(float64(used))
	globalManager.quotaRemaining.Set(float64(remaining))
}

// RecordQuotaDenied increments the denied counter.
func RecordQuotaDenied() {
	globalManager.quotaDenied.Inc()
}

// RecordMatchInserted increments the inserted matches counter.
func RecordMatchInserted() {
	globalManager.matchesInserted.Inc()
}

// RecordMatchExisting increments the already-stored matches counter.
func RecordMatchExisting() {
	globalManager.matchesExisting.Inc()
}

// RecordStatsInserted adds n stored player statistic rows.
func RecordStatsInserted(n int) {
	globalManager.statsInserted.Add(float64(n))
}

// RecordMatchFiltered counts a match the filter rejected or deferred.
func RecordMatchFiltered(competition, decision string) {
	globalManager.matchesFiltered.WithLabelValues(competition, decision).Inc()
}

// RecordMalformed increments the malformed records counter.
func RecordMalformed() {
	globalManager.recordsMalformed.Inc()
}

// RecordUnitFailed increments the failed units counter.
func RecordUnitFailed() {
	globalManager.unitsFailed.Inc()
}

// UpdatePendingUnits sets the pending units gauge.
func UpdatePendingUnits(n int) {
	globalManager.pendingUnits.Set(float64(n))
}

// RecordRun counts a finished run and observes its duration.
func RecordRun(status string, d time.Duration) {
	globalManager.runs.WithLabelValues(status).Inc()
	globalManager.runDuration.Observe(d.Seconds())
}

// SetRunActive flips the run_active gauge.
func SetRunActive(active bool) {
	if active {
		globalManager.runActive.Set(1)
		return
	}
	globalManager.runActive.Set(0)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected increments the queue rejection counter.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
