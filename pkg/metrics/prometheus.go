// Package metrics provides Prometheus metrics for the toprank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Submission pipeline
	submissions        *prometheus.CounterVec
	evaluationLatency  prometheus.Histogram
	submitRateLimited  prometheus.Counter
	submitDuplicates   prometheus.Counter
	problemsRegistered prometheus.Gauge

	// Ranking engine
	recomputeLatency  *prometheus.HistogramVec
	recomputeFailures *prometheus.CounterVec
	rankedUsers       *prometheus.GaugeVec
	rebuildDuration   prometheus.Histogram

	// Leaderboard projector
	leaderboardRequests *prometheus.CounterVec
	leaderboardLatency  *prometheus.HistogramVec

	// Store
	storeQueryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "toprank",
		subsystem:        "ranking",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_total",
		Help:      "Submissions by problem, dimension and outcome",
	}, []string{"problem", "dimension", "outcome"})

	m.evaluationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "evaluation_latency_milliseconds",
		Help:      "Fitness evaluation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.submitRateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_rate_limited_total",
		Help:      "Submissions rejected by the per-user rate limiter",
	})

	m.submitDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_duplicate_total",
		Help:      "Submissions rejected for reusing an idempotency key",
	})

	m.problemsRegistered = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "problems_registered",
		Help:      "Problems known to the catalog",
	})

	m.recomputeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_latency_milliseconds",
		Help:      "Rank recompute latency in milliseconds by scope (dimension, overall)",
		Buckets:   m.histogramBuckets,
	}, []string{"scope"})

	m.recomputeFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "recompute_failures_total",
		Help:      "Rank recomputes that did not commit, by scope",
	}, []string{"scope"})

	m.rankedUsers = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranked_users",
		Help:      "Users holding a rank for a problem and dimension",
	}, []string{"problem", "dimension"})

	m.rebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rebuild_duration_milliseconds",
		Help:      "Duration of full ranking rebuilds in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	m.leaderboardRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_requests_total",
		Help:      "Leaderboard projections served by view",
	}, []string{"view"})

	m.leaderboardLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_latency_milliseconds",
		Help:      "Leaderboard projection latency in milliseconds by view",
		Buckets:   m.histogramBuckets,
	}, []string{"view"})

	m.storeQueryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_milliseconds",
		Help:      "Store operation latency in milliseconds by driver and operation",
		Buckets:   m.histogramBuckets,
	}, []string{"driver", "op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_endpoint_total",
		Help:      "Total number of error responses by endpoint",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordSubmission counts a submission outcome (evaluated, rejected, error).
func RecordSubmission(problemID, dimension, outcome string) {
	globalManager.submissions.WithLabelValues(problemID, dimension, outcome).Inc()
}

// RecordEvaluationLatency records fitness evaluation latency in milliseconds.
func RecordEvaluationLatency(ms float64) {
	globalManager.evaluationLatency.Observe(ms)
}

// RecordSubmitRateLimited counts a submission refused by the rate limiter.
func RecordSubmitRateLimited() {
	globalManager.submitRateLimited.Inc()
}

// RecordDuplicateSubmission counts a retried submission that was not re-evaluated.
func RecordDuplicateSubmission() {
	globalManager.submitDuplicates.Inc()
}

// UpdateProblemsRegistered sets the catalog size.
func UpdateProblemsRegistered(n int) {
	globalManager.problemsRegistered.Set(float64(n))
}

// RecordRecomputeLatency records a recompute duration for scope.
func RecordRecomputeLatency(scope string, ms float64) {
	globalManager.recomputeLatency.WithLabelValues(scope).Observe(ms)
}

// RecordRecomputeFailure counts a recompute that did not commit.
func RecordRecomputeFailure(scope string) {
	globalManager.recomputeFailures.WithLabelValues(scope).Inc()
}

// UpdateRankedUsers sets the number of ranked users for a problem dimension.
func UpdateRankedUsers(problemID, dimension string, n int) {
	globalManager.rankedUsers.WithLabelValues(problemID, dimension).Set(float64(n))
}

// RecordRebuildDuration records the duration of a full rebuild.
func RecordRebuildDuration(ms float64) {
	globalManager.rebuildDuration.Observe(ms)
}

// RecordLeaderboardRequest counts a projection and its latency.
func RecordLeaderboardRequest(view string, ms float64) {
	globalManager.leaderboardRequests.WithLabelValues(view).Inc()
	globalManager.leaderboardLatency.WithLabelValues(view).Observe(ms)
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(driver, op string, ms float64) {
	globalManager.storeQueryLatency.WithLabelValues(driver, op).Observe(ms)
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
