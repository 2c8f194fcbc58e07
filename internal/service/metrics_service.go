package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-events-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
// It also observes live subscriptions.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	storeDuration      *prometheus.HistogramVec
	subscriptions      *prometheus.GaugeVec
	subscriptionErrors *prometheus.CounterVec
	liveSessions       prometheus.Gauge
	reportJobs         *prometheus.CounterVec
	jobRuns            *prometheus.HistogramVec

	cacheHitCount          uint64
	cacheMissCount         uint64
	requestCount           uint64
	requestDurationTotal   uint64
	storeOpCount           uint64
	storeOpDurationTotal   uint64
	openSubscriptions      int64
	openSessions           int64
	subscriptionErrorCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Duration of document store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "live_subscriptions_open",
			Help: "Open live subscriptions per collection",
		}, []string{"collection"}),
		subscriptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_subscription_errors_total",
			Help: "Live subscription failures per collection",
		}, []string{"collection"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_sessions_open",
			Help: "Connected live dashboard sessions",
		}),
		reportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_jobs_total",
			Help: "Export jobs by terminal status",
		}, []string{"type", "status"}),
		jobRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "background_job_run_seconds",
			Help:    "Duration of background job handler runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"type", "outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency.(prometheus.Collector), m.cacheWrite.(prometheus.Collector),
		m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.storeDuration, m.subscriptions, m.subscriptionErrors, m.liveSessions, m.reportJobs, m.jobRuns,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveStoreOperation records document store timing.
func (m *MetricsService) ObserveStoreOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
	atomic.AddUint64(&m.storeOpCount, 1)
	atomic.AddUint64(&m.storeOpDurationTotal, uint64(duration.Nanoseconds()))
}

// SubscriptionOpened counts a newly established live subscription.
func (m *MetricsService) SubscriptionOpened(collection string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(collection).Inc()
	atomic.AddInt64(&m.openSubscriptions, 1)
}

// SubscriptionClosed counts a cancelled live subscription.
func (m *MetricsService) SubscriptionClosed(collection string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(collection).Dec()
	atomic.AddInt64(&m.openSubscriptions, -1)
}

// SubscriptionFailed counts a subscription error delivery.
func (m *MetricsService) SubscriptionFailed(collection string) {
	if m == nil {
		return
	}
	m.subscriptionErrors.WithLabelValues(collection).Inc()
	atomic.AddUint64(&m.subscriptionErrorCount, 1)
}

// SessionOpened and SessionClosed track connected live clients.
func (m *MetricsService) SessionOpened() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
	atomic.AddInt64(&m.openSessions, 1)
}

func (m *MetricsService) SessionClosed() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
	atomic.AddInt64(&m.openSessions, -1)
}

// RecordReportJob counts export jobs reaching a terminal status.
func (m *MetricsService) RecordReportJob(reportType models.ReportType, status models.ReportStatus) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(string(reportType), string(status)).Inc()
}

// ObserveJobRun records one background job handler run. Failed runs that
// will be retried are counted under the "error" outcome.
func (m *MetricsService) ObserveJobRun(jobType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(jobType, outcome).Observe(duration.Seconds())
}

// Snapshot returns aggregated metrics suitable for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	storeOps := atomic.LoadUint64(&m.storeOpCount)

	snapshot := models.SystemMetrics{
		CacheHits:          hits,
		CacheMisses:        misses,
		RequestsTotal:      requests,
		StoreOperations:    storeOps,
		OpenSubscriptions:  atomic.LoadInt64(&m.openSubscriptions),
		LiveSessions:       atomic.LoadInt64(&m.openSessions),
		SubscriptionErrors: atomic.LoadUint64(&m.subscriptionErrorCount),
		Goroutines:         runtime.NumGoroutine(),
		GeneratedAt:        time.Now().UTC(),
	}
	if total := hits + misses; total > 0 {
		snapshot.CacheHitRatio = float64(hits) / float64(total)
	}
	if requests > 0 {
		snapshot.AverageRequestDurationMs = averageMs(atomic.LoadUint64(&m.requestDurationTotal), requests)
	}
	if storeOps > 0 {
		snapshot.AverageStoreDurationMs = averageMs(atomic.LoadUint64(&m.storeOpDurationTotal), storeOps)
	}
	return snapshot
}

func averageMs(totalNanos, count uint64) float64 {
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
