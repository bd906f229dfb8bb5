package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	snapshotReloads *prometheus.CounterVec
	snapshotVersion prometheus.Gauge
	statusChanges   *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	backendCount         uint64
	backendFailures      uint64
	backendDurationTotal uint64
	opsSucceeded         uint64
	opsFailed            uint64
	reloadCount          uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	backendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_call_duration_seconds",
		Help:    "Duration of calls to the persistence service",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_operations_total",
		Help: "Command operations by action and outcome",
	}, []string{"action", "outcome"})

	snapshotReloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_reloads_total",
		Help: "Snapshot reloads by result",
	}, []string{"result"})

	snapshotVersion := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapshot_version",
		Help: "Version of the snapshot currently served",
	})

	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "student_status_changes_total",
		Help: "Student status transitions by target status and trigger",
	}, []string{"status", "trigger"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, backendDuration, operations, snapshotReloads, snapshotVersion,
		statusChanges, cacheLatency, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		backendDuration: backendDuration,
		operations:      operations,
		snapshotReloads: snapshotReloads,
		snapshotVersion: snapshotVersion,
		statusChanges:   statusChanges,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveBackendCall records one call to the persistence service. Status 0
// means the service could not be reached.
func (m *MetricsService) ObserveBackendCall(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := "unreachable"
	if status > 0 {
		labelStatus = fmt.Sprintf("%d", status)
	}
	m.backendDuration.WithLabelValues(method, endpoint, labelStatus).Observe(duration.Seconds())
	atomic.AddUint64(&m.backendCount, 1)
	atomic.AddUint64(&m.backendDurationTotal, uint64(duration.Nanoseconds()))
	if status == 0 || status >= http.StatusInternalServerError {
		atomic.AddUint64(&m.backendFailures, 1)
	}
}

// RecordOperation counts one command operation outcome.
func (m *MetricsService) RecordOperation(action models.OperationAction, outcome models.Outcome) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(action), string(outcome)).Inc()
	if outcome.Succeeded() {
		atomic.AddUint64(&m.opsSucceeded, 1)
	} else if outcome == models.OutcomeFailed {
		atomic.AddUint64(&m.opsFailed, 1)
	}
}

// RecordSnapshotReload counts a reload attempt and tracks the served version.
func (m *MetricsService) RecordSnapshotReload(version int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.snapshotReloads.WithLabelValues("failed").Inc()
		return
	}
	m.snapshotReloads.WithLabelValues("ok").Inc()
	m.snapshotVersion.Set(float64(version))
	atomic.AddUint64(&m.reloadCount, 1)
}

// RecordStatusChange counts a student status transition.
func (m *MetricsService) RecordStatusChange(status models.StudentStatus, trigger string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(string(status), trigger).Inc()
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

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	backendCalls := atomic.LoadUint64(&m.backendCount)
	backendDuration := atomic.LoadUint64(&m.backendDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMs(reqDuration, requests),
		BackendCalls:             backendCalls,
		BackendFailures:          atomic.LoadUint64(&m.backendFailures),
		AverageBackendDurationMs: averageMs(backendDuration, backendCalls),
		OperationsSucceeded:      atomic.LoadUint64(&m.opsSucceeded),
		OperationsFailed:         atomic.LoadUint64(&m.opsFailed),
		SnapshotReloads:          atomic.LoadUint64(&m.reloadCount),
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func averageMs(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
