package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a JSON friendly summary of the collected metrics.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	SweepRuns                uint64    `json:"sweep_runs"`
	PeriodTransitions        uint64    `json:"period_transitions"`
	EnrollmentsSubmitted     uint64    `json:"enrollments_submitted"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService owns the Prometheus registry of the API and the sweep.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	transitions     *prometheus.CounterVec
	enrollments     *prometheus.CounterVec
	collected       prometheus.Counter
	notifications   *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	cacheHitCount        uint64
	cacheMissCount       uint64
	sweepRunCount        uint64
	transitionCount      uint64
	enrollmentCount      uint64
}

// NewMetricsService registers the collectors on a private registry.
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
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_period_sweep_runs_total",
			Help: "Enrollment period sweeps by outcome",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollment_period_sweep_duration_seconds",
			Help:    "Duration of enrollment period sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_period_transitions_total",
			Help: "Enrollment period status changes applied by the sweep",
		}, []string{"to"}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollments_total",
			Help: "Enrollment applications by resulting status",
		}, []string{"status"}),
		collected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_collected_cents_total",
			Help: "Sum of recorded payments in cents",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheLookups, m.sweepRuns, m.sweepDuration, m.transitions, m.enrollments,
		m.collected, m.notifications, goroutines)
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

// ObserveHTTPRequest records request metrics.
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

// RecordCacheOperation records a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSweep records one sweep run. outcome is ok, partial, locked or failed.
func (m *MetricsService) ObserveSweep(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.sweepRunCount, 1)
}

// ObservePeriodTransition counts one applied period status change.
func (m *MetricsService) ObservePeriodTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
}

// ObserveEnrollment counts an enrollment reaching status.
func (m *MetricsService) ObserveEnrollment(status string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(status).Inc()
	if status == "pending" {
		atomic.AddUint64(&m.enrollmentCount, 1)
	}
}

// ObservePayment adds a recorded payment amount.
func (m *MetricsService) ObservePayment(cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.collected.Add(float64(cents))
}

// ObserveNotification counts a delivery attempt.
func (m *MetricsService) ObserveNotification(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

// Snapshot returns aggregated metrics for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            ratio,
		CacheHits:                hits,
		CacheMisses:              misses,
		SweepRuns:                atomic.LoadUint64(&m.sweepRunCount),
		PeriodTransitions:        atomic.LoadUint64(&m.transitionCount),
		EnrollmentsSubmitted:     atomic.LoadUint64(&m.enrollmentCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
