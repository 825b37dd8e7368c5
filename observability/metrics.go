package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// API returns the lazily-initialised registry used to record HTTP route
// activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "anchor",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the per-client limiter.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *apiMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// LedgerMetrics bundles collectors for the anchoring core.
type LedgerMetrics struct {
	anchors      *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	batchSize    prometheus.Histogram
	pauseEngaged prometheus.Gauge
}

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			anchors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "ledger",
				Name:      "anchors_total",
				Help:      "Accepted anchors segmented by action and whether the record was new.",
			}, []string{"action", "result"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Rejected anchor submissions segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "anchor",
				Subsystem: "ledger",
				Name:      "batch_size",
				Help:      "Number of items in accepted batch submissions.",
				Buckets:   []float64{1, 2, 3, 5, 8, 10, 20, 50},
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "anchor",
				Subsystem: "ledger",
				Name:      "pause_engaged",
				Help:      "Indicates whether anchoring is paused (1) or live (0).",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.anchors,
			ledgerRegistry.rejections,
			ledgerRegistry.batchSize,
			ledgerRegistry.pauseEngaged,
		)
	})
	return ledgerRegistry
}

// RecordAnchor counts an accepted anchor. created is false for a duplicate
// commitment that left the stored record untouched.
func (m *LedgerMetrics) RecordAnchor(action string, created bool) {
	if m == nil {
		return
	}
	result := "created"
	if !created {
		result = "duplicate"
	}
	m.anchors.WithLabelValues(labelAction(action), result).Inc()
}

// RecordRejection counts a rejected submission under a stable reason code.
func (m *LedgerMetrics) RecordRejection(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// ObserveBatch records the size of an accepted batch.
func (m *LedgerMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

// SetPause toggles the pause_engaged gauge.
func (m *LedgerMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func labelAction(action string) string {
	normalized := strings.TrimSpace(strings.ToUpper(action))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}
