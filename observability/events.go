package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published   *prometheus.CounterVec
	journaled   *prometheus.CounterVec
	subscribers prometheus.Gauge
	dropped     *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking the event pipeline.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of events published segmented by type.",
			}, []string{"type"}),
			journaled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "events",
				Name:      "journal_writes_total",
				Help:      "Journal writes segmented by outcome.",
			}, []string{"outcome"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "anchor",
				Subsystem: "events",
				Name:      "stream_subscribers",
				Help:      "Number of live websocket stream subscribers.",
			}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "anchor",
				Subsystem: "events",
				Name:      "stream_drops_total",
				Help:      "Deliveries skipped because a stream subscriber fell behind.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.journaled, eventRegistry.subscribers, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordPublished increments the publish counter for the supplied event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.published.WithLabelValues(normalized).Inc()
}

// RecordJournal counts a journal write.
func (m *eventMetrics) RecordJournal(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.journaled.WithLabelValues(outcome).Inc()
}

// SetSubscribers reports the live stream subscriber count.
func (m *eventMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// RecordDropped counts an event a slow subscriber missed.
func (m *eventMetrics) RecordDropped(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.dropped.WithLabelValues(normalized).Inc()
}
