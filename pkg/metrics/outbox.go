package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox relay outcomes.
const (
	OutboxPublished  = "published"
	OutboxRetry      = "retry"
	OutboxDeadLetter = "dead_letter"
)

// OutboxMetrics follows events from the outbox table to Pub/Sub.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	lag    prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maiyom_outbox_events_total",
			Help: "Outbox events handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "maiyom_outbox_publish_lag_seconds",
			Help:    "Time between an event being committed and acknowledged by Pub/Sub.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.events, m.lag)
	return m
}

func (m *OutboxMetrics) Observe(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// ObserveLag records how long a published event waited since createdAt.
func (m *OutboxMetrics) ObserveLag(createdAt time.Time) {
	if m == nil || createdAt.IsZero() {
		return
	}
	m.lag.Observe(time.Since(createdAt).Seconds())
}
