package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery results used as label values.
const (
	DeliveryPublished    = "published"
	DeliveryRetry        = "retry"
	DeliveryDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox relay.
type OutboxMetrics struct {
	deliveries     *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
	batchSize      prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outbox_deliveries_total",
			Help: "Outbox rows handled by the relay, by event type and result.",
		}, []string{"event_type", "result"}),
		publishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_outbox_publish_seconds",
			Help:    "Time spent waiting for Pub/Sub to acknowledge a publish.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_outbox_batch_rows",
			Help:    "Rows claimed per relay batch.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
	reg.MustRegister(m.deliveries, m.publishLatency, m.batchSize)
	return m
}

func (m *OutboxMetrics) IncDelivery(eventType, result string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (m *OutboxMetrics) ObservePublish(topic string, duration time.Duration) {
	if m == nil || m.publishLatency == nil {
		return
	}
	m.publishLatency.WithLabelValues(normalizeLabel(topic)).Observe(duration.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(rows))
}
