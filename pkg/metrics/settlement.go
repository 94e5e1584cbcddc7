package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconcile outcomes used as label values.
const (
	OutcomePaid           = "paid"
	OutcomeFailed         = "failed"
	OutcomeNoop           = "noop"
	OutcomeAmountMismatch = "amount_mismatch"
	OutcomeDuplicate      = "duplicate"
)

// SettlementMetrics counts order and payment activity.
type SettlementMetrics struct {
	ordersCreated      *prometheus.CounterVec
	paymentsInitiated  *prometheus.CounterVec
	reconciliations    *prometheus.CounterVec
	signatureFailures  *prometheus.CounterVec
	initiateLatency    *prometheus.HistogramVec
	notificationsDrops prometheus.Counter
}

// NewSettlementMetrics registers the settlement collectors on reg. A nil
// registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_orders_created_total",
			Help: "Orders persisted, by payment method.",
		}, []string{"method"}),
		paymentsInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_payments_initiated_total",
			Help: "Payment initiations, by method and result.",
		}, []string{"method", "result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_reconciliations_total",
			Help: "Verified gateway callbacks, by method and outcome.",
		}, []string{"method", "outcome"}),
		signatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_signature_failures_total",
			Help: "Callbacks rejected by signature verification.",
		}, []string{"method"}),
		initiateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_gateway_initiate_seconds",
			Help:    "Latency of gateway initiation calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		notificationsDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full.",
		}),
	}
	reg.MustRegister(
		m.ordersCreated,
		m.paymentsInitiated,
		m.reconciliations,
		m.signatureFailures,
		m.initiateLatency,
		m.notificationsDrops,
	)
	return m
}

func (m *SettlementMetrics) IncOrderCreated(method string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(method)).Inc()
}

// ObserveInitiate records one gateway initiation and its latency.
func (m *SettlementMetrics) ObserveInitiate(method string, duration time.Duration, err error) {
	if m == nil || m.paymentsInitiated == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.paymentsInitiated.WithLabelValues(normalizeLabel(method), result).Inc()
	m.initiateLatency.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
}

func (m *SettlementMetrics) IncReconcile(method, outcome string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

func (m *SettlementMetrics) IncSignatureFailure(method string) {
	if m == nil || m.signatureFailures == nil {
		return
	}
	m.signatureFailures.WithLabelValues(normalizeLabel(method)).Inc()
}

func (m *SettlementMetrics) IncNotificationDropped() {
	if m == nil || m.notificationsDrops == nil {
		return
	}
	m.notificationsDrops.Inc()
}
