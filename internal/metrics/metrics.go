package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconcilerMetrics covers the callback/reconciliation path. A nil
// receiver is valid and records nothing, so tests can run without a
// registry.
type ReconcilerMetrics struct {
	CallbacksTotal            *prometheus.CounterVec
	ReconciliationsTotal      *prometheus.CounterVec
	CASRetriesTotal           prometheus.Counter
	NotificationFailuresTotal prometheus.Counter
	ReconcileDuration         prometheus.Histogram
}

func NewReconcilerMetrics() *ReconcilerMetrics {
	return &ReconcilerMetrics{
		CallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_callbacks_total",
				Help: "Inbound gateway callbacks by delivery result",
			},
			[]string{"result"},
		),
		ReconciliationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciliations_total",
				Help: "Reconciliation attempts by outcome",
			},
			[]string{"outcome"},
		),
		CASRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reconcile_cas_retries_total",
				Help: "Lost compare-and-swap rounds during reconciliation",
			},
		),
		NotificationFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notification_failures_total",
				Help: "Outcome notifications that could not be delivered",
			},
		),
		ReconcileDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconcile_duration_seconds",
				Help:    "End-to-end reconciliation latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
		),
	}
}

func (m *ReconcilerMetrics) RecordCallback(result string) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(result).Inc()
}

func (m *ReconcilerMetrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.ReconciliationsTotal.WithLabelValues(outcome).Inc()
}

func (m *ReconcilerMetrics) RecordCASRetry() {
	if m == nil {
		return
	}
	m.CASRetriesTotal.Inc()
}

func (m *ReconcilerMetrics) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.Inc()
}

func (m *ReconcilerMetrics) ObserveReconcileDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(seconds)
}
