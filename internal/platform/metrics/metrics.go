package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes prometheus instruments for the settlement pipeline.
type Metrics struct {
	transactionsTotal        *prometheus.CounterVec
	idempotencyDuplicates    *prometheus.CounterVec
	reconciliationRunsTotal  *prometheus.CounterVec
	reconciliationSweptTotal prometheus.Counter
	reconciliationFlagged    prometheus.Counter
	providerCallsTotal       *prometheus.CounterVec
	pendingAge               prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		transactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_core",
				Subsystem: "settlement",
				Name:      "transactions_total",
				Help:      "Transactions reaching a terminal state, partitioned by type and status.",
			},
			[]string{"type", "status"},
		),
		idempotencyDuplicates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_core",
				Subsystem: "idempotency",
				Name:      "duplicate_hits_total",
				Help:      "Duplicate requests short-circuited by the idempotency guard, by scope.",
			},
			[]string{"scope"},
		),
		reconciliationRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_core",
				Subsystem: "reconciliation",
				Name:      "runs_total",
				Help:      "Reconciliation sweeps partitioned by result.",
			},
			[]string{"result"},
		),
		reconciliationSweptTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wallet_core",
				Subsystem: "reconciliation",
				Name:      "transactions_swept_total",
				Help:      "Pending transactions examined by the reconciliation worker.",
			},
		),
		reconciliationFlagged: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wallet_core",
				Subsystem: "reconciliation",
				Name:      "flagged_for_review_total",
				Help:      "Transactions flagged for manual review after ambiguous provider status.",
			},
		),
		providerCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_core",
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Outbound provider calls partitioned by provider and result.",
			},
			[]string{"provider", "result"},
		),
		pendingAge: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "wallet_core",
				Subsystem: "reconciliation",
				Name:      "pending_age_seconds",
				Help:      "Age of provider-pending transactions at sweep time.",
				Buckets:   prometheus.ExponentialBuckets(60, 2, 10),
			},
		),
	}
}

func (m *Metrics) ObserveTerminal(txType, status string) {
	m.transactionsTotal.WithLabelValues(txType, status).Inc()
}

func (m *Metrics) ObserveDuplicate(scope string) {
	m.idempotencyDuplicates.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveReconciliationRun(result string) {
	m.reconciliationRunsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSwept(count int) {
	m.reconciliationSweptTotal.Add(float64(count))
}

func (m *Metrics) ObserveFlagged() {
	m.reconciliationFlagged.Inc()
}

func (m *Metrics) ObserveProviderCall(provider, result string) {
	m.providerCallsTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ObservePendingAge(seconds float64) {
	m.pendingAge.Observe(seconds)
}
