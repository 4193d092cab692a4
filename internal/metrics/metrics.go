// Package metrics exposes Prometheus collectors for ledger operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/ledgerbank/internal/models"
)

const namespace = "ledger"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the ledger collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	moneyMoved *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		moneyMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "money_moved_total",
			Help:      "Committed money movements in currency units.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.moneyMoved)
	}
	return m
}

// Observe records one operation that started at start. The outcome label is
// the error kind for core errors, "error" for anything else.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// MoneyMoved adds a committed deposit or transfer amount.
func (m *Metrics) MoneyMoved(kind string, amount models.Amount) {
	if m == nil {
		return
	}
	m.moneyMoved.WithLabelValues(kind).Add(amount.Float64())
}

func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if kind := models.KindOf(err); kind != "" {
		return string(kind)
	}
	return OutcomeError
}
