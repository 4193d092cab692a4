package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerbank/internal/models"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	start := time.Now()
	m.Observe("transfer", start, nil)
	m.Observe("transfer", start, nil)
	m.Observe("transfer", start, models.NewError(models.KindInsufficientFunds, "short"))
	m.Observe("deposit", start, errors.New("disk on fire"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "InsufficientFunds")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit", OutcomeError)))
	require.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMoneyMoved(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.MoneyMoved("deposit", models.MustParseAmount("10.25"))
	m.MoneyMoved("deposit", models.MustParseAmount("0.75"))
	require.Equal(t, 11.0, testutil.ToFloat64(m.moneyMoved.WithLabelValues("deposit")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Observe("noop", time.Now(), nil)
	m.MoneyMoved("deposit", models.MustParseAmount("1"))
}
