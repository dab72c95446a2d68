package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveOp("buy", "ok")
	m.ObserveOp("buy", "ok")
	m.ObserveOp("buy", "InsufficientFunds")
	m.ObserveTrade(5, 2)
	m.SetReserve(40, 1000)
	m.SetMempoolPending(3)

	if got := testutil.ToFloat64(m.ops.WithLabelValues("buy", "ok")); got != 2 {
		t.Errorf("ok ops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ops.WithLabelValues("buy", "InsufficientFunds")); got != 1 {
		t.Errorf("failed ops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tradedQuantity); got != 5 {
		t.Errorf("traded quantity = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.commission); got != 2 {
		t.Errorf("commission = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.currentReserve); got != 40 {
		t.Errorf("reserve = %v, want 40", got)
	}
	if got := testutil.ToFloat64(m.mempoolPending); got != 3 {
		t.Errorf("pending = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOp("buy", "ok")
	m.ObserveTrade(1, 1)
	m.SetReserve(1, 1)
	m.SetMempoolPending(1)
	m.IncMempoolDropped()
	m.ObserveApply(0)
	m.SetWSClients(1)
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveTrade(1, 0)
	if got := testutil.ToFloat64(b.trades); got != 0 {
		t.Errorf("second instance saw %v trades", got)
	}
}
