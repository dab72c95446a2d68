// Package metrics exposes Prometheus collectors for the ledger node.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hypermarket"

// Metrics holds the node's collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ops            *prometheus.CounterVec
	trades         prometheus.Counter
	tradedQuantity prometheus.Counter
	commission     prometheus.Counter
	currentReserve prometheus.Gauge
	reserveCap     prometheus.Gauge
	mempoolPending prometheus.Gauge
	mempoolDropped prometheus.Counter
	applyLatency   prometheus.Histogram
	wsClients      prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and result (ok or error kind).",
		}, []string{"op", "result"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_total",
			Help:      "Successful buys.",
		}),
		tradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "traded_quantity_total",
			Help:      "Goods units transferred by buys.",
		}),
		commission: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commission_total",
			Help:      "Settlement currency paid to the owner as commission.",
		}),
		currentReserve: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "current_reserve",
			Help:      "Total goods units currently listed.",
		}),
		reserveCap: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reserve_cap",
			Help:      "Ceiling on total listed goods units.",
		}),
		mempoolPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "pending",
			Help:      "Transactions waiting to be applied.",
		}),
		mempoolDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "dropped_total",
			Help:      "Transactions rejected because the mempool was full.",
		}),
		applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "apply_batch_seconds",
			Help:      "Time spent applying one mempool batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}
	m.registry.MustRegister(
		m.ops,
		m.trades,
		m.tradedQuantity,
		m.commission,
		m.currentReserve,
		m.reserveCap,
		m.mempoolPending,
		m.mempoolDropped,
		m.applyLatency,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOp counts one operation. result is "ok" or an error kind.
func (m *Metrics) ObserveOp(op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
}

// ObserveTrade records a successful buy
func (m *Metrics) ObserveTrade(quantity, commission uint64) {
	if m == nil {
		return
	}
	m.trades.Inc()
	m.tradedQuantity.Add(float64(quantity))
	m.commission.Add(float64(commission))
}

// SetReserve publishes the reserve level and cap
func (m *Metrics) SetReserve(current, limit uint64) {
	if m == nil {
		return
	}
	m.currentReserve.Set(float64(current))
	m.reserveCap.Set(float64(limit))
}

func (m *Metrics) SetMempoolPending(n int) {
	if m == nil {
		return
	}
	m.mempoolPending.Set(float64(n))
}

func (m *Metrics) IncMempoolDropped() {
	if m == nil {
		return
	}
	m.mempoolDropped.Inc()
}

// ObserveApply records the duration of one batch
func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.applyLatency.Observe(d.Seconds())
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
