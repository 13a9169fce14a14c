package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered per Runtime so tests can use a private registry
type Metrics struct {
	instructions *prometheus.CounterVec
	rollbacks    prometheus.Counter
	slot         prometheus.Gauge
	slotTxs      prometheus.Histogram
	mempool      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		instructions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "decefi",
				Subsystem: "ledger",
				Name:      "instructions_total",
				Help:      "Executed instructions by variant and result",
			},
			[]string{"variant", "result"},
		),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "decefi",
			Subsystem: "ledger",
			Name:      "rollbacks_total",
			Help:      "Instructions whose account writes were discarded",
		}),
		slot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "decefi",
			Subsystem: "ledger",
			Name:      "slot",
			Help:      "Last committed slot",
		}),
		slotTxs: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "decefi",
			Subsystem: "ledger",
			Name:      "slot_transactions",
			Help:      "Transactions executed per slot",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		mempool: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "decefi",
			Subsystem: "ledger",
			Name:      "mempool_pending",
			Help:      "Transactions waiting for a slot",
		}),
	}
}

// observe records one execution. result is "ok" or the described error name.
func (m *Metrics) observe(variant, result string, rolledBack bool) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(variant, result).Inc()
	if rolledBack {
		m.rollbacks.Inc()
	}
}

func (m *Metrics) observeSlot(slot uint64, txs, pending int) {
	if m == nil {
		return
	}
	m.slot.Set(float64(slot))
	m.slotTxs.Observe(float64(txs))
	m.mempool.Set(float64(pending))
}

func (m *Metrics) observePending(pending int) {
	if m == nil {
		return
	}
	m.mempool.Set(float64(pending))
}
