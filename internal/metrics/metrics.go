// Package metrics exports pair activity as Prometheus metrics.
package metrics

import (
	"errors"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"

	"pairEngine/internal/model"
)

// Metrics is a pair.EventSink that counts events and tracks reserves.
type Metrics struct {
	mints    prometheus.Counter
	burns    prometheus.Counter
	swaps    prometheus.Counter
	syncs    prometheus.Counter
	rejected *prometheus.CounterVec
	reserves *prometheus.GaugeVec
}

func New(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		mints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pair",
			Name:      "mints_total",
			Help:      "number of successful mints",
		}),
		burns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pair",
			Name:      "burns_total",
			Help:      "number of successful burns",
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pair",
			Name:      "swaps_total",
			Help:      "number of successful swaps",
		}),
		syncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pair",
			Name:      "reserve_updates_total",
			Help:      "number of reserve resynchronizations",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pair",
			Name:      "rejected_total",
			Help:      "number of rejected operations by failure class",
		}, []string{"op", "class"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pair",
			Name:      "reserve",
			Help:      "latest reserve of each side of a pair",
		}, []string{"pair", "side"}),
	}
	err := errors.Join(
		r.Register(m.mints),
		r.Register(m.burns),
		r.Register(m.swaps),
		r.Register(m.syncs),
		r.Register(m.rejected),
		r.Register(m.reserves),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Emit(event model.Event) {
	switch e := event.(type) {
	case model.MintEvent:
		m.mints.Inc()
	case model.BurnEvent:
		m.burns.Inc()
	case model.SwapEvent:
		m.swaps.Inc()
	case model.SyncEvent:
		m.syncs.Inc()
		pair := e.Pair.Hex()
		m.reserves.WithLabelValues(pair, "a").Set(decimalToFloat(e.ReserveA))
		m.reserves.WithLabelValues(pair, "b").Set(decimalToFloat(e.ReserveB))
	}
}

// RecordRejected counts an operation that failed with the given class.
func (m *Metrics) RecordRejected(op, class string) {
	m.rejected.WithLabelValues(op, class).Inc()
}

func decimalToFloat(s string) float64 {
	v, ok := new(big.Float).SetString(s)
	if !ok {
		return 0
	}
	f, _ := v.Float64()
	return f
}
