package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rooms   prometheus.Gauge
	members prometheus.Gauge
	applied prometheus.Counter
	refused *prometheus.CounterVec
}

// newMetrics registers the relay collectors on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "geckode_relay_rooms",
			Help: "Channels currently loaded in memory",
		}),
		members: f.NewGauge(prometheus.GaugeOpts{
			Name: "geckode_relay_members",
			Help: "Connected members across all channels",
		}),
		applied: f.NewCounter(prometheus.CounterOpts{
			Name: "geckode_relay_deltas_applied_total",
			Help: "Deltas that changed a channel's authoritative state",
		}),
		refused: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geckode_relay_refused_total",
			Help: "Requests answered with an error frame",
		}, []string{"code"}),
	}
}
