package channel

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	sent       prometheus.Counter
	received   prometheus.Counter
	reconnects prometheus.Counter
	hydrations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geckode",
			Subsystem: "channel",
			Name:      name,
			Help:      help,
		})
		return register(reg, c)
	}
	return &metrics{
		sent:       counter("deltas_sent_total", "Structural deltas written to the relay, retransmissions included."),
		received:   counter("deltas_received_total", "Remote deltas that changed the local graph."),
		reconnects: counter("reconnects_total", "Transport losses followed by a redial."),
		hydrations: counter("hydrations_total", "Completed hydrations."),
	}
}

// register adds c to reg, reusing a collector that is already registered
// under the same name so several channels can share one registry.
func register(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}
