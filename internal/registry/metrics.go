package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the live-count gauges tracked alongside the registry's maps.
// Incremented/decremented at the same call sites as the map mutations they
// mirror, generalized from the teacher's middleware.Prometheus gauge set.
type metrics struct {
	sessions prometheus.Gauge
	users    prometheus.Gauge
	rooms    prometheus.Gauge
	dangling prometheus.Gauge
	reaped   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rhythmmp",
			Subsystem: "registry",
			Name:      "sessions",
			Help:      "Number of sessions currently tracked by the registry.",
		}),
		users: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rhythmmp",
			Subsystem: "registry",
			Name:      "users",
			Help:      "Number of users currently tracked by the registry.",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rhythmmp",
			Subsystem: "registry",
			Name:      "rooms",
			Help:      "Number of rooms currently tracked by the registry.",
		}),
		dangling: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rhythmmp",
			Subsystem: "registry",
			Name:      "dangling_users",
			Help:      "Number of users currently in a disconnect grace window.",
		}),
		reaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rhythmmp",
			Subsystem: "registry",
			Name:      "sessions_reaped_total",
			Help:      "Total number of sessions removed by the lost-connection reaper.",
		}),
	}
}
