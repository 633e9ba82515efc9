// Package monitoring exposes the relay's Prometheus metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements tunnel.Metrics, registered once at startup and
// scraped at GET /metrics.
type Metrics struct {
	activeTunnels      prometheus.Gauge
	requestsTotal      *prometheus.CounterVec
	requestDuration    prometheus.Histogram
	registrationsTotal prometheus.Counter
	evictionsTotal     prometheus.Counter
}

// New registers the relay's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeTunnels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_tunnels",
			Help: "Number of tunnels currently registered.",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Forwarded public requests by outcome.",
		}, []string{"outcome"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Time spent forwarding a public request end to end.",
			Buckets: prometheus.DefBuckets,
		}),
		registrationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_tunnel_registrations_total",
			Help: "Total tunnel registrations, including evicting re-registrations.",
		}),
		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_tunnel_evictions_total",
			Help: "Total tunnel removals, by any cause.",
		}),
	}
}

func (m *Metrics) TunnelRegistered() {
	m.registrationsTotal.Inc()
	m.activeTunnels.Inc()
}

func (m *Metrics) TunnelEvicted() {
	m.evictionsTotal.Inc()
	m.activeTunnels.Dec()
}

func (m *Metrics) RequestOutcome(outcome string) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RequestDuration(seconds float64) {
	m.requestDuration.Observe(seconds)
}
