package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter this node exposes on /metrics. Every field
// is safe for concurrent use — the underlying prometheus collectors do
// their own locking, so Metrics itself needs none.
type Metrics struct {
	reg *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	peerCallsTotal  *prometheus.CounterVec
	keysStoredTotal prometheus.Counter
}

// NewMetrics registers this node's counters against a fresh registry. A
// registry scoped per node (rather than the global DefaultRegisterer)
// keeps multiple nodes running in the same test process from colliding
// on duplicate metric registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meshkv_http_requests_total",
			Help: "Count of HTTP requests served by this node, by route and status class.",
		}, []string{"route", "status"}),
		peerCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meshkv_peer_calls_total",
			Help: "Count of outbound calls this node made to other peers, by route.",
		}, []string{"route"}),
		keysStoredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshkv_keys_stored_total",
			Help: "Count of keys written to the local store across all writes.",
		}),
	}
}

func (m *Metrics) observeRequest(route, statusClass string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, statusClass).Inc()
}

func (m *Metrics) observePeerCall(route string) {
	if m == nil {
		return
	}
	m.peerCallsTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) observeKeysStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keysStoredTotal.Add(float64(n))
}

// Handler returns the http.Handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
