package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "graphline"

// Metrics holds the server's Prometheus instruments. It implements
// session.Metrics so sessions can report without knowing about
// Prometheus.
//
// Thread-safety: all operations are safe for concurrent use via
// Prometheus's internal locking.
type Metrics struct {
	registry *prometheus.Registry

	// SessionsActive tracks currently open client conversations.
	SessionsActive prometheus.Gauge

	// SessionsTotal counts conversations since process start.
	SessionsTotal prometheus.Counter

	// CommandsTotal counts handled commands by verb.
	CommandsTotal *prometheus.CounterVec

	// CommandErrorsTotal counts refused or unparseable commands by verb.
	CommandErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the server instruments on a fresh
// registry, so repeated construction in tests never collides.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of currently open client sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Total client sessions since start",
		}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Total commands handled by verb",
		}, []string{"verb"}),
		CommandErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_errors_total",
			Help:      "Total refused or unparseable commands by verb",
		}, []string{"verb"}),
	}
}

// SessionOpened implements session.Metrics.
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

// SessionClosed implements session.Metrics.
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// CommandObserved implements session.Metrics.
func (m *Metrics) CommandObserved(verb string, failed bool) {
	m.CommandsTotal.WithLabelValues(verb).Inc()
	if failed {
		m.CommandErrorsTotal.WithLabelValues(verb).Inc()
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
