// Package metrics exposes Prometheus counters for the widget traversal
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted prometheus.Counter
	Interactions    *prometheus.CounterVec
	Completions     prometheus.Counter
	EmailsSent      *prometheus.CounterVec
	EmailsFailed    *prometheus.CounterVec
}

// New registers the service collectors on a private registry so tests can
// create metrics without double-registration panics.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatflow_sessions_started_total",
		Help: "Widget sessions started.",
	})
	m.Interactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatflow_interactions_total",
		Help: "Visitor answers processed, by node type.",
	}, []string{"node_type"})
	m.Completions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatflow_completions_total",
		Help: "Conversations that reached a terminal node.",
	})
	m.EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatflow_emails_sent_total",
		Help: "Notification emails delivered, by kind.",
	}, []string{"kind"})
	m.EmailsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatflow_emails_failed_total",
		Help: "Notification emails that failed to send, by kind.",
	}, []string{"kind"})

	m.registry.MustRegister(
		m.SessionsStarted, m.Interactions, m.Completions,
		m.EmailsSent, m.EmailsFailed,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
