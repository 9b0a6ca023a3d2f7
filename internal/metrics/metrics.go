// Package metrics exposes Prometheus collectors for the auth lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records auth state transitions, guard decisions and identity
// provider session fetches.
type Collector struct {
	transitions    *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	sessionFetch   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_auth_transitions_total",
			Help: "Auth state transitions by source and target status.",
		}, []string{"from", "to"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_guard_decisions_total",
			Help: "Route guard outcomes for protected requests.",
		}, []string{"decision"}),
		sessionFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_idp_session_fetch_seconds",
			Help:    "Identity provider session fetch latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.transitions, c.guardDecisions, c.sessionFetch)

	return c
}

// RecordTransition counts one status change.
func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordGuardDecision counts one guard outcome.
func (c *Collector) RecordGuardDecision(decision string) {
	c.guardDecisions.WithLabelValues(decision).Inc()
}

// ObserveSessionFetch records the latency of one session fetch.
func (c *Collector) ObserveSessionFetch(outcome string, d time.Duration) {
	c.sessionFetch.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
