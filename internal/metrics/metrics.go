package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "card_console"

// Metrics holds the console's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestAttempts *prometheus.CounterVec
	requestRetries  *prometheus.CounterVec
	requestFailures *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionEvents   *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_attempts_total",
			Help:      "Outbound request attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		requestRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Outbound request retries by method.",
		}, []string{"method"}),
		requestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Terminal request failures by classification.",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall time of a request including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Identity session transitions (login, refresh, logout, forced_logout, expired).",
		}, []string{"event"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard outcomes.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.requestAttempts,
		m.requestRetries,
		m.requestFailures,
		m.requestDuration,
		m.sessionEvents,
		m.guardDecisions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.requestAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveRetry(method string) {
	if m == nil {
		return
	}
	m.requestRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.requestFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDuration(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) GuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}
