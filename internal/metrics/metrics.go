// Package metrics exposes Prometheus metrics for backend calls, the live
// feed and the control API.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finder"

// Metrics holds all application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendInFlight prometheus.Gauge

	// FramesReceived counts live feed frames consumed.
	FramesReceived prometheus.Counter
	// FramesSkipped counts frames dropped by the frame-rate cap.
	FramesSkipped prometheus.Counter
	// EventClients tracks connected session event subscribers.
	EventClients prometheus.Gauge
	// Transitions counts session transitions by name and outcome.
	Transitions *prometheus.CounterVec
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests sent to the detection backend.",
		}, []string{"code", "method"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Detection backend request latency until response headers.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method"}),
		backendInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_in_flight",
			Help:      "Detection backend requests currently in flight.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_received_total",
			Help:      "Live feed frames received.",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_skipped_total",
			Help:      "Live feed frames skipped by the frame-rate cap.",
		}),
		EventClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "event_clients",
			Help:      "Connected session event subscribers.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session transitions by name and outcome.",
		}, []string{"transition", "outcome"}),
	}

	m.registry.MustRegister(
		m.backendRequests,
		m.backendDuration,
		m.backendInFlight,
		m.FramesReceived,
		m.FramesSkipped,
		m.EventClients,
		m.Transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// InstrumentTransport wraps next (http.DefaultTransport when nil) so every
// backend request is counted and timed.
func (m *Metrics) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(m.backendInFlight,
		promhttp.InstrumentRoundTripperCounter(m.backendRequests,
			promhttp.InstrumentRoundTripperDuration(m.backendDuration, next),
		),
	)
}

// ObserveTransition records the outcome of a session transition. A nil
// error is "ok"; anything else is "rejected".
func (m *Metrics) ObserveTransition(name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.Transitions.WithLabelValues(strings.ToLower(name), outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
