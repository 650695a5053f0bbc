package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Recorder on a Prometheus counter vector so
// console deployments can scrape auth and client events.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

// NewPrometheusMetrics constructs a recorder with its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizadmin",
		Name:      "events_total",
		Help:      "Count of client, session, and console events by name.",
	}, []string{"event"})
	registry.MustRegister(events)
	return &PrometheusMetrics{
		registry: registry,
		events:   events,
	}
}

// Increment increases the counter for the given event.
func (recorder *PrometheusMetrics) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func (recorder *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{})
}
