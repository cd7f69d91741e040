package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	interactionTotal    *prometheus.CounterVec
	interactionDuration *prometheus.HistogramVec
	interactionInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	interactionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "worker",
			Name:      "interactions_total",
			Help:      "Total interaction records processed by status.",
		},
		[]string{"service", "status"},
	)
	interactionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kfe",
			Subsystem: "worker",
			Name:      "interaction_duration_seconds",
			Help:      "Interaction persistence duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	interactionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kfe",
			Subsystem: "worker",
			Name:      "in_flight_interactions",
			Help:      "Number of interaction records being persisted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	registry.MustRegister(
		interactionTotal,
		interactionDuration,
		interactionInFlight,
	)

	return &WorkerMetrics{
		registry:            registry,
		interactionTotal:    interactionTotal,
		interactionDuration: interactionDuration,
		interactionInFlight: interactionInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) ObserveInteraction(service string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.interactionTotal.WithLabelValues(service, status).Inc()
	m.interactionDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *WorkerMetrics) InteractionStarted()  { m.interactionInFlight.Inc() }
func (m *WorkerMetrics) InteractionFinished() { m.interactionInFlight.Dec() }
