package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type QueryServiceMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal           *prometheus.CounterVec
	queryDuration        *prometheus.HistogramVec
	queryConfidence      *prometheus.HistogramVec
	retrievalSourceTotal *prometheus.CounterVec
	fusionBundleSize     *prometheus.HistogramVec
	classifierFallback   *prometheus.CounterVec
	degradedContextTotal *prometheus.CounterVec
	resultCacheTotal     *prometheus.CounterVec
}

func NewQueryServiceMetrics(service string) *QueryServiceMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kfe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kfe",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total completed queries by type and status.",
		},
		[]string{"service", "query_type", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kfe",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query processing duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	queryConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kfe",
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Distribution of response confidence.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		},
		[]string{"service"},
	)
	retrievalSourceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "retrieval",
			Name:      "source_total",
			Help:      "Retrieved source attributions by domain and backend.",
		},
		[]string{"service", "domain", "backend"},
	)
	fusionBundleSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kfe",
			Subsystem: "fusion",
			Name:      "source_attributions",
			Help:      "Distribution of attributed sources per response.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	classifierFallback := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "classifier",
			Name:      "fallback_total",
			Help:      "Total queries classified by the rule-based fallback.",
		},
		[]string{"service"},
	)
	degradedContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "context",
			Name:      "degraded_total",
			Help:      "Total queries answered without personalization.",
		},
		[]string{"service"},
	)
	resultCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kfe",
			Subsystem: "cache",
			Name:      "result_total",
			Help:      "Result cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		queryConfidence,
		retrievalSourceTotal,
		fusionBundleSize,
		classifierFallback,
		degradedContextTotal,
		resultCacheTotal,
	)

	return &QueryServiceMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		queryTotal:           queryTotal,
		queryDuration:        queryDuration,
		queryConfidence:      queryConfidence,
		retrievalSourceTotal: retrievalSourceTotal,
		fusionBundleSize:     fusionBundleSize,
		classifierFallback:   classifierFallback,
		degradedContextTotal: degradedContextTotal,
		resultCacheTotal:     resultCacheTotal,
	}
}

func (m *QueryServiceMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *QueryServiceMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps the path label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case path == "/healthz" || path == "/metrics":
		return path
	case strings.HasPrefix(path, "/v1/query"):
		return "/v1/query"
	case strings.HasPrefix(path, "/v1/domains"):
		return "/v1/domains"
	default:
		return "other"
	}
}

func (m *QueryServiceMetrics) RecordQuery(service, queryType, status string, duration time.Duration) {
	if queryType == "" {
		queryType = "unknown"
	}
	m.queryTotal.WithLabelValues(service, queryType, status).Inc()
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *QueryServiceMetrics) RecordConfidence(service string, confidence float64) {
	m.queryConfidence.WithLabelValues(service).Observe(confidence)
}

func (m *QueryServiceMetrics) RecordSource(service, domain, backend string) {
	m.retrievalSourceTotal.WithLabelValues(service, domain, backend).Inc()
}

func (m *QueryServiceMetrics) RecordSourceAttributions(service string, count int) {
	m.fusionBundleSize.WithLabelValues(service).Observe(float64(count))
}

func (m *QueryServiceMetrics) RecordClassifierFallback(service string) {
	m.classifierFallback.WithLabelValues(service).Inc()
}

func (m *QueryServiceMetrics) RecordDegradedContext(service string) {
	m.degradedContextTotal.WithLabelValues(service).Inc()
}

func (m *QueryServiceMetrics) RecordResultCache(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.resultCacheTotal.WithLabelValues(service, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
