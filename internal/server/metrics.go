package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediadrop/internal/provider"
)

const metricsNamespace = "mediadrop"

// Upload outcomes used as the "result" label.
const (
	uploadResultOK       = "ok"
	uploadResultRejected = "rejected"
	uploadResultNoFile   = "no_file"
	uploadResultError    = "error"
)

// Metrics holds the server's Prometheus collectors. Each Server owns its
// own registry so tests can build servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	uploadsTotal   *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	uploadDuration *prometheus.HistogramVec
	breakerState   prometheus.Gauge
}

// NewMetrics registers the collectors on reg, or on a fresh registry when
// reg is nil.
func NewMetrics(reg *prometheus.Registry, version string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by status class",
		}, []string{"code"}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uploads_total",
			Help:      "Upload requests by provider and outcome",
		}, []string{"provider", "result"}),

		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes successfully handed to the media provider",
		}),

		uploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upload_duration_seconds",
			Help:      "Provider upload latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),

		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "breaker_state",
			Help:      "Provider circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
	}

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "info",
		Help:        "Application version info",
		ConstLabels: prometheus.Labels{"version": version},
	}).Set(1)

	return m
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.requestsTotal.WithLabelValues(statusClass(statusCode)).Inc()
}

// RecordUpload records the outcome of one upload request.
func (m *Metrics) RecordUpload(providerName, result string, bytes int64, duration time.Duration) {
	m.uploadsTotal.WithLabelValues(providerName, result).Inc()
	if duration > 0 {
		m.uploadDuration.WithLabelValues(providerName).Observe(duration.Seconds())
	}
	if result == uploadResultOK {
		m.uploadBytes.Add(float64(bytes))
	}
}

// SetBreakerState exports the breaker state as a gauge.
func (m *Metrics) SetBreakerState(state provider.CircuitState) {
	m.breakerState.Set(float64(state))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
