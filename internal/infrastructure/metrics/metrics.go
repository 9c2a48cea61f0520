package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors updated by the connection listener
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	rejectedTotal   prometheus.Counter
	readErrorsTotal prometheus.Counter
}

// New creates a registry with the server collectors registered
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rootserve_requests_total",
				Help: "Total number of answered requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rootserve_request_duration_seconds",
				Help:    "Time from reading a request to sending its response",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rootserve_connections_in_flight",
			Help: "Connections currently being served",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rootserve_connections_rejected_total",
			Help: "Connections dropped by the rate limiter",
		}),
		readErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rootserve_read_errors_total",
			Help: "Connections closed because the request could not be read",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.inFlight,
		m.rejectedTotal,
		m.readErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

var knownMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"CONNECT": true,
	"OPTIONS": true,
	"TRACE":   true,
	"PATCH":   true,
}

// methodLabel keeps the method label bounded: the method comes straight
// from the client.
func methodLabel(method string) string {
	switch {
	case method == "":
		return "none"
	case knownMethods[method]:
		return method
	default:
		return "other"
	}
}

// ObserveRequest records one answered request
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(methodLabel(method), code).Inc()
	m.requestDuration.WithLabelValues(code).Observe(duration.Seconds())
}

// ConnectionOpened increments the in-flight gauge
func (m *Metrics) ConnectionOpened() {
	m.inFlight.Inc()
}

// ConnectionClosed decrements the in-flight gauge
func (m *Metrics) ConnectionClosed() {
	m.inFlight.Dec()
}

// ConnectionRejected counts a rate-limited connection
func (m *Metrics) ConnectionRejected() {
	m.rejectedTotal.Inc()
}

// ReadFailed counts a connection whose request could not be read
func (m *Metrics) ReadFailed() {
	m.readErrorsTotal.Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
