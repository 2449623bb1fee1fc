package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets reproduces the original's exact histogram boundaries
// (seconds) from http_connection.cc's MetricInit: kClientServerLatencyMetric
// and kClientRequestDurationMetric both use this set.
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10}

// connectionDurationBuckets reproduces kClientConnectionDurationMetric's
// boundaries.
var connectionDurationBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60}

// promState wraps the Prometheus collectors for the client. A nil
// promState (before Init) makes every Record* call a no-op so
// telemetry can be used without a registry in tests.
type promState struct {
	registry *prometheus.Registry

	openConnections prometheus.Gauge
	activeRequests  prometheus.Gauge
	addressErrors   *prometheus.CounterVec
	connectErrors   prometheus.Counter
	requestDuration *prometheus.HistogramVec
	connectDuration prometheus.Histogram
}

var prom *promState

// InitPrometheus registers the client's collectors under namespace and
// returns an http.Handler serving /metrics. Safe to call at most once;
// callers that don't need a Prometheus endpoint may skip calling it
// entirely (Record* calls degrade to no-ops for that backend, the
// in-process Metrics counters are unaffected).
func InitPrometheus(namespace string) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	p := &promState{
		registry: registry,
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_client_open_connections",
			Help:      "Number of Ready HTTP/2 connections across all pools",
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_client_active_requests",
			Help:      "Number of requests currently in flight",
		}),
		addressErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_client_address_errors_total",
			Help:      "Total URIs rejected by ParseURI",
		}, []string{"uri"}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_client_connect_errors_total",
			Help:      "Total connection-level errors observed by OnConnectionError",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "Request duration in seconds, labeled by server address and status code",
			Buckets:   latencyBuckets,
		}, []string{"server_address", "http_response_status_code"}),
		connectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_connection_duration_seconds",
			Help:      "Time to establish an HTTP/2 connection",
			Buckets:   connectionDurationBuckets,
		}),
	}

	registry.MustRegister(
		p.openConnections, p.activeRequests, p.addressErrors,
		p.connectErrors, p.requestDuration, p.connectDuration,
	)

	prom = p
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func prometheusOpenConnections(delta float64) {
	if prom == nil {
		return
	}
	prom.openConnections.Add(delta)
}

func prometheusActiveRequests(delta float64) {
	if prom == nil {
		return
	}
	prom.activeRequests.Add(delta)
}

func prometheusAddressErrors(uri string) {
	if prom == nil {
		return
	}
	prom.addressErrors.WithLabelValues(uri).Inc()
}

func prometheusConnectErrors() {
	if prom == nil {
		return
	}
	prom.connectErrors.Inc()
}

func prometheusRequestDuration(serverAddress string, statusCode int, durationMs int64) {
	if prom == nil {
		return
	}
	prom.requestDuration.WithLabelValues(serverAddress, statusCodeLabel(statusCode)).Observe(float64(durationMs) / 1000)
}

// RecordConnectionEstablished records how long it took to dial and
// initialize an HTTP/2 connection.
func RecordConnectionEstablished(durationMs int64) {
	if prom == nil {
		return
	}
	prom.connectDuration.Observe(float64(durationMs) / 1000)
}

func statusCodeLabel(code int) string {
	if code == 0 {
		return "unknown"
	}
	return strconv.Itoa(code)
}
