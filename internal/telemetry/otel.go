package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelState wraps the OpenTelemetry instruments mirrored from the
// Prometheus collectors, matching the original's dual Prometheus+OTel
// telemetry split (cc/core/telemetry): every measurement recorded here
// is also recorded on the Prometheus side via the Record* functions
// above, so neither exporter silently falls behind the other.
type otelState struct {
	requestDuration metric.Float64Histogram
	connectDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
}

var otelTelemetry *otelState

// InitOTel creates the OpenTelemetry instruments for this client on
// the given meter (typically obtained from
// internal/metricrouter.Router.GetOrCreateMeter).
func InitOTel(meter metric.Meter) error {
	requestDuration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of outbound PBS requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	connectDuration, err := meter.Float64Histogram(
		"http.client.connection.duration",
		metric.WithDescription("Time to establish an HTTP/2 connection in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	requestCounter, err := meter.Int64Counter(
		"http.client.requests",
		metric.WithDescription("Total outbound PBS requests, labeled by outcome"),
	)
	if err != nil {
		return err
	}

	otelTelemetry = &otelState{
		requestDuration: requestDuration,
		connectDuration: connectDuration,
		requestCounter:  requestCounter,
	}
	return nil
}

// RecordOTelRequest records a completed request's duration and outcome
// on the OTel instruments, if InitOTel has been called.
func RecordOTelRequest(ctx context.Context, durationMs int64, succeeded bool, attrs ...metric.RecordOption) {
	if otelTelemetry == nil {
		return
	}
	otelTelemetry.requestDuration.Record(ctx, float64(durationMs)/1000, attrs...)

	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	otelTelemetry.requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordOTelConnectionEstablished records connection-setup latency on
// the OTel instrument, if InitOTel has been called.
func RecordOTelConnectionEstablished(ctx context.Context, durationMs int64) {
	if otelTelemetry == nil {
		return
	}
	otelTelemetry.connectDuration.Record(ctx, float64(durationMs)/1000)
}
