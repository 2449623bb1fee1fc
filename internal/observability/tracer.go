package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
	"github.com/privacysandbox/pbs-client-go/internal/uuid"
)

// StartSpan creates a new internal span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan creates a new client span for an outbound request to a
// PBS endpoint.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartRequestSpan starts the client span for one outbound HTTP/2
// request dispatched through Connection.sendRequest, tagged with the
// AsyncContext identifiers that correlate it with the activity's other
// retries and with its parent transaction phase call.
func StartRequestSpan(ctx context.Context, endpoint string, activityID, correlationID uuid.UUID, retryCount uint64) (context.Context, trace.Span) {
	return StartClientSpan(ctx, "pbs.http.request",
		AttrActivityID.String(activityID.String()),
		AttrCorrelationID.String(correlationID.String()),
		AttrEndpoint.String(endpoint),
		AttrRetryCount.Int64(int64(retryCount)),
	)
}

// FinishRequestSpan records a dispatched request's outcome and
// duration on span and ends it. result is the ExecutionResult the
// connection computed for the request; a non-successful result is
// recorded as a span error carrying the client's own error taxonomy
// message rather than a raw transport error.
func FinishRequestSpan(span trace.Span, durationMs int64, result asynccontext.ExecutionResult) {
	span.SetAttributes(AttrDurationMs.Int64(durationMs))
	if result.Successful() {
		SetSpanOK(span)
	} else {
		SetSpanError(span, errors.New(result.Error()))
	}
	span.End()
}

// SpanFromContext returns the current span from context
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Common attribute keys for PBS client spans and logs, correlating a
// span or log line back to the AsyncContext/ConsumeBudgetCommand that
// produced it.
var (
	AttrActivityID    = attribute.Key("pbs.activity_id")
	AttrCorrelationID = attribute.Key("pbs.correlation_id")
	AttrTransactionID = attribute.Key("pbs.transaction_id")
	AttrEndpoint      = attribute.Key("pbs.endpoint")
	AttrPhase         = attribute.Key("pbs.phase")
	AttrRetryCount    = attribute.Key("pbs.retry_count")
	AttrDurationMs    = attribute.Key("pbs.duration_ms")
	AttrEndpointCount = attribute.Key("pbs.endpoint_count")
	AttrAuthProvider  = attribute.Key("pbs.auth_provider")
)
