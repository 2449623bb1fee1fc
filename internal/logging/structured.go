package logging

import (
	"log/slog"
	"os"
)

// InitStructured reconfigures the operational logger based on format settings.
// format: "text" (default) or "json" (Loki/ELK compatible)
// level: "debug", "info", "warn", "error"
func InitStructured(format, level string) {
	SetLevelFromString(level)

	opts := &slog.HandlerOptions{
		Level:       logLevel,
		ReplaceAttr: redactSecretAttr,
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	opLogger.Store(logger)
}

// OpWithTrace returns the operational logger with trace context fields.
// traceID and spanID are injected as attributes when available.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}

// TransactionFields builds the structured-log attributes that tie a
// log line back to the AsyncContext/ConsumeBudgetCommand that produced
// it: the transaction, the activity attempting it, the correlation id
// shared across that activity's retries, and the phase in flight.
// transactionSecret is deliberately not a parameter here: callers that
// have a Command in scope must not pass its secret into logging at all.
func TransactionFields(transactionID, activityID, correlationID, phase string) []any {
	fields := []any{"transaction_id", transactionID}
	if activityID != "" {
		fields = append(fields, "activity_id", activityID)
	}
	if correlationID != "" {
		fields = append(fields, "correlation_id", correlationID)
	}
	if phase != "" {
		fields = append(fields, "phase", phase)
	}
	return fields
}

// OpForTransaction returns the operational logger pre-populated with
// TransactionFields, for use anywhere a Command drives a phase against
// an endpoint (transaction.Command, httpclient.Connection).
func OpForTransaction(transactionID, activityID, correlationID, phase string) *slog.Logger {
	return Op().With(TransactionFields(transactionID, activityID, correlationID, phase)...)
}
