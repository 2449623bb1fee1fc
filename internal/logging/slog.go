package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       logLevel,
		ReplaceAttr: redactSecretAttr,
	})
	logger := slog.New(handler)
	opLogger.Store(logger)
}

// secretAttrKeys are the structured-log field names that must never
// carry a raw Command.TransactionSecret (or transport credential)
// value to stderr, regardless of handler format.
var secretAttrKeys = map[string]bool{
	"transaction_secret": true,
	"secret":             true,
	"authorization":      true,
}

// redactSecretAttr is installed as every operational handler's
// ReplaceAttr so a TransactionSecret passed into a log call by
// mistake (e.g. logging a Command's fields wholesale) is masked
// instead of reaching the log sink in the clear.
func redactSecretAttr(groups []string, a slog.Attr) slog.Attr {
	if secretAttrKeys[a.Key] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// Op returns the operational logger used by the client runtime: connection
// pool lifecycle, transaction phase transitions, and retry decisions.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLevel changes the log level for the operational logger.
// Valid levels: slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLevelFromString sets the log level from a string.
// Valid values: "debug", "info", "warn", "error"
func SetLevelFromString(level string) {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	}
}
