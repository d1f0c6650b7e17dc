package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a logger with the specified level and format. Components
// receive it explicitly; nothing is stored globally.
func New(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with the component name attached
func WithComponent(log *slog.Logger, name string) *slog.Logger {
	return log.With("component", name)
}

// Discard is a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ExternalServiceResult logs the outcome of a call to a third party.
// Failures are logged at warn since callers treat these services as best effort.
func ExternalServiceResult(log *slog.Logger, service, operation string, err error) {
	if err != nil {
		log.Warn("External service call failed", "service", service, "operation", operation, "error", err)
		return
	}
	log.Debug("External service call completed", "service", service, "operation", operation)
}
