// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - format override (text/json) from configuration
// - level selection (debug/info/warn/error)
// - source file:line info at debug level, with shortened paths
//
// Diagnostics go to stderr so stdout stays clean for model output.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ContextKey is a distinct type for context values so raw strings cannot
// collide with our keys.
type ContextKey string

// TraceIDKey carries the negotiation trace ID through a request's context.
const TraceIDKey ContextKey = "log_trace_id"

// WithTraceID returns a context carrying the trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context, or "" when absent.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the logger annotated with the context's trace ID,
// or the logger unchanged when the context carries none.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		return logger.With("trace_id", traceID)
	}
	return logger
}

// New creates a new configured logger.
// Format is determined by:
// 1. the format argument (text/json)
// 2. TTY detection when format is empty (text for TTY, JSON otherwise)
func New(level, format string) *slog.Logger {
	var handler slog.Handler
	useText := format == "text" || (format == "" && isatty(os.Stderr))

	lvl := parseLogLevel(level)

	// Get working directory for relative path calculation
	wd, _ := os.Getwd()

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten source paths to be relative
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					if rel, err := filepath.Rel(wd, src.File); err == nil {
						src.File = rel
					} else {
						src.File = filepath.Base(src.File)
					}
				}
			}
			return a
		},
	}

	if useText {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// SetDefault creates a new logger and sets it as the default slog logger.
// Returns the created logger for additional use.
func SetDefault(level, format string) *slog.Logger {
	logger := New(level, format)
	slog.SetDefault(logger)
	return logger
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
