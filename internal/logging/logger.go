// Package logging wraps slog with siftkit field names.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with siftkit-specific context.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, a text handler on stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// New builds a Logger from config-style strings. Unknown levels fall back
// to info, unknown formats to text.
func New(level, format string) *Logger {
	lvl := ParseLevel(level)
	if strings.EqualFold(format, "json") {
		return NewJSONLogger(lvl)
	}
	return NewTextLogger(lvl)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// WithBackend adds the detection backend name.
func (l *Logger) WithBackend(name string) *Logger {
	return &Logger{Logger: l.Logger.With("backend", name)}
}

// WithImage adds an image identifier (path or URL).
func (l *Logger) WithImage(name string) *Logger {
	return &Logger{Logger: l.Logger.With("image", name)}
}

// LogDetect logs a detection call.
func (l *Logger) LogDetect(ctx context.Context, backend string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "detect failed", "backend", backend, "error", err)
		return
	}
	l.DebugContext(ctx, "detect completed", "backend", backend, "keypoints", count)
}

// LogDescribe logs a describe call. inPlace is true when existing keypoints were described.
func (l *Logger) LogDescribe(ctx context.Context, backend string, count int, inPlace bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "describe failed", "backend", backend, "in_place", inPlace, "error", err)
		return
	}
	l.DebugContext(ctx, "describe completed", "backend", backend, "keypoints", count, "in_place", inPlace)
}

// LogCoerce logs a collection coercion.
func (l *Logger) LogCoerce(ctx context.Context, from string, count int, reused bool) {
	l.DebugContext(ctx, "coerce", "from", from, "count", count, "reused", reused)
}

// LogMismatch logs a field that differs between two compared records.
func (l *Logger) LogMismatch(ctx context.Context, field string, a, b any) {
	l.DebugContext(ctx, "field mismatch", "field", field, "left", a, "right", b)
}

// LogStore logs a persistence operation.
func (l *Logger) LogStore(ctx context.Context, op, name string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed", "name", name, "error", err)
		return
	}
	l.InfoContext(ctx, op+" completed", "name", name, "keypoints", count)
}
