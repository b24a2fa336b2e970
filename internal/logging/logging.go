// Package logging centralizes logger construction and small helpers used
// across request handling and data loading.
package logging

import (
	"io"
	"log/slog"
)

// NewStructuredLogger returns a JSON slog logger writing to w at the
// given level.
func NewStructuredLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ForComponent tags the default logger with a component attribute.
func ForComponent(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}

// LogError logs an error with optional key/value attributes and returns
// the same error so call sites can log and propagate in one statement.
func LogError(logger *slog.Logger, msg string, err error, args ...any) error {
	if logger != nil && err != nil {
		logger.Error(msg, append([]any{slog.Any("error", err)}, args...)...)
	}
	return err
}

// SafeCloseWithLogging closes c and logs a failure instead of dropping
// it. Meant for defers on response bodies and files.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && logger != nil {
		logger.Warn("close failed", slog.String("resource", name), slog.Any("error", err))
	}
}
