// Package logging provides the shared slog setup for go-passkey servers.
package logging

import (
	"log/slog"
	"os"
)

// NewLogger creates a text-handler logger writing to stderr. Debug enables
// debug-level output.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// DefaultLogger returns a logger with debug disabled.
func DefaultLogger() *slog.Logger {
	return NewLogger(false)
}
