// Package logger builds slog loggers for the service: plain text, JSON
// for log shippers, or a colored console handler for interactive use.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a logger in the given format ("text", "json" or "color")
// at the given level name. Unknown formats fall back to text.
func New(format, level string) *slog.Logger {
	return NewWithWriter(os.Stderr, format, level)
}

// NewWithWriter is New with an explicit output writer.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "color":
		return slog.New(NewConsoleHandler(w, lvl))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
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
