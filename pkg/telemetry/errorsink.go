package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"runtime"

	"github.com/soundprediction/graphmem/pkg/utils"
)

// ErrorSink is a slog.Handler that mirrors error records into a local
// DuckDB table for later inspection, while delegating all records to
// the wrapped handler.
type ErrorSink struct {
	next slog.Handler
	db   *sql.DB
}

// NewErrorSink wraps next with a DuckDB error mirror.
func NewErrorSink(next slog.Handler, db *sql.DB) (*ErrorSink, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS error_log (
			id VARCHAR,
			timestamp TIMESTAMP,
			message VARCHAR,
			source_file VARCHAR,
			line_number INTEGER,
			attributes JSON
		)`)
	if err != nil {
		return nil, err
	}
	return &ErrorSink{next: next, db: db}, nil
}

func (h *ErrorSink) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ErrorSink) Handle(ctx context.Context, r slog.Record) error {
	err := h.next.Handle(ctx, r)
	if r.Level < slog.LevelError {
		return err
	}

	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	attrsJSON, _ := json.Marshal(attrs)

	frames := runtime.CallersFrames([]uintptr{r.PC})
	frame, _ := frames.Next()

	// Best effort; a failed mirror never fails the log call.
	_, _ = h.db.Exec(`
		INSERT INTO error_log (id, timestamp, message, source_file, line_number, attributes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		utils.GenerateUUID(), r.Time.UTC(), r.Message,
		frame.File, frame.Line, string(attrsJSON))
	return err
}

func (h *ErrorSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrorSink{next: h.next.WithAttrs(attrs), db: h.db}
}

func (h *ErrorSink) WithGroup(name string) slog.Handler {
	return &ErrorSink{next: h.next.WithGroup(name), db: h.db}
}
