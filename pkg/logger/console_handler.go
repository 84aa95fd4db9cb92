package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiDim    = "\033[2m"
)

// ConsoleHandler renders records as single colored lines for terminals:
// errors red, warnings yellow, debug dimmed, attribute keys cyan.
type ConsoleHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

// NewConsoleHandler creates a console handler writing to w.
func NewConsoleHandler(w io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{w: w, level: level}
}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	var color string
	switch {
	case r.Level >= slog.LevelError:
		color = ansiRed
	case r.Level >= slog.LevelWarn:
		color = ansiYellow
	case r.Level < slog.LevelInfo:
		color = ansiDim
	}

	var buf strings.Builder
	buf.WriteString(ansiDim)
	buf.WriteString(r.Time.Format("15:04:05.000"))
	buf.WriteString(ansiReset)
	buf.WriteString(" ")
	buf.WriteString(color)
	buf.WriteString(fmt.Sprintf("%-5s", r.Level.String()))
	buf.WriteString(" ")
	buf.WriteString(r.Message)
	if color != "" {
		buf.WriteString(ansiReset)
	}

	writeAttr := func(key string, value slog.Value) {
		buf.WriteString(" ")
		buf.WriteString(ansiCyan)
		buf.WriteString(key)
		buf.WriteString(ansiReset)
		buf.WriteString("=")
		buf.WriteString(value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		writeAttr(key, a.Value)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		merged = append(merged, a)
	}
	return &ConsoleHandler{w: h.w, level: h.level, attrs: merged, group: h.group}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &ConsoleHandler{w: h.w, level: h.level, attrs: h.attrs, group: group}
}
