package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewWithWriterFormats(t *testing.T) {
	var buf bytes.Buffer

	NewWithWriter(&buf, "json", "info").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewWithWriter(&buf, "text", "info").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestConsoleHandlerColorsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "color", "debug")

	log.Error("boom", "cause", "disk")
	out := buf.String()
	assert.Contains(t, out, ansiRed)
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "cause")
	assert.Contains(t, out, "disk")

	buf.Reset()
	log.With("group_id", "g1").WithGroup("queue").Info("depth", "visible", 3)
	out = buf.String()
	assert.Contains(t, out, "group_id")
	assert.Contains(t, out, "queue.visible")
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "color", "warn")

	log.Info("quiet")
	assert.Empty(t, buf.String())

	log.Warn("loud")
	assert.True(t, strings.Contains(buf.String(), "loud"))
}
