package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatJSON, Level: slog.LevelInfo})
	log.Info("parsed book", "chapters", 3)

	assert.Contains(t, buf.String(), `"msg":"parsed book"`)
	assert.Contains(t, buf.String(), `"chapters":3`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatText, Level: slog.LevelInfo})
	log.Warn("skipping chapter", "id", "ch2")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "id=ch2")
}

func TestNew_PrettyWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Level: slog.LevelDebug, NoColor: true})
	log.With("archive", "book.epub").WithGroup("cache").Debug("eviction", "key", "a b")

	line := strings.TrimSpace(buf.String())
	assert.NotContains(t, line, "\033[")
	assert.Contains(t, line, "DBG eviction")
	assert.Contains(t, line, "archive=book.epub")
	assert.Contains(t, line, `cache.key="a b"`)
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Level: slog.LevelWarn, NoColor: true})
	log.Info("hidden")
	log.Error("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	require.Contains(t, out, "ERR shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
