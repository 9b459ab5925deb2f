package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, FormatJSON, "info")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("opened", "session", "s1", "screen", "Menu")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "opened", line["msg"])
	assert.Equal(t, "s1", line["session"])
	assert.Equal(t, "Menu", line["screen"])
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, FormatText, "warn")
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, slog.LevelDebug, logger.Level())
	logger.Debug("kept")
	assert.Contains(t, buf.String(), "msg=kept")

	require.Error(t, logger.SetLevel("loud"))
	assert.Equal(t, slog.LevelDebug, logger.Level())
}

func TestNewRejectsUnknownFormatAndLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", "info")
	require.Error(t, err)

	_, err = New(&bytes.Buffer{}, FormatJSON, "verbose")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range tests {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}
