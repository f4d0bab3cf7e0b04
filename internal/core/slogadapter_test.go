package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_LogRoutesToCorrectSeverity(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlogLogger(slog.New(handler))

	logger.Log(LevelInfo, "starting up")
	logger.Log(LevelWarn, "queue backing up")
	logger.Log(LevelError, "handler panicked")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "starting up", entry["msg"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "WARN", entry["level"])

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	assert.Equal(t, "ERROR", entry["level"])
}

func TestSlogLogger_NilLoggerFallsBackToDefault(t *testing.T) {
	logger := NewSlogLogger(nil)
	assert.NotPanics(t, func() { logger.Log(LevelInfo, "noop target") })
}

func TestNewJSONSlogLoggerAndNewTextSlogLogger_Construct(t *testing.T) {
	jsonLogger := NewJSONSlogLogger(slog.LevelInfo)
	textLogger := NewTextSlogLogger(slog.LevelWarn)
	require.NotNil(t, jsonLogger)
	require.NotNil(t, textLogger)
	assert.NotPanics(t, func() { jsonLogger.Log(LevelInfo, "hello") })
}
