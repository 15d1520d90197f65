package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notify.log")

	logger, closer, err := NewFileLogger(path, slog.LevelInfo)
	require.NoError(t, err, "file logger should initialize")

	logger.Info("sound played", "event", "order_confirmed")
	require.NoError(t, closer(), "closer should flush the writer")

	data, err := os.ReadFile(path)
	require.NoError(t, err, "log file should exist")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record), "records should be JSON")
	assert.Equal(t, "sound played", record["msg"], "message should be recorded")
	assert.Equal(t, "order_confirmed", record["event"], "attributes should be recorded")
	assert.Equal(t, "INFO", record["level"], "level label should be recorded")
}

func TestRedirectToFileRoutesServiceLoggers(t *testing.T) {
	prev := structuredLogger
	prevDefault := slog.Default()
	t.Cleanup(func() {
		structuredLogger = prev
		slog.SetDefault(prevDefault)
	})

	path := filepath.Join(t.TempDir(), "notify.log")

	closer, err := RedirectToFile(path, slog.LevelInfo)
	require.NoError(t, err, "redirection should initialize")

	ForService("dispatcher").Info("ready")
	require.NoError(t, closer(), "closer should flush the writer")

	data, err := os.ReadFile(path)
	require.NoError(t, err, "log file should exist")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record), "records should be JSON")
	assert.Equal(t, "dispatcher", record["service"], "service attribute should survive redirection")
	assert.Equal(t, "ready", record["msg"], "message should land in the file")
}
