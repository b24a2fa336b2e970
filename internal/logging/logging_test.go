package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStructuredLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	logger.Info("snapshot committed", slog.Uint64("version", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "snapshot committed", entry["msg"])
	assert.EqualValues(t, 3, entry["version"])
}

func TestLogErrorReturnsSameError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	err := errors.New("boom")
	assert.Same(t, err, LogError(logger, "ingest failed", err))
	assert.Contains(t, buf.String(), "boom")

	assert.Nil(t, LogError(logger, "nothing", nil))
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("already closed") }

func TestSafeCloseWithLoggingLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	SafeCloseWithLogging(failingCloser{}, logger, "feed body")
	assert.Contains(t, buf.String(), "feed body")

	SafeCloseWithLogging(nil, logger, "nil closer")
}
