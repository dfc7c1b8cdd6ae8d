package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestTemporalLogger_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf))

	l.Info("started worker", "TaskQueue", "migrations-catalog", "WorkerID", 7)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "started worker", entry["message"])
	assert.Equal(t, "temporal", entry["component"])
	assert.Equal(t, "migrations-catalog", entry["TaskQueue"])
	assert.Equal(t, float64(7), entry["WorkerID"])
}

func TestTemporalLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf))

	l.Warn("dangling", "Attempt")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "MISSING", entry["Attempt"])
}

func TestTemporalLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf)).With("Namespace", "default")

	l.Error("poll failed", "error", "unavailable")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "default", entry["Namespace"])
	assert.Equal(t, "unavailable", entry["error"])
}

func TestTemporalLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewTemporalLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("noisy")

	assert.Empty(t, buf.String())
}
