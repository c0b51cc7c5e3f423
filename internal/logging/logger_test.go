package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Configure(DEBUG, path))
	t.Cleanup(func() { _ = Configure(INFO, "") })

	Info("server starting", "port", 9090)
	WithComponent("coordinator").Warn("degraded mode")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "server starting", entry.Message)
	assert.EqualValues(t, 9090, entry.Fields["port"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "coordinator", entry.Component)
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Configure(ERROR, path))
	t.Cleanup(func() { _ = Configure(INFO, "") })

	Debug("dropped")
	Info("dropped")
	Error("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestTraceIDFromContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Configure(INFO, path))
	t.Cleanup(func() { _ = Configure(INFO, "") })

	ctx := WithTraceID(context.Background(), "")
	traceID := GetTraceID(ctx)
	require.NotEmpty(t, traceID)

	InfoContext(ctx, "handling request")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, traceID, entry.TraceID)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARN, ParseLogLevel("WARNING"))
	assert.Equal(t, INFO, ParseLogLevel("nonsense"))
}
