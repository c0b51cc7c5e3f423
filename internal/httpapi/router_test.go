package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/config"
	"ltmc/internal/logging"
	"ltmc/internal/mcp"
	"ltmc/internal/services"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Relational.Path = filepath.Join(dir, "primary.db")
	cfg.Vector.IndexPath = filepath.Join(dir, "vector_index")
	cfg.Vector.Dimension = 64
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 64

	c, err := services.NewContainer(context.Background(), cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	return NewHandler(c, mcp.NewServer(c, logging.NewNoopLogger()), logging.NewNoopLogger())
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, false, body["graph_available"])

	stores, ok := body["stores"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, stores, "relational")
	assert.Contains(t, stores, "vector")
}

func TestMCPEndpointToolsList(t *testing.T) {
	h := newTestHandler(t)

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	names := map[string]bool{}
	for _, tool := range resp.Result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"memory", "chat", "todo", "pattern", "graph", "cache"} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestMCPEndpointRejectsBadJSON(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("{"))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
