// Package httpapi bridges the MCP server onto HTTP for clients that
// cannot speak stdio. It is an optional surface; stdio stays primary.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ltmc/internal/config"
	"ltmc/internal/logging"
	"ltmc/internal/mcp"
	"ltmc/internal/services"
)

// Handler serves POST /mcp and GET /health.
type Handler struct {
	container *services.Container
	mcpServer *mcp.Server
	logger    logging.Logger
}

// NewHandler wires the HTTP bridge around an MCP server.
func NewHandler(container *services.Container, mcpServer *mcp.Server, logger logging.Logger) *Handler {
	return &Handler{
		container: container,
		mcpServer: mcpServer,
		logger:    logger.WithComponent("httpapi"),
	}
}

// Router builds the chi router for the bridge.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/mcp", h.handleMCP)
	r.Get("/health", h.handleHealth)
	return r
}

// Serve runs the bridge until ctx is canceled.
func (h *Handler) Serve(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h.Router(),
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	h.logger.InfoContext(ctx, "http bridge listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (h *Handler) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req protocol.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON-RPC request", http.StatusBadRequest)
		return
	}

	resp := h.mcpServer.HandleRequest(r.Context(), &req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("encoding mcp response failed", "error", err.Error())
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stores, healthy := h.container.Health(r.Context())

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":         healthy,
		"stores":          stores,
		"graph_available": h.container.Graph.Available(),
		"cache_enabled":   h.container.Cache.Enabled(),
	})
}
