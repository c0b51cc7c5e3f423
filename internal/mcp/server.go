// Package mcp exposes the memory system over the Model Context
// Protocol. Six action tools route grouped operations into the
// coordinator and the retrieval pipeline; stdout carries only
// protocol frames.
package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"

	"ltmc/internal/logging"
	"ltmc/internal/services"
)

const (
	serverName    = "ltmc"
	serverVersion = "1.0.0"
)

// Server binds the action tools to the service container.
type Server struct {
	container *services.Container
	mcpServer *server.Server
	pool      *workerPool
	light     time.Duration
	heavy     time.Duration
	logger    logging.Logger
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(c *services.Container, logger logging.Logger) *Server {
	s := &Server{
		container: c,
		mcpServer: mcpsdk.NewServer(serverName, serverVersion),
		pool:      newWorkerPool(c.Config.Runtime.MaxConcurrentOps),
		light:     time.Duration(c.Config.Runtime.LightDeadlineS) * time.Second,
		heavy:     time.Duration(c.Config.Runtime.HeavyDeadlineS) * time.Second,
		logger:    logger.WithComponent("mcp"),
	}
	s.registerTools()
	return s
}

// Start serves the protocol loop over stdio until ctx is canceled.
// Logging must already be off stdout before this runs.
func (s *Server) Start(ctx context.Context) error {
	s.mcpServer.SetTransport(transport.NewStdioTransport())
	s.logger.InfoContext(ctx, "mcp server starting", "transport", "stdio")
	return s.mcpServer.Start(ctx)
}

// HandleRequest forwards one JSON-RPC request, for the HTTP bridge.
func (s *Server) HandleRequest(ctx context.Context, req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	return s.mcpServer.HandleRequest(ctx, req)
}

func actionSchema(description string, actions []string) map[string]interface{} {
	return mcpsdk.ObjectSchema(description, map[string]interface{}{
		"action": map[string]interface{}{
			"type":        "string",
			"enum":        actions,
			"description": "Operation to perform",
		},
		"payload": map[string]interface{}{
			"type":                 "object",
			"description":          "Parameters for the chosen action",
			"additionalProperties": true,
		},
	}, []string{"action"})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcpsdk.NewTool(
		"memory",
		"Store, retrieve, and manage long-term memory documents. Actions: store (chunk, embed, and index content), retrieve (semantic search), build_context (token-budgeted context assembly), get (load one resource by id or file name), delete (remove a resource everywhere), stats (row counts per store), sweep (reconcile stores).",
		actionSchema("Memory parameters",
			[]string{"store", "retrieve", "build_context", "get", "delete", "stats", "sweep"}),
	), mcpsdk.ToolHandlerFunc(s.handleMemory))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"chat",
		"Record and query conversation history. Actions: log (append a turn), context (retrieve and bind chunks to an assistant turn), by_tool (list turns recorded by a source tool).",
		actionSchema("Chat parameters", []string{"log", "context", "by_tool"}),
	), mcpsdk.ToolHandlerFunc(s.handleChat))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"todo",
		"Track structured tasks. Actions: add, list, complete, search, delete.",
		actionSchema("Todo parameters", []string{"add", "list", "complete", "search", "delete"}),
	), mcpsdk.ToolHandlerFunc(s.handleTodo))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"pattern",
		"Log and analyze code generation outcomes. Actions: log (embed and store a pattern), get (filter stored patterns), analyze (success rates by result).",
		actionSchema("Pattern parameters", []string{"log", "get", "analyze"}),
	), mcpsdk.ToolHandlerFunc(s.handlePattern))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"graph",
		"Create and query typed relationships between resources. Actions: link (typed edge with weight, upsert to refresh in place), unlink (delete an edge by id), query (edges for a resource, relational fallback when degraded), get_relationships (alias of query), neighbors (multi-hop traversal), auto_link (similarity-based linking).",
		actionSchema("Graph parameters",
			[]string{"link", "unlink", "query", "get_relationships", "neighbors", "auto_link"}),
	), mcpsdk.ToolHandlerFunc(s.handleGraph))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		"cache",
		"Inspect and manage the read cache. Actions: stats (key counts per scope), flush (drop one scope), reset (drop all scopes), health (backend reachability).",
		actionSchema("Cache parameters", []string{"stats", "flush", "reset", "health"}),
	), mcpsdk.ToolHandlerFunc(s.handleCache))
}
