package mcp

import (
	"context"
	"fmt"
	"time"

	"ltmc/internal/apperrors"
	"ltmc/internal/cache"
	"ltmc/internal/relational"
	"ltmc/internal/retrieval"
)

// dispatch runs one action on the worker pool and always answers with
// an envelope; transport-level errors are reserved for protocol
// failures, not tool outcomes.
func (s *Server) dispatch(ctx context.Context, tool, act string, deadline time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	started := time.Now()
	result, err := s.pool.run(ctx, tool+"/"+act, deadline, fn)
	if err != nil {
		s.logger.WarnContext(ctx, "tool action failed",
			"tool", tool, "action", act,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err.Error())
		return errorEnvelope(err), nil
	}
	return successEnvelope(result), nil
}

func unknownAction(tool, act string, valid []string) (interface{}, error) {
	return errorEnvelope(apperrors.NewValidationError("action",
		fmt.Sprintf("unknown %s action, valid actions: %v", tool, valid), act)), nil
}

func (s *Server) handleMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	act, err := action(args)
	if err != nil {
		return errorEnvelope(err), nil
	}

	switch act {
	case "store":
		var p storePayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "memory", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Coordinator.StoreResource(ctx, p.FileName, p.ResourceType, p.Content)
		})
	case "retrieve":
		var p retrievePayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		topK := 10
		if p.TopK != nil {
			topK = *p.TopK
		}
		return s.dispatch(ctx, "memory", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Retrieval.Retrieve(ctx, p.Query, retrieval.Options{
				TopK:       topK,
				TypeFilter: p.TypeFilter,
				WithGraph:  p.WithGraph,
			})
		})
	case "build_context":
		var p buildContextPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "memory", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Retrieval.BuildContext(ctx, p.Query, retrieval.ContextOptions{
				TopK:       p.TopK,
				TypeFilter: p.TypeFilter,
				MaxTokens:  p.MaxTokens,
			})
		})
	case "get":
		var p getResourcePayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "memory", act, s.light, func(ctx context.Context) (interface{}, error) {
			switch {
			case p.ResourceID > 0:
				return s.container.Relational.GetResource(ctx, p.ResourceID)
			case p.FileName != "":
				return s.container.Relational.GetResourceByFileName(ctx, p.FileName)
			default:
				return nil, apperrors.NewValidationError("resource_id",
					"either resource_id or file_name is required", nil)
			}
		})
	case "delete":
		var p deleteResourcePayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "memory", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			if err := s.container.Coordinator.DeleteResource(ctx, p.ResourceID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"resource_id": p.ResourceID, "deleted": true}, nil
		})
	case "stats":
		return s.dispatch(ctx, "memory", act, s.light, func(ctx context.Context) (interface{}, error) {
			stats, err := s.container.Relational.CollectStats(ctx)
			if err != nil {
				return nil, err
			}
			vectors, err := s.container.Vector.Count(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"relational":      stats,
				"vectors":         vectors,
				"graph_available": s.container.Graph.Available(),
				"cache_enabled":   s.container.Cache.Enabled(),
			}, nil
		})
	case "sweep":
		return s.dispatch(ctx, "memory", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Coordinator.Sweep(ctx)
		})
	default:
		return unknownAction("memory", act,
			[]string{"store", "retrieve", "build_context", "get", "delete", "stats", "sweep"})
	}
}

func (s *Server) handleChat(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	act, err := action(args)
	if err != nil {
		return errorEnvelope(err), nil
	}

	switch act {
	case "log":
		var p chatLogPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "chat", act, s.light, func(ctx context.Context) (interface{}, error) {
			return s.container.Coordinator.LogChat(ctx, p.ConversationID, p.Role, p.Content, p.SourceTool)
		})
	case "context":
		var p chatContextPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "chat", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Retrieval.AskWithContext(ctx, p.Query, p.ConversationID, p.TopK)
		})
	case "by_tool":
		var p chatByToolPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "chat", act, s.light, func(ctx context.Context) (interface{}, error) {
			msgs, err := s.container.Coordinator.ChatsBySourceTool(ctx, p.SourceTool, p.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"messages": msgs, "count": len(msgs)}, nil
		})
	default:
		return unknownAction("chat", act, []string{"log", "context", "by_tool"})
	}
}

func (s *Server) handleTodo(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	act, err := action(args)
	if err != nil {
		return errorEnvelope(err), nil
	}

	switch act {
	case "add":
		var p todoAddPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "todo", act, s.light, func(ctx context.Context) (interface{}, error) {
			id, err := s.container.Coordinator.AddTodo(ctx, p.Title, p.Description, p.Priority)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"todo_id": id}, nil
		})
	case "list":
		var p todoListPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "todo", act, s.light, func(ctx context.Context) (interface{}, error) {
			todos, err := s.container.Coordinator.ListTodos(ctx, p.Status, p.Priority, p.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"todos": todos, "count": len(todos)}, nil
		})
	case "complete":
		var p todoIDPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "todo", act, s.light, func(ctx context.Context) (interface{}, error) {
			if err := s.container.Coordinator.CompleteTodo(ctx, p.TodoID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"todo_id": p.TodoID, "status": relational.TodoCompleted}, nil
		})
	case "search":
		var p todoSearchPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "todo", act, s.light, func(ctx context.Context) (interface{}, error) {
			todos, err := s.container.Relational.SearchTodos(ctx, p.Query, p.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"todos": todos, "count": len(todos)}, nil
		})
	case "delete":
		var p todoIDPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "todo", act, s.light, func(ctx context.Context) (interface{}, error) {
			if err := s.container.Coordinator.DeleteTodo(ctx, p.TodoID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"todo_id": p.TodoID, "deleted": true}, nil
		})
	default:
		return unknownAction("todo", act, []string{"add", "list", "complete", "search", "delete"})
	}
}

func (s *Server) handlePattern(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	act, err := action(args)
	if err != nil {
		return errorEnvelope(err), nil
	}

	switch act {
	case "log":
		var p patternLogPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "pattern", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Coordinator.LogCodePattern(ctx, relational.PatternInsert{
				FunctionName:    p.FunctionName,
				FileName:        p.FileName,
				ModuleName:      p.ModuleName,
				InputPrompt:     p.InputPrompt,
				GeneratedCode:   p.GeneratedCode,
				Result:          p.Result,
				ExecutionTimeMs: p.ExecutionTimeMs,
				ErrorMessage:    p.ErrorMessage,
				Tags:            p.Tags,
			})
		})
	case "get":
		var p patternGetPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "pattern", act, s.light, func(ctx context.Context) (interface{}, error) {
			patterns, err := s.container.Relational.ListPatterns(ctx, p.Result, p.FunctionName, p.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"patterns": patterns, "count": len(patterns)}, nil
		})
	case "analyze":
		var p patternAnalyzePayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "pattern", act, s.light, func(ctx context.Context) (interface{}, error) {
			counts, err := s.container.Relational.PatternSuccessRate(ctx, p.FunctionName)
			if err != nil {
				return nil, err
			}
			var total int64
			for _, n := range counts {
				total += n
			}
			analysis := map[string]interface{}{"counts": counts, "total": total}
			if total > 0 {
				analysis["success_rate"] = float64(counts[relational.ResultPass]) / float64(total)
			}
			return analysis, nil
		})
	default:
		return unknownAction("pattern", act, []string{"log", "get", "analyze"})
	}
}

func (s *Server) handleGraph(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	act, err := action(args)
	if err != nil {
		return errorEnvelope(err), nil
	}

	switch act {
	case "link":
		var p graphLinkPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "graph", act, s.light, func(ctx context.Context) (interface{}, error) {
			if p.Upsert {
				return s.container.Coordinator.UpsertResourceLink(ctx,
					p.SourceResourceID, p.TargetResourceID, p.LinkType, p.Weight, p.Metadata)
			}
			return s.container.Coordinator.CreateResourceLink(ctx,
				p.SourceResourceID, p.TargetResourceID, p.LinkType, p.Weight, p.Metadata)
		})
	case "unlink":
		var p graphUnlinkPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "graph", act, s.light, func(ctx context.Context) (interface{}, error) {
			if err := s.container.Coordinator.DeleteResourceLink(ctx, p.LinkID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"link_id": p.LinkID, "deleted": true}, nil
		})
	case "query", "get_relationships":
		var p graphQueryPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "graph", act, s.light, func(ctx context.Context) (interface{}, error) {
			if s.container.Graph.Available() {
				edges, err := s.container.Coordinator.QueryGraph(ctx, p.ResourceID, p.RelationType)
				if err == nil {
					return map[string]interface{}{"edges": edges, "fallback": false}, nil
				}
				if apperrors.Code(err) != apperrors.ErrorCodeGraph {
					return nil, err
				}
			}
			neighbors, _ := s.container.Retrieval.GraphNeighbors(ctx, p.ResourceID, p.RelationType)
			return map[string]interface{}{"neighbors": neighbors, "fallback": true}, nil
		})
	case "neighbors":
		var p graphNeighborsPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "graph", act, s.light, func(ctx context.Context) (interface{}, error) {
			if s.container.Graph.Available() {
				nodes, err := s.container.Graph.Neighbors(ctx, p.ResourceID, p.TypeFilter, p.Depth)
				if err == nil {
					return map[string]interface{}{"nodes": nodes, "fallback": false}, nil
				}
				if apperrors.Code(err) != apperrors.ErrorCodeGraph {
					return nil, err
				}
			}
			neighbors, _ := s.container.Retrieval.GraphNeighbors(ctx, p.ResourceID, p.TypeFilter)
			return map[string]interface{}{"neighbors": neighbors, "fallback": true}, nil
		})
	case "auto_link":
		var p autoLinkPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		return s.dispatch(ctx, "graph", act, s.heavy, func(ctx context.Context) (interface{}, error) {
			return s.container.Retrieval.AutoLinkDocuments(ctx,
				p.ResourceIDs, p.SimilarityThreshold, p.MaxLinksPerDoc)
		})
	default:
		return unknownAction("graph", act,
			[]string{"link", "unlink", "query", "get_relationships", "neighbors", "auto_link"})
	}
}

func (s *Server) handleCache(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	act, err := action(args)
	if err != nil {
		return errorEnvelope(err), nil
	}

	switch act {
	case "stats":
		return s.dispatch(ctx, "cache", act, s.light, func(ctx context.Context) (interface{}, error) {
			return map[string]interface{}{
				"enabled": s.container.Cache.Enabled(),
				"scopes":  s.container.Cache.Stats(ctx),
			}, nil
		})
	case "flush":
		var p cacheFlushPayload
		if err := decodePayload(args, &p); err != nil {
			return errorEnvelope(err), nil
		}
		if p.Scope == "" {
			return errorEnvelope(apperrors.NewRequiredFieldError("scope")), nil
		}
		return s.dispatch(ctx, "cache", act, s.light, func(ctx context.Context) (interface{}, error) {
			removed := s.container.Cache.Flush(ctx, p.Scope)
			return map[string]interface{}{"scope": p.Scope, "removed": removed}, nil
		})
	case "reset":
		return s.dispatch(ctx, "cache", act, s.light, func(ctx context.Context) (interface{}, error) {
			var removed int64
			for _, scope := range []string{cache.ScopeRetrieve, cache.ScopeChat, cache.ScopeTodo, cache.ScopeGraph} {
				removed += s.container.Cache.Flush(ctx, scope)
			}
			return map[string]interface{}{"removed": removed}, nil
		})
	case "health":
		return s.dispatch(ctx, "cache", act, s.light, func(ctx context.Context) (interface{}, error) {
			stores, healthy := s.container.Health(ctx)
			return map[string]interface{}{
				"healthy":         healthy,
				"stores":          stores,
				"graph_available": s.container.Graph.Available(),
				"cache_enabled":   s.container.Cache.Enabled(),
			}, nil
		})
	default:
		return unknownAction("cache", act, []string{"stats", "flush", "reset", "health"})
	}
}
