// Package services wires the stores, the coordinator, and the
// retrieval pipeline into one dependency container.
package services

import (
	"context"
	"fmt"

	"ltmc/internal/cache"
	"ltmc/internal/chunking"
	"ltmc/internal/config"
	"ltmc/internal/coordinator"
	"ltmc/internal/embeddings"
	"ltmc/internal/graph"
	"ltmc/internal/logging"
	"ltmc/internal/relational"
	"ltmc/internal/retrieval"
	"ltmc/internal/vector"
)

// Container holds every initialized service in dependency order.
type Container struct {
	Config      *config.Config
	Relational  *relational.Store
	Vector      vector.Index
	Graph       *graph.Store
	Cache       *cache.Cache
	Embedder    embeddings.Embedder
	Chunker     *chunking.Chunker
	Coordinator *coordinator.Coordinator
	Retrieval   *retrieval.Pipeline

	logger logging.Logger
}

// NewContainer opens all stores and wires the coordinator and the
// retrieval pipeline. The relational store is authoritative, so its
// failure aborts startup; graph and cache degrade instead of failing.
func NewContainer(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Container, error) {
	c := &Container{Config: cfg, logger: logger.WithComponent("services")}

	rel, err := relational.Open(ctx, cfg.Relational, logger)
	if err != nil {
		return nil, fmt.Errorf("opening relational store: %w", err)
	}
	c.Relational = rel

	vec, err := vector.Open(ctx, cfg.Vector, logger)
	if err != nil {
		_ = rel.Close()
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	c.Vector = vec

	gr, err := graph.Open(ctx, cfg.Graph, logger)
	if err != nil {
		_ = vec.Close()
		_ = rel.Close()
		return nil, fmt.Errorf("opening graph store: %w", err)
	}
	c.Graph = gr

	c.Cache = cache.Open(ctx, cfg.Cache, logger)

	emb, err := embeddings.New(cfg.Embedding, logger)
	if err != nil {
		c.closeStores(ctx)
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	c.Embedder = emb
	c.Chunker = chunking.NewChunker(cfg.Chunking)

	c.Coordinator = coordinator.New(rel, vec, gr, c.Cache, emb, c.Chunker, logger)
	c.Retrieval = retrieval.New(c.Coordinator, logger)

	c.logger.InfoContext(ctx, "services initialized",
		"relational_driver", cfg.Relational.Driver,
		"vector_provider", cfg.Vector.Provider,
		"graph_available", gr.Available(),
		"cache_enabled", c.Cache.Enabled(),
		"embedding_provider", cfg.Embedding.Provider)
	return c, nil
}

// StartupSweep reconciles the stores once after boot. Failures are
// logged rather than fatal so a dirty index cannot block startup.
func (c *Container) StartupSweep(ctx context.Context) {
	report, err := c.Coordinator.Sweep(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "startup sweep failed", "error", err.Error())
		return
	}
	if report.OrphanedChunks > 0 || report.GarbageVectors > 0 ||
		report.RemirroredLinks > 0 || report.DroppedEdges > 0 {
		c.logger.InfoContext(ctx, "startup sweep repaired inconsistencies",
			"orphaned_chunks", report.OrphanedChunks,
			"garbage_vectors", report.GarbageVectors,
			"remirrored_links", report.RemirroredLinks,
			"dropped_edges", report.DroppedEdges)
	}
}

// StoreHealth is the health snapshot per backing store.
type StoreHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health reports the status of every store. The process is healthy as
// long as the relational store and the vector index answer; graph and
// cache report degraded or disabled without failing the snapshot.
func (c *Container) Health(ctx context.Context) (map[string]StoreHealth, bool) {
	out := make(map[string]StoreHealth, 4)
	healthy := true

	if err := c.Relational.Ping(ctx); err != nil {
		out["relational"] = StoreHealth{Status: "down", Detail: err.Error()}
		healthy = false
	} else {
		out["relational"] = StoreHealth{Status: "ok"}
	}

	if _, err := c.Vector.Count(ctx); err != nil {
		out["vector"] = StoreHealth{Status: "down", Detail: err.Error()}
		healthy = false
	} else {
		out["vector"] = StoreHealth{Status: "ok"}
	}

	switch {
	case !c.Config.GraphConfigured():
		out["graph"] = StoreHealth{Status: "disabled"}
	case c.Graph.Ping(ctx) != nil:
		out["graph"] = StoreHealth{Status: "degraded"}
	default:
		out["graph"] = StoreHealth{Status: "ok"}
	}

	switch {
	case !c.Cache.Enabled():
		out["cache"] = StoreHealth{Status: "disabled"}
	case c.Cache.Health(ctx) != nil:
		out["cache"] = StoreHealth{Status: "degraded"}
	default:
		out["cache"] = StoreHealth{Status: "ok"}
	}

	return out, healthy
}

// Close shuts the stores down in reverse dependency order. The vector
// index is saved by its Close.
func (c *Container) Close(ctx context.Context) error {
	var firstErr error
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Graph != nil {
		if err := c.Graph.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Vector != nil {
		if err := c.Vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Relational != nil {
		if err := c.Relational.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Container) closeStores(ctx context.Context) {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Graph != nil {
		_ = c.Graph.Close(ctx)
	}
	if c.Vector != nil {
		_ = c.Vector.Close()
	}
	if c.Relational != nil {
		_ = c.Relational.Close()
	}
}
