package coordinator

import (
	"context"

	"ltmc/internal/graph"
)

// SweepReport counts what the consistency sweep found and fixed.
type SweepReport struct {
	OrphanedChunks  int  `json:"orphaned_chunks"`
	RepairedChunks  int  `json:"repaired_chunks"`
	GarbageVectors  int  `json:"garbage_vectors"`
	RemirroredLinks int  `json:"remirrored_links"`
	DroppedEdges    int  `json:"dropped_edges"`
	GraphAvailable  bool `json:"graph_available"`
}

// Sweep reconciles the stores after a crash or a partial failure. It
// runs at startup and on demand; every step is idempotent.
func (c *Coordinator) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{GraphAvailable: c.graph.Available()}

	chunkIDs, err := c.rel.AllChunkVectorIDs(ctx)
	if err != nil {
		return nil, err
	}
	patternIDs, err := c.rel.AllPatternVectorIDs(ctx)
	if err != nil {
		return nil, err
	}
	indexIDs, err := c.vec.IDs(ctx)
	if err != nil {
		return nil, err
	}

	inIndex := make(map[int64]bool, len(indexIDs))
	for _, id := range indexIDs {
		inIndex[id] = true
	}
	owned := make(map[int64]bool, len(chunkIDs)+len(patternIDs))
	for _, id := range chunkIDs {
		owned[id] = true
	}
	for _, id := range patternIDs {
		owned[id] = true
	}

	// Chunks whose vector is gone get flagged and re-embedded.
	for _, id := range chunkIDs {
		if !inIndex[id] {
			if err := c.rel.MarkChunkOrphaned(ctx, id); err != nil {
				return nil, err
			}
			report.OrphanedChunks++
		}
	}
	repaired, err := c.reembedOrphans(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "orphan re-embedding incomplete", "error", err.Error())
	}
	report.RepairedChunks = repaired

	// Vectors nothing owns are garbage.
	dirty := false
	for _, id := range indexIDs {
		if !owned[id] {
			if err := c.vec.Remove(ctx, id); err != nil {
				return nil, err
			}
			report.GarbageVectors++
			dirty = true
		}
	}
	if dirty || repaired > 0 {
		if err := c.vec.Save(ctx); err != nil {
			return nil, err
		}
	}

	if c.graph.Available() {
		if err := c.reconcileGraph(ctx, report); err != nil {
			c.logger.WarnContext(ctx, "graph reconciliation incomplete", "error", err.Error())
			report.GraphAvailable = c.graph.Available()
		}
	}

	c.logger.InfoContext(ctx, "consistency sweep finished",
		"orphaned_chunks", report.OrphanedChunks,
		"repaired_chunks", report.RepairedChunks,
		"garbage_vectors", report.GarbageVectors,
		"remirrored_links", report.RemirroredLinks,
		"dropped_edges", report.DroppedEdges,
		"graph_available", report.GraphAvailable)
	return report, nil
}

// reembedOrphans recomputes vectors for flagged chunks and clears the
// flag once the vector is back.
func (c *Coordinator) reembedOrphans(ctx context.Context) (int, error) {
	orphans, err := c.rel.OrphanedChunks(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, chunk := range orphans {
		vec, err := c.embedder.Embed(ctx, chunk.ChunkText)
		if err != nil {
			return repaired, err
		}
		if err := c.vec.Add(ctx, chunk.VectorID, vec); err != nil {
			return repaired, err
		}
		if err := c.rel.MarkChunkRepaired(ctx, chunk.VectorID); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

// reconcileGraph re-mirrors relational links into the graph and drops
// graph edges with no backing row.
func (c *Coordinator) reconcileGraph(ctx context.Context, report *SweepReport) error {
	links, err := c.rel.AllResourceLinks(ctx)
	if err != nil {
		return err
	}
	edges, err := c.graph.AllEdges(ctx)
	if err != nil {
		return err
	}

	type key struct {
		source, target int64
		linkType       string
	}
	haveEdge := make(map[key]bool, len(edges))
	for _, e := range edges {
		haveEdge[key{e.SourceID, e.TargetID, edgeLinkType(e)}] = true
	}
	haveRow := make(map[key]bool, len(links))
	for _, l := range links {
		haveRow[key{l.SourceResourceID, l.TargetResourceID, l.LinkType}] = true
	}

	for _, l := range links {
		k := key{l.SourceResourceID, l.TargetResourceID, l.LinkType}
		if haveEdge[k] {
			continue
		}
		if err := c.graph.UpsertResourceNode(ctx, l.SourceResourceID, nil); err != nil {
			return err
		}
		if err := c.graph.UpsertResourceNode(ctx, l.TargetResourceID, nil); err != nil {
			return err
		}
		if err := c.graph.CreateEdge(ctx, l.SourceResourceID, l.TargetResourceID, l.LinkType,
			map[string]interface{}{"weight": l.Weight}); err != nil {
			return err
		}
		report.RemirroredLinks++
	}

	for _, e := range edges {
		k := key{e.SourceID, e.TargetID, edgeLinkType(e)}
		if haveRow[k] {
			continue
		}
		if err := c.graph.DeleteEdge(ctx, e.SourceID, e.TargetID, edgeLinkType(e)); err != nil {
			return err
		}
		report.DroppedEdges++
	}
	return nil
}

// edgeLinkType recovers the relational spelling of an edge's type,
// preferring the original_type property kept when sanitization had to
// alter the label.
func edgeLinkType(e graph.Edge) string {
	if v, ok := e.Properties["original_type"].(string); ok && v != "" {
		return v
	}
	return e.Type
}
