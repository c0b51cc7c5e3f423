// Package retrieval turns natural-language queries into ranked chunks
// with resource metadata and optional graph enrichment.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"ltmc/internal/apperrors"
	"ltmc/internal/cache"
	"ltmc/internal/coordinator"
	"ltmc/internal/logging"
)

// overFetchFactor widens the vector search so post-hydration filtering
// still fills top_k.
const overFetchFactor = 3

// RankedChunk is one retrieval hit.
type RankedChunk struct {
	Rank         int     `json:"rank"`
	ChunkID      int64   `json:"chunk_id"`
	VectorID     int64   `json:"vector_id"`
	ResourceID   int64   `json:"resource_id"`
	FileName     string  `json:"file_name"`
	ResourceType string  `json:"resource_type"`
	Position     int     `json:"position"`
	Score        float32 `json:"score"`
	Text         string  `json:"text"`
}

// Neighbor is one graph enrichment entry.
type Neighbor struct {
	ResourceID int64   `json:"resource_id"`
	LinkType   string  `json:"link_type,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
}

// Result is the full retrieval response.
type Result struct {
	Query          string               `json:"query"`
	Chunks         []RankedChunk        `json:"chunks"`
	GraphAvailable bool                 `json:"graph_available"`
	Neighbors      map[int64][]Neighbor `json:"neighbors,omitempty"`
	FromCache      bool                 `json:"from_cache,omitempty"`
}

// Pipeline runs retrieval against the coordinator's stores.
type Pipeline struct {
	coord  *coordinator.Coordinator
	logger logging.Logger
}

// New wires the pipeline.
func New(coord *coordinator.Coordinator, logger logging.Logger) *Pipeline {
	return &Pipeline{coord: coord, logger: logger.WithComponent("retrieval")}
}

// Options tune one retrieval call.
type Options struct {
	TopK       int
	TypeFilter string
	WithGraph  bool
}

// Retrieve embeds the query, searches the index with over-fetch,
// hydrates and filters the hits, and ranks them stably: score
// descending, then chunk position ascending, then resource creation
// time descending.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.ErrQueryRequired
	}
	topK := opts.TopK
	if topK <= 0 {
		return &Result{
			Query:          query,
			Chunks:         []RankedChunk{},
			GraphAvailable: p.coord.Graph().Available(),
		}, nil
	}

	filters := opts.TypeFilter
	if opts.WithGraph {
		filters += "+graph"
	}
	key := cache.RetrieveKey(query, topK, filters)
	var cached Result
	if err := p.coord.Cache().Get(ctx, key, &cached); err == nil {
		cached.FromCache = true
		return &cached, nil
	}

	queryVec, err := p.coord.Embedder().Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := p.coord.Vector().Search(ctx, queryVec, topK*overFetchFactor)
	if err != nil {
		return nil, err
	}

	vectorIDs := make([]int64, len(matches))
	scores := make(map[int64]float32, len(matches))
	for i, m := range matches {
		vectorIDs[i] = m.VectorID
		scores[m.VectorID] = m.Score
	}

	hydrated, err := p.coord.Relational().ChunksByVectorIDs(ctx, vectorIDs)
	if err != nil {
		return nil, err
	}
	if garbage := len(matches) - len(hydrated); garbage > 0 {
		p.logger.DebugContext(ctx, "vector hits without chunk rows, sweep will collect", "count", garbage)
	}

	chunks := make([]RankedChunk, 0, len(hydrated))
	createdAt := make(map[int64]int64, len(hydrated))
	for _, h := range hydrated {
		if opts.TypeFilter != "" && h.ResourceType != opts.TypeFilter {
			continue
		}
		createdAt[h.ResourceID] = h.ResourceCreatedAt.UnixNano()
		chunks = append(chunks, RankedChunk{
			ChunkID:      h.ID,
			VectorID:     h.VectorID,
			ResourceID:   h.ResourceID,
			FileName:     h.FileName,
			ResourceType: h.ResourceType,
			Position:     h.Position,
			Score:        scores[h.VectorID],
			Text:         h.ChunkText,
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].Position != chunks[j].Position {
			return chunks[i].Position < chunks[j].Position
		}
		return createdAt[chunks[i].ResourceID] > createdAt[chunks[j].ResourceID]
	})
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	for i := range chunks {
		chunks[i].Rank = i + 1
	}

	result := &Result{
		Query:          query,
		Chunks:         chunks,
		GraphAvailable: p.coord.Graph().Available(),
	}
	if opts.WithGraph {
		result.Neighbors = p.enrich(ctx, chunks)
	}

	p.coord.Cache().Set(ctx, key, result)
	return result, nil
}

// enrich attaches 1-hop neighbors per resource, falling back to the
// relational links table when the graph is degraded.
func (p *Pipeline) enrich(ctx context.Context, chunks []RankedChunk) map[int64][]Neighbor {
	seen := make(map[int64]bool)
	out := make(map[int64][]Neighbor)
	for _, ch := range chunks {
		if seen[ch.ResourceID] {
			continue
		}
		seen[ch.ResourceID] = true
		out[ch.ResourceID] = p.neighborsFor(ctx, ch.ResourceID, "")
	}
	return out
}

// GraphNeighbors answers a graph query for one resource. The second
// return reports whether the relational fallback served it.
func (p *Pipeline) GraphNeighbors(ctx context.Context, resourceID int64, typeFilter string) ([]Neighbor, bool) {
	neighbors := p.neighborsFor(ctx, resourceID, typeFilter)
	return neighbors, !p.coord.Graph().Available()
}

// neighborsFor queries the graph when it is up, the relational links
// table otherwise.
func (p *Pipeline) neighborsFor(ctx context.Context, resourceID int64, typeFilter string) []Neighbor {
	if p.coord.Graph().Available() {
		nodes, err := p.coord.Graph().Neighbors(ctx, resourceID, typeFilter, 1)
		if err == nil {
			neighbors := make([]Neighbor, 0, len(nodes))
			for _, n := range nodes {
				neighbors = append(neighbors, Neighbor{ResourceID: n.ID})
			}
			return neighbors
		}
		p.logger.DebugContext(ctx, "graph neighbors failed, falling back to relational",
			"resource_id", resourceID, "error", err.Error())
	}

	links, err := p.coord.Relational().LinksForResource(ctx, resourceID, 50)
	if err != nil {
		return nil
	}
	neighbors := make([]Neighbor, 0, len(links))
	for _, l := range links {
		other := l.TargetResourceID
		if other == resourceID {
			other = l.SourceResourceID
		}
		if typeFilter != "" && !strings.EqualFold(l.LinkType, typeFilter) {
			continue
		}
		neighbors = append(neighbors, Neighbor{ResourceID: other, LinkType: l.LinkType, Weight: l.Weight})
	}
	return neighbors
}
