package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"ltmc/internal/apperrors"
	"ltmc/internal/relational"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultMaxLinksPerDoc      = 5
	autoLinkType               = "similar_to"
	autoLinkSearchWidth        = 50
)

// AutoLinkReport summarizes one auto_link_documents run.
type AutoLinkReport struct {
	Documents       int        `json:"documents"`
	CreatedLinks    int        `json:"created_links"`
	SkippedExisting int        `json:"skipped_existing"`
	Links           []AutoLink `json:"links,omitempty"`
}

// AutoLink is one similarity link written during an auto-link run.
type AutoLink struct {
	SourceResourceID int64   `json:"source_resource_id"`
	TargetResourceID int64   `json:"target_resource_id"`
	Similarity       float64 `json:"similarity"`
}

// AutoLinkDocuments links pairs of documents whose centroid similarity
// clears the threshold, at most maxLinksPerDoc per document, writing
// similar_to links weighted by similarity. Existing links are skipped,
// so reruns are idempotent. An empty resourceIDs set auto-links every
// stored document.
func (p *Pipeline) AutoLinkDocuments(ctx context.Context, resourceIDs []int64, threshold float64, maxLinksPerDoc int) (*AutoLinkReport, error) {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	if maxLinksPerDoc <= 0 {
		maxLinksPerDoc = defaultMaxLinksPerDoc
	}

	if len(resourceIDs) == 0 {
		docs, err := p.coord.Relational().ListResources(ctx, relational.TypeDocument, 200)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			resourceIDs = append(resourceIDs, d.ID)
		}
	}
	inSet := make(map[int64]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		inSet[id] = true
	}

	report := &AutoLinkReport{Documents: len(resourceIDs)}
	linkedPairs := make(map[string]bool)

	for _, id := range resourceIDs {
		centroid, err := p.documentCentroid(ctx, id)
		if err != nil {
			return nil, err
		}
		if centroid == nil {
			continue
		}

		candidates, err := p.similarResources(ctx, id, centroid, inSet)
		if err != nil {
			return nil, err
		}

		created := 0
		for _, cand := range candidates {
			if created >= maxLinksPerDoc {
				break
			}
			if cand.Similarity < threshold {
				break
			}
			key := pairKey(id, cand.TargetResourceID)
			if linkedPairs[key] {
				continue
			}
			linkedPairs[key] = true

			_, err := p.coord.CreateResourceLink(ctx, id, cand.TargetResourceID, autoLinkType, cand.Similarity, "")
			if err != nil {
				if apperrors.Code(err) == apperrors.ErrorCodeAlreadyExists {
					report.SkippedExisting++
					created++
					continue
				}
				return nil, err
			}
			report.CreatedLinks++
			report.Links = append(report.Links, AutoLink{
				SourceResourceID: id,
				TargetResourceID: cand.TargetResourceID,
				Similarity:       cand.Similarity,
			})
			created++
		}
	}

	p.logger.InfoContext(ctx, "auto-link run complete",
		"documents", report.Documents,
		"created", report.CreatedLinks,
		"skipped_existing", report.SkippedExisting)
	return report, nil
}

// documentCentroid embeds every chunk of the resource and averages the
// vectors into one L2-normalized representative. Nil for chunkless
// resources.
func (p *Pipeline) documentCentroid(ctx context.Context, resourceID int64) ([]float32, error) {
	chunks, err := p.coord.Relational().ChunksByResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.ChunkText
	}
	vecs, err := p.coord.Embedder().EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	centroid := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i, x := range v {
			centroid[i] += x
		}
	}
	var norm float64
	for _, x := range centroid {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return nil, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range centroid {
		centroid[i] *= scale
	}
	return centroid, nil
}

// similarResources searches the index with the centroid and reduces
// the hits to the best score per other resource in the candidate set,
// sorted by similarity descending.
func (p *Pipeline) similarResources(ctx context.Context, resourceID int64, centroid []float32, inSet map[int64]bool) ([]AutoLink, error) {
	matches, err := p.coord.Vector().Search(ctx, centroid, autoLinkSearchWidth)
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

	best := make(map[int64]float64)
	for _, h := range hydrated {
		if h.ResourceID == resourceID || !inSet[h.ResourceID] {
			continue
		}
		score := float64(scores[h.VectorID])
		if score > best[h.ResourceID] {
			best[h.ResourceID] = score
		}
	}

	out := make([]AutoLink, 0, len(best))
	for id, score := range best {
		out = append(out, AutoLink{SourceResourceID: resourceID, TargetResourceID: id, Similarity: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].TargetResourceID < out[j].TargetResourceID
	})
	return out, nil
}

func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
