package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/apperrors"
	"ltmc/internal/cache"
	"ltmc/internal/chunking"
	"ltmc/internal/config"
	"ltmc/internal/coordinator"
	"ltmc/internal/embeddings"
	"ltmc/internal/graph"
	"ltmc/internal/logging"
	"ltmc/internal/relational"
	"ltmc/internal/vector"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	rel, err := relational.Open(ctx, config.RelationalConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(dir, "primary.db"),
	}, logging.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rel.Close() })

	idx, err := vector.OpenFlatIndex(filepath.Join(dir, "index"), 64, "cosine", logging.NewNoopLogger())
	require.NoError(t, err)

	gr, err := graph.Open(ctx, config.GraphConfig{Timeout: 1}, logging.NewNoopLogger())
	require.NoError(t, err)
	ca := cache.Open(ctx, config.CacheConfig{TTLSeconds: 300}, logging.NewNoopLogger())

	coord := coordinator.New(rel, idx, gr, ca,
		embeddings.NewLocalEmbedder(64),
		chunking.NewChunker(config.ChunkingConfig{MaxChunkSize: 40, OverlapSize: 5}),
		logging.NewNoopLogger())
	return New(coord, logging.NewNoopLogger())
}

func storeDoc(t *testing.T, p *Pipeline, name, content string) int64 {
	t.Helper()
	res, err := p.coord.StoreResource(context.Background(), name, relational.TypeDocument, content)
	require.NoError(t, err)
	return res.ResourceID
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	foxID := storeDoc(t, p, "fox.txt", "the quick brown fox jumps over the lazy dog")
	storeDoc(t, p, "ships.txt", "container ships crossed the pacific carrying electronics")
	storeDoc(t, p, "fox2.txt", "a fox is a small wild canine with a bushy tail")

	res, err := p.Retrieve(ctx, "quick brown fox", Options{TopK: 2})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, foxID, res.Chunks[0].ResourceID)
	assert.Equal(t, 1, res.Chunks[0].Rank)
	assert.Equal(t, 2, res.Chunks[1].Rank)
	assert.GreaterOrEqual(t, res.Chunks[0].Score, res.Chunks[1].Score)
	assert.False(t, res.FromCache)
}

func TestRetrieveTopKZeroReturnsEmpty(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	storeDoc(t, p, "a.txt", "the quick brown fox")

	res, err := p.Retrieve(ctx, "fox", Options{TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
}

func TestRetrieveRequiresQuery(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Retrieve(context.Background(), "  ", Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestRetrieveTypeFilter(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	storeDoc(t, p, "notes.txt", "fox fox fox")
	res, err := p.coord.StoreResource(ctx, "fox.go", relational.TypeCode, "func fox() { return }")
	require.NoError(t, err)

	out, err := p.Retrieve(ctx, "fox", Options{TopK: 10, TypeFilter: relational.TypeCode})
	require.NoError(t, err)
	require.NotEmpty(t, out.Chunks)
	for _, ch := range out.Chunks {
		assert.Equal(t, relational.TypeCode, ch.ResourceType)
		assert.Equal(t, res.ResourceID, ch.ResourceID)
	}
}

func TestRetrieveTieBreaksByPosition(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	// One resource, several identical chunks: identical scores must
	// rank by ascending position.
	content := ""
	for i := 0; i < 3; i++ {
		content += "alpha beta gamma delta epsilon zeta eta theta iota kappa " +
			"lambda mu nu xi omicron pi rho sigma tau upsilon " +
			"alpha beta gamma delta epsilon zeta eta theta iota kappa " +
			"lambda mu nu xi omicron pi rho sigma tau upsilon "
	}
	id := storeDoc(t, p, "repeat.txt", content)

	res, err := p.Retrieve(ctx, "alpha beta gamma", Options{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)

	lastPos := -1
	for _, ch := range res.Chunks {
		require.Equal(t, id, ch.ResourceID)
		if ch.Score == res.Chunks[0].Score {
			assert.Greater(t, ch.Position, lastPos)
			lastPos = ch.Position
		}
	}
}

func TestRetrieveGraphEnrichmentFallsBackToRelational(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	a := storeDoc(t, p, "a.txt", "the quick brown fox")
	b := storeDoc(t, p, "b.txt", "an unrelated shipping manifest")
	_, err := p.coord.CreateResourceLink(ctx, a, b, "references", 0.9, "")
	require.NoError(t, err)

	res, err := p.Retrieve(ctx, "quick fox", Options{TopK: 1, WithGraph: true})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.False(t, res.GraphAvailable)

	neighbors := res.Neighbors[a]
	require.Len(t, neighbors, 1)
	assert.Equal(t, b, neighbors[0].ResourceID)
	assert.Equal(t, "references", neighbors[0].LinkType)
	assert.InDelta(t, 0.9, neighbors[0].Weight, 1e-9)
}

func TestAskWithContextRecordsTurnAndLinks(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	storeDoc(t, p, "one.txt", "the quick brown fox jumps over the lazy dog")
	storeDoc(t, p, "two.txt", "foxes hunt at night in the forest")
	storeDoc(t, p, "three.txt", "unrelated quarterly financial report")

	res, err := p.AskWithContext(ctx, "fox", "c1", 2)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Positive(t, res.MessageID)
	assert.Equal(t, 2, res.LinkedChunks)

	msgs, err := p.coord.Relational().ChatsByConversation(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "assistant", msgs[0].Role)

	links, err := p.coord.Relational().ContextLinksByMessage(ctx, res.MessageID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	linked := map[int64]bool{}
	for _, l := range links {
		linked[l.ChunkID] = true
	}
	for _, ch := range res.Chunks {
		assert.True(t, linked[ch.ChunkID])
	}
}

func TestAskWithContextRequiresConversation(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.AskWithContext(context.Background(), "fox", "", 2)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestBuildContextHonorsTokenBudget(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	storeDoc(t, p, "long.txt", "fox fox fox fox fox fox fox fox fox fox "+
		"fox fox fox fox fox fox fox fox fox fox")
	storeDoc(t, p, "short.txt", "fox den")

	out, err := p.BuildContext(ctx, "fox", ContextOptions{TopK: 10, MaxTokens: 12})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.LessOrEqual(t, out.TokenCount, 12)
	assert.NotEmpty(t, out.Context)
	assert.NotEmpty(t, out.Sources)
}

func TestAutoLinkDocumentsIsIdempotent(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	a := storeDoc(t, p, "a.txt", "the quick brown fox jumps over the lazy dog")
	b := storeDoc(t, p, "b.txt", "the quick brown fox leaps over a sleepy dog")
	c := storeDoc(t, p, "c.txt", "quarterly shipping manifests for pacific freight")

	report, err := p.AutoLinkDocuments(ctx, []int64{a, b, c}, 0.5, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	require.NotZero(t, report.CreatedLinks)

	links, err := p.coord.Relational().LinksForResource(ctx, a, 10)
	require.NoError(t, err)
	require.NotEmpty(t, links)
	assert.Equal(t, "similar_to", links[0].LinkType)

	rerun, err := p.AutoLinkDocuments(ctx, []int64{a, b, c}, 0.5, 5)
	require.NoError(t, err)
	assert.Zero(t, rerun.CreatedLinks)
	assert.NotZero(t, rerun.SkippedExisting)

	again, err := p.coord.Relational().LinksForResource(ctx, a, 10)
	require.NoError(t, err)
	assert.Len(t, again, len(links))
}

func TestAutoLinkRespectsThreshold(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	a := storeDoc(t, p, "a.txt", "the quick brown fox jumps over the lazy dog")
	b := storeDoc(t, p, "b.txt", "completely disjoint vocabulary about maritime insurance")

	report, err := p.AutoLinkDocuments(ctx, []int64{a, b}, 0.99, 5)
	require.NoError(t, err)
	assert.Zero(t, report.CreatedLinks)
}
