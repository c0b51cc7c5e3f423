package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/config"
	"ltmc/internal/logging"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalEmbedderIsDeterministic(t *testing.T) {
	e := NewLocalEmbedder(384)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
}

func TestLocalEmbedderIsNormalized(t *testing.T) {
	e := NewLocalEmbedder(128)
	vec, err := e.Embed(context.Background(), "some text to embed")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestLocalEmbedderRanksOverlapHigher(t *testing.T) {
	e := NewLocalEmbedder(384)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "the quick brown fox jumps")
	near, _ := e.Embed(ctx, "a quick brown fox runs")
	far, _ := e.Embed(ctx, "database migration checklist")

	assert.Greater(t, cosine(query, near), cosine(query, far))
}

func TestLocalEmbedBatch(t *testing.T) {
	e := NewLocalEmbedder(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	single, _ := e.Embed(context.Background(), "two")
	assert.Equal(t, single, vecs[1])
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "cohere"}, logging.NewNoopLogger())
	assert.Error(t, err)
}

func newFakeOpenAI(t *testing.T, dimension int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		for i := range req.Input {
			vec := make([]float32, dimension)
			vec[i%dimension] = 1
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func openAITestConfig(url string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		Dimension: 8,
		APIKey:    "test-key",
		BaseURL:   url,
		TimeoutS:  5,
		RateRPM:   60000,
		CacheSize: 10,
	}
}

func TestOpenAIEmbedderCachesResults(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOpenAI(t, 8, &calls)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(openAITestConfig(srv.URL), logging.NewNoopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAIEmbedBatchFillsFromCache(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOpenAI(t, 8, &calls)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(openAITestConfig(srv.URL), logging.NewNoopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Embed(ctx, "cached text")
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(ctx, []string{"cached text", "fresh text"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.NotNil(t, vecs[0])
	require.NotNil(t, vecs[1])
	// One call for the warmup, one for the single missing text.
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIEmbedderSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(openAITestConfig(srv.URL), logging.NewNoopLogger())
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(config.EmbeddingConfig{Provider: "openai"}, logging.NewNoopLogger())
	assert.Error(t, err)
}
