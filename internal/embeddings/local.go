package embeddings

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// LocalEmbedder hashes token n-grams into a fixed-width vector. It is
// deterministic, needs no network, and preserves enough lexical
// overlap for ranking tests and offline use. It is not a semantic
// model.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder builds a hasher with the given output width.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	return &LocalEmbedder{dimension: dimension}
}

// Embed maps each token and token bigram into a bucket and
// L2-normalizes the result.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.bump(vec, tok, 1.0)
		if i > 0 {
			e.bump(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension reports the output width.
func (e *LocalEmbedder) Dimension() int { return e.dimension }

func (e *LocalEmbedder) bump(vec []float32, token string, weight float32) {
	sum := blake2b.Sum256([]byte(token))
	bucket := binary.LittleEndian.Uint32(sum[:4]) % uint32(len(vec))
	// The fifth hash byte signs the contribution so buckets cancel
	// rather than saturate.
	if sum[4]&1 == 0 {
		vec[bucket] += weight
	} else {
		vec[bucket] -= weight
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
