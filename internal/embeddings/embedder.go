// Package embeddings turns text into dense vectors. Two providers
// exist: the OpenAI embeddings API and a deterministic local hasher
// for offline and test setups.
package embeddings

import (
	"context"
	"fmt"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// Embedder is the vectorization contract. Output dimension is fixed
// for the lifetime of the process and must match the vector index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// New builds the configured embedder.
func New(cfg config.EmbeddingConfig, logger logging.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "local":
		return NewLocalEmbedder(cfg.Dimension), nil
	case "openai":
		return NewOpenAIEmbedder(cfg, logger)
	default:
		return nil, apperrors.New(apperrors.ErrorCodeConfig,
			fmt.Sprintf("unknown embedding provider: %s", cfg.Provider), nil)
	}
}
