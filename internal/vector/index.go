// Package vector persists dense embeddings keyed by externally
// assigned vector ids. The default flat index lives in a single file
// with atomic saves; a qdrant-backed provider covers remote setups.
package vector

import (
	"context"
	"fmt"
	"path/filepath"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// Match is one similarity hit.
type Match struct {
	VectorID int64   `json:"vector_id"`
	Score    float32 `json:"score"`
}

// Index is the vector store contract. Add replaces an existing id;
// Search returns hits in descending similarity; Save must never leave
// a partial file at the canonical path.
type Index interface {
	Add(ctx context.Context, vectorID int64, vec []float32) error
	Search(ctx context.Context, query []float32, k int) ([]Match, error)
	Remove(ctx context.Context, vectorID int64) error
	IDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Save(ctx context.Context) error
	Close() error
}

// Open builds the configured index provider.
func Open(ctx context.Context, cfg config.VectorConfig, logger logging.Logger) (Index, error) {
	switch cfg.Provider {
	case "flat":
		path := cfg.IndexPath
		if path == "" {
			return nil, apperrors.New(apperrors.ErrorCodeConfig, "vector index path is empty", nil)
		}
		if !filepath.IsAbs(path) {
			return nil, apperrors.New(apperrors.ErrorCodeConfig,
				fmt.Sprintf("vector index path must be absolute, got %q", path), nil)
		}
		return OpenFlatIndex(path, cfg.Dimension, cfg.Metric, logger)
	case "qdrant":
		return OpenQdrantIndex(ctx, cfg, logger)
	default:
		return nil, apperrors.New(apperrors.ErrorCodeConfig,
			fmt.Sprintf("unknown vector provider: %s", cfg.Provider), nil)
	}
}
