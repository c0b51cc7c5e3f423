package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/apperrors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite3", cfg.Relational.Driver)
	assert.Equal(t, "flat", cfg.Vector.Provider)
	assert.Equal(t, 1000, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 200, cfg.Chunking.OverlapSize)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 10, cfg.Runtime.MaxConcurrentOps)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "  " }, "data_dir"},
		{"empty sqlite path", func(c *Config) { c.Relational.Path = "" }, "relational path"},
		{"unknown driver", func(c *Config) { c.Relational.Driver = "oracle" }, "unknown relational driver"},
		{"empty index path", func(c *Config) { c.Vector.IndexPath = "" }, "index path"},
		{"zero dimension", func(c *Config) { c.Vector.Dimension = 0 }, "dimension"},
		{"dim mismatch", func(c *Config) { c.Embedding.Dimension = 768 }, "does not match"},
		{"bad metric", func(c *Config) { c.Vector.Metric = "dot" }, "metric"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, "API key"},
		{"overlap too large", func(c *Config) { c.Chunking.OverlapSize = 1000 }, "overlap_size"},
		{"zero ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }, "ttl"},
		{"zero concurrency", func(c *Config) { c.Runtime.MaxConcurrentOps = 0 }, "max_concurrent_operations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, apperrors.ErrorCodeConfig, apperrors.Code(err))
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
	t.Setenv(EnvPrefix+"MAX_CHUNK_SIZE", "512")
	t.Setenv(EnvPrefix+"OVERLAP_SIZE", "64")
	t.Setenv(EnvPrefix+"EMBEDDING_DIM", "256")
	t.Setenv(EnvPrefix+"CACHE_URI", "localhost:6379")
	t.Setenv(EnvPrefix+"LOG_FILE", "server.log")

	cfg := DefaultConfig()
	cfg.loadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 64, cfg.Chunking.OverlapSize)
	assert.Equal(t, 256, cfg.Vector.Dimension)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.True(t, cfg.CacheConfigured())
	assert.False(t, cfg.GraphConfigured())
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Logging.File = "server.log"

	require.NoError(t, cfg.ResolvePaths())

	assert.True(t, filepath.IsAbs(cfg.Relational.Path))
	assert.True(t, filepath.IsAbs(cfg.Vector.IndexPath))
	assert.Equal(t, filepath.Join(dir, "primary.db"), cfg.Relational.Path)
	assert.Equal(t, filepath.Join(dir, "vector_index"), cfg.Vector.IndexPath)
	assert.Equal(t, filepath.Join(dir, "logs", "server.log"), cfg.Logging.File)
}

func TestResolvePathsKeepsAbsolute(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Vector.IndexPath = filepath.Join(other, "idx")

	require.NoError(t, cfg.ResolvePaths())
	assert.Equal(t, filepath.Join(other, "idx"), cfg.Vector.IndexPath)
}
