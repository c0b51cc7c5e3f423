// Package config loads and validates the server configuration from
// defaults, an optional YAML file, a .env file, and LTMC_* environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ltmc/internal/apperrors"
)

// EnvPrefix is the uniform prefix for environment overrides.
const EnvPrefix = "LTMC_"

// Config is the single source of truth for the whole server.
type Config struct {
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Relational RelationalConfig `yaml:"relational" json:"relational"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Graph      GraphConfig      `yaml:"graph" json:"graph"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Embedding  EmbeddingConfig  `yaml:"embedding" json:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Runtime    RuntimeConfig    `yaml:"runtime" json:"runtime"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the optional HTTP mode.
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout_seconds" json:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds" json:"write_timeout_seconds"`
}

// RelationalConfig configures the primary store.
type RelationalConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the sqlite database file; a bare filename resolves under
	// DataDir. Ignored for postgres.
	Path string `yaml:"path" json:"path"`
	// DSN is the postgres connection string. Ignored for sqlite.
	DSN          string `yaml:"dsn" json:"-"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Provider is "flat" (file-backed) or "qdrant".
	Provider string `yaml:"provider" json:"provider"`
	// IndexPath is the flat index file; a bare filename resolves under
	// DataDir.
	IndexPath string `yaml:"index_path" json:"index_path"`
	// Dimension must match the embedder output.
	Dimension  int    `yaml:"dimension" json:"dimension"`
	Metric     string `yaml:"metric" json:"metric"` // "cosine" or "l2"
	QdrantHost string `yaml:"qdrant_host" json:"qdrant_host"`
	QdrantPort int    `yaml:"qdrant_port" json:"qdrant_port"`
	QdrantKey  string `yaml:"qdrant_api_key" json:"-"`
	Collection string `yaml:"collection" json:"collection"`
}

// GraphConfig configures the neo4j backend. An empty URI means the graph
// store is absent and the server runs in degraded mode.
type GraphConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database"`
	Timeout  int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// CacheConfig configures redis. An empty URI disables the cache.
type CacheConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	Password   string `yaml:"password" json:"-"`
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttl_seconds"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	// Provider is "openai" or "local".
	Provider  string `yaml:"provider" json:"provider"`
	Model     string `yaml:"model" json:"model"`
	Dimension int    `yaml:"dimension" json:"dimension"`
	APIKey    string `yaml:"api_key" json:"-"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	TimeoutS  int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	RateRPM   int    `yaml:"rate_limit_rpm" json:"rate_limit_rpm"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// ChunkingConfig controls how resource content is split.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size" json:"max_chunk_size"` // tokens
	OverlapSize  int `yaml:"overlap_size" json:"overlap_size"`     // tokens
}

// RuntimeConfig bounds concurrency and deadlines.
type RuntimeConfig struct {
	MaxConcurrentOps int `yaml:"max_concurrent_operations" json:"max_concurrent_operations"`
	LightDeadlineS   int `yaml:"light_deadline_seconds" json:"light_deadline_seconds"`
	HeavyDeadlineS   int `yaml:"heavy_deadline_seconds" json:"heavy_deadline_seconds"`
}

// LoggingConfig controls log destination and level. Stdout is never a
// valid destination; the MCP protocol owns it.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the log file path; empty means stderr. A bare filename
	// resolves under <DataDir>/logs.
	File string `yaml:"file" json:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Server: ServerConfig{
			Host:         "localhost",
			Port:         9090,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Relational: RelationalConfig{
			Driver:       "sqlite3",
			Path:         "primary.db",
			MaxOpenConns: 10,
		},
		Vector: VectorConfig{
			Provider:   "flat",
			IndexPath:  "vector_index",
			Dimension:  384,
			Metric:     "cosine",
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "ltmc_chunks",
		},
		Graph: GraphConfig{
			User:    "neo4j",
			Timeout: 10,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Model:     "local-hash-v1",
			Dimension: 384,
			BaseURL:   "https://api.openai.com/v1",
			TimeoutS:  30,
			RateRPM:   3000,
			CacheSize: 1000,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 1000,
			OverlapSize:  200,
		},
		Runtime: RuntimeConfig{
			MaxConcurrentOps: 10,
			LightDeadlineS:   2,
			HeavyDeadlineS:   10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional file
// named by LTMC_CONFIG_FILE (or ./ltmc.yaml), a .env file, and
// environment overrides. Paths come back resolved to absolute.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(apperrors.ErrorCodeConfig, "loading .env file", err)
	}

	cfg := DefaultConfig()

	file := os.Getenv(EnvPrefix + "CONFIG_FILE")
	if file == "" {
		if _, err := os.Stat("ltmc.yaml"); err == nil {
			file = "ltmc.yaml"
		}
	}
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied config
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeConfig, fmt.Sprintf("reading config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeConfig, fmt.Sprintf("parsing config file %s", path), err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr("DATA_DIR", &c.DataDir)

	setStr("HOST", &c.Server.Host)
	setInt("PORT", &c.Server.Port)

	setStr("RELATIONAL_DRIVER", &c.Relational.Driver)
	setStr("RELATIONAL_DB_PATH", &c.Relational.Path)
	setStr("RELATIONAL_DSN", &c.Relational.DSN)
	setInt("RELATIONAL_MAX_OPEN_CONNS", &c.Relational.MaxOpenConns)

	setStr("VECTOR_PROVIDER", &c.Vector.Provider)
	setStr("VECTOR_INDEX_PATH", &c.Vector.IndexPath)
	setInt("EMBEDDING_DIM", &c.Vector.Dimension)
	setStr("VECTOR_METRIC", &c.Vector.Metric)
	setStr("QDRANT_HOST", &c.Vector.QdrantHost)
	setInt("QDRANT_PORT", &c.Vector.QdrantPort)
	setStr("QDRANT_API_KEY", &c.Vector.QdrantKey)
	setStr("QDRANT_COLLECTION", &c.Vector.Collection)

	setStr("GRAPH_URI", &c.Graph.URI)
	setStr("GRAPH_USER", &c.Graph.User)
	setStr("GRAPH_PASSWORD", &c.Graph.Password)
	setStr("GRAPH_DATABASE", &c.Graph.Database)
	setInt("GRAPH_TIMEOUT_SECONDS", &c.Graph.Timeout)

	setStr("CACHE_URI", &c.Cache.URI)
	setStr("CACHE_PASSWORD", &c.Cache.Password)
	setInt("CACHE_TTL_SECONDS", &c.Cache.TTLSeconds)

	setStr("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setStr("EMBEDDING_MODEL_NAME", &c.Embedding.Model)
	setStr("OPENAI_API_KEY", &c.Embedding.APIKey)
	setStr("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setInt("EMBEDDING_TIMEOUT_SECONDS", &c.Embedding.TimeoutS)
	setInt("EMBEDDING_RATE_LIMIT_RPM", &c.Embedding.RateRPM)
	setInt("EMBEDDING_CACHE_SIZE", &c.Embedding.CacheSize)
	// Both sides of the dimension contract come from the same variable.
	c.Embedding.Dimension = c.Vector.Dimension
	setInt("EMBEDDING_DIM", &c.Embedding.Dimension)

	// OPENAI_API_KEY without the prefix is honored for compatibility.
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Embedding.APIKey != "" && os.Getenv(EnvPrefix+"EMBEDDING_PROVIDER") == "" {
		c.Embedding.Provider = "openai"
	}

	setInt("MAX_CHUNK_SIZE", &c.Chunking.MaxChunkSize)
	setInt("OVERLAP_SIZE", &c.Chunking.OverlapSize)

	setInt("MAX_CONCURRENT_OPERATIONS", &c.Runtime.MaxConcurrentOps)

	setStr("LOG_LEVEL", &c.Logging.Level)
	setStr("LOG_FILE", &c.Logging.File)
}

func configErr(format string, args ...interface{}) error {
	return apperrors.New(apperrors.ErrorCodeConfig, fmt.Sprintf(format, args...), nil)
}

// Validate checks the configuration for fail-fast errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return configErr("data_dir cannot be empty")
	}
	switch c.Relational.Driver {
	case "sqlite3":
		if strings.TrimSpace(c.Relational.Path) == "" {
			return configErr("relational path cannot be empty for sqlite3")
		}
	case "postgres":
		if strings.TrimSpace(c.Relational.DSN) == "" {
			return configErr("relational dsn cannot be empty for postgres")
		}
	default:
		return configErr("unknown relational driver: %s", c.Relational.Driver)
	}
	switch c.Vector.Provider {
	case "flat":
		if strings.TrimSpace(c.Vector.IndexPath) == "" {
			return configErr("vector index path cannot be empty")
		}
	case "qdrant":
		if c.Vector.QdrantHost == "" || c.Vector.QdrantPort <= 0 {
			return configErr("qdrant host and port are required for the qdrant provider")
		}
		if c.Vector.Collection == "" {
			return configErr("qdrant collection cannot be empty")
		}
	default:
		return configErr("unknown vector provider: %s", c.Vector.Provider)
	}
	if c.Vector.Dimension <= 0 {
		return configErr("vector dimension must be positive")
	}
	if c.Vector.Metric != "cosine" && c.Vector.Metric != "l2" {
		return configErr("unknown vector metric: %s", c.Vector.Metric)
	}
	if c.Embedding.Dimension != c.Vector.Dimension {
		return configErr("embedding dimension %d does not match vector index dimension %d",
			c.Embedding.Dimension, c.Vector.Dimension)
	}
	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "local" {
		return configErr("unknown embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return configErr("openai embedding provider requires an API key")
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return configErr("max_chunk_size must be positive")
	}
	if c.Chunking.OverlapSize < 0 || c.Chunking.OverlapSize >= c.Chunking.MaxChunkSize {
		return configErr("overlap_size must be non-negative and smaller than max_chunk_size")
	}
	if c.Cache.TTLSeconds <= 0 {
		return configErr("cache ttl must be positive")
	}
	if c.Runtime.MaxConcurrentOps <= 0 {
		return configErr("max_concurrent_operations must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return configErr("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// ResolvePaths turns every path option into an absolute path, creating
// the data and log directories. Bare filenames resolve under DataDir.
func (c *Config) ResolvePaths() error {
	abs, err := filepath.Abs(c.DataDir)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeConfig, "resolving data_dir", err)
	}
	c.DataDir = abs
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeConfig, "creating data_dir", err)
	}

	if c.Relational.Driver == "sqlite3" {
		c.Relational.Path = resolveUnder(c.DataDir, c.Relational.Path)
	}
	if c.Vector.Provider == "flat" {
		c.Vector.IndexPath = resolveUnder(c.DataDir, c.Vector.IndexPath)
	}

	logDir := filepath.Join(c.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeConfig, "creating log directory", err)
	}
	if c.Logging.File != "" {
		c.Logging.File = resolveUnder(logDir, c.Logging.File)
	}
	return nil
}

// GraphConfigured reports whether a graph backend is addressed at all.
func (c *Config) GraphConfigured() bool { return strings.TrimSpace(c.Graph.URI) != "" }

// CacheConfigured reports whether a cache backend is addressed at all.
func (c *Config) CacheConfigured() bool { return strings.TrimSpace(c.Cache.URI) != "" }

func resolveUnder(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
