package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds engine settings loaded from ckg.yml plus environment
// overrides.
type Config struct {
	Languages       []string        `yaml:"languages,omitempty"`
	ExcludeDirs     []string        `yaml:"excludeDirs,omitempty"`
	ExcludePatterns []string        `yaml:"excludePatterns,omitempty"`
	Indexer         IndexerConfig   `yaml:"indexer"`
	Chunking        ChunkingConfig  `yaml:"chunking"`
	Retrieval       RetrievalConfig `yaml:"retrieval"`
	Embedder        EmbedderConfig  `yaml:"embedder"`
	Store           StoreConfig     `yaml:"store"`
	Log             LogConfig       `yaml:"log"`
}

// IndexerConfig tunes the incremental indexer.
type IndexerConfig struct {
	BatchSize      int           `yaml:"batchSize"`
	BatchInterval  time.Duration `yaml:"batchInterval"`
	QueueSize      int           `yaml:"queueSize"`
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay"`
}

// ChunkingConfig bounds chunk sizes.
type ChunkingConfig struct {
	MaxTokens int `yaml:"maxTokens"`
}

// Weights are the rerank weights of the context builder.
type Weights struct {
	Exact     float64 `yaml:"exact"`
	Semantic  float64 `yaml:"semantic"`
	Recency   float64 `yaml:"recency"`
	Proximity float64 `yaml:"proximity"`
}

// RetrievalConfig tunes the context builder.
type RetrievalConfig struct {
	Weights       Weights `yaml:"weights"`
	MinScore      float64 `yaml:"minScore"`
	SemanticLimit int     `yaml:"semanticLimit"`
	MaxDepth      int     `yaml:"maxDepth"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Provider  string        `yaml:"provider"` // hash, openai, ollama, none
	Model     string        `yaml:"model,omitempty"`
	BaseURL   string        `yaml:"baseURL,omitempty"`
	APIKey    string        `yaml:"-"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cacheSize"`
}

// StoreConfig selects the graph and chunk store backends.
type StoreConfig struct {
	Graph     string        `yaml:"graph"` // memory, kuzu
	GraphPath string        `yaml:"graphPath,omitempty"`
	Chunks    string        `yaml:"chunks"` // memory, sqlite, postgres
	ChunkDSN  string        `yaml:"chunkDSN,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Languages:   []string{"go", "typescript", "javascript", "python", "rust"},
		ExcludeDirs: []string{".git", ".ckg", "node_modules", "vendor", "target", "dist", "build", "__pycache__"},
		Indexer: IndexerConfig{
			BatchSize:      100,
			BatchInterval:  2 * time.Second,
			QueueSize:      4096,
			Workers:        runtime.NumCPU(),
			MaxRetries:     5,
			RetryBaseDelay: 200 * time.Millisecond,
			RetryMaxDelay:  30 * time.Second,
		},
		Chunking: ChunkingConfig{MaxTokens: 512},
		Retrieval: RetrievalConfig{
			Weights:       Weights{Exact: 0.40, Semantic: 0.35, Recency: 0.10, Proximity: 0.15},
			MinScore:      0.7,
			SemanticLimit: 50,
			MaxDepth:      3,
		},
		Embedder: EmbedderConfig{
			Provider:  "hash",
			Dimension: 256,
			Timeout:   10 * time.Second,
			CacheSize: 1024,
		},
		Store: StoreConfig{
			Graph:   "memory",
			Chunks:  "memory",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads ckg.yml or ckg.yaml from dir on top of Default, then applies
// a .env file in dir (if any) and CKG_* environment overrides. A missing
// config file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"ckg.yml", "ckg.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}

	_ = godotenv.Load(filepath.Join(dir, ".env")) // optional
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CKG_* environment variables.
func (c *Config) ApplyEnv() {
	c.Log.Level = envOrDefault("CKG_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("CKG_LOG_FORMAT", c.Log.Format)
	c.Log.File = envOrDefault("CKG_LOG_FILE", c.Log.File)

	c.Indexer.Workers = envOrDefaultInt("CKG_WORKERS", c.Indexer.Workers)
	c.Indexer.BatchSize = envOrDefaultInt("CKG_BATCH_SIZE", c.Indexer.BatchSize)
	c.Chunking.MaxTokens = envOrDefaultInt("CKG_CHUNK_MAX_TOKENS", c.Chunking.MaxTokens)

	c.Embedder.Provider = envOrDefault("CKG_EMBEDDER", c.Embedder.Provider)
	c.Embedder.Model = envOrDefault("CKG_EMBEDDER_MODEL", c.Embedder.Model)
	c.Embedder.BaseURL = envOrDefault("CKG_EMBEDDER_URL", c.Embedder.BaseURL)
	c.Embedder.APIKey = envOrDefault("CKG_EMBEDDER_API_KEY", envOrDefault("OPENAI_API_KEY", c.Embedder.APIKey))
	c.Embedder.Dimension = envOrDefaultInt("CKG_EMBEDDER_DIMENSION", c.Embedder.Dimension)

	c.Store.Graph = envOrDefault("CKG_GRAPH_STORE", c.Store.Graph)
	c.Store.GraphPath = envOrDefault("CKG_GRAPH_PATH", c.Store.GraphPath)
	c.Store.Chunks = envOrDefault("CKG_CHUNK_STORE", c.Store.Chunks)
	c.Store.ChunkDSN = envOrDefault("CKG_CHUNK_DSN", c.Store.ChunkDSN)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Indexer.BatchSize <= 0 {
		errs = append(errs, errors.New("indexer.batchSize must be positive"))
	}
	if c.Indexer.BatchInterval <= 0 {
		errs = append(errs, errors.New("indexer.batchInterval must be positive"))
	}
	if c.Indexer.QueueSize <= 0 {
		errs = append(errs, errors.New("indexer.queueSize must be positive"))
	}
	if c.Chunking.MaxTokens < 16 {
		errs = append(errs, errors.New("chunking.maxTokens must be at least 16"))
	}
	w := c.Retrieval.Weights
	if w.Exact < 0 || w.Semantic < 0 || w.Recency < 0 || w.Proximity < 0 {
		errs = append(errs, errors.New("retrieval.weights must be non-negative"))
	}
	switch c.Embedder.Provider {
	case "hash", "openai", "ollama", "none":
	default:
		errs = append(errs, fmt.Errorf("embedder.provider %q is not one of hash, openai, ollama, none", c.Embedder.Provider))
	}
	switch c.Store.Graph {
	case "memory", "kuzu":
	default:
		errs = append(errs, fmt.Errorf("store.graph %q is not one of memory, kuzu", c.Store.Graph))
	}
	switch c.Store.Chunks {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.chunks %q is not one of memory, sqlite, postgres", c.Store.Chunks))
	}
	if c.Store.Chunks == "postgres" && c.Store.ChunkDSN == "" {
		errs = append(errs, errors.New("store.chunkDSN is required for postgres"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}
