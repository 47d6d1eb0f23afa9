package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Indexer.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Indexer.BatchInterval)
	assert.Equal(t, 0.7, cfg.Retrieval.MinScore)
	assert.Equal(t, Weights{Exact: 0.40, Semantic: 0.35, Recency: 0.10, Proximity: 0.15}, cfg.Retrieval.Weights)
	assert.Equal(t, 3, cfg.Retrieval.MaxDepth)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := `
languages: [go]
indexer:
  batchSize: 10
  batchInterval: 500ms
chunking:
  maxTokens: 128
retrieval:
  weights:
    exact: 1
    semantic: 0
    recency: 0
    proximity: 0
store:
  graph: memory
  chunks: sqlite
  chunkDSN: ckg.db
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ckg.yml"), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, cfg.Languages)
	assert.Equal(t, 10, cfg.Indexer.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Indexer.BatchInterval)
	assert.Equal(t, 128, cfg.Chunking.MaxTokens)
	assert.Equal(t, 1.0, cfg.Retrieval.Weights.Exact)
	assert.Equal(t, "sqlite", cfg.Store.Chunks)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Indexer.MaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CKG_WORKERS", "3")
	t.Setenv("CKG_EMBEDDER", "none")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Indexer.Workers)
	assert.Equal(t, "none", cfg.Embedder.Provider)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CKG_CHUNK_MAX_TOKENS=64\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CKG_CHUNK_MAX_TOKENS") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Chunking.MaxTokens)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ckg.yaml"), []byte("indexer: [oops"), 0o644))
	_, err := Load(dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Store.Chunks = "postgres"
	require.Error(t, cfg.Validate(), "postgres needs a DSN")

	cfg = Default()
	cfg.Embedder.Provider = "magic"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Retrieval.Weights.Recency = -1
	require.Error(t, cfg.Validate())
}
