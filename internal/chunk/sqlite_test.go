package chunk

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, "sqlite", newTestSQLiteStore)
}

func TestSQLiteStore_InitSchemaIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.InitSchema(context.Background()))
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "chunks.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.InitSchema(ctx))
	c := testChunk("p", "n", TypeSignature, 0, "func Persisted()")
	require.NoError(t, s.UpsertChunks(ctx, []Chunk{c}))
	require.NoError(t, s.UpsertEmbeddings(ctx, []Embedding{embeddingFor(c, 0.5, -0.25)}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	require.NoError(t, s2.InitSchema(ctx))

	got, err := s2.ChunksByNode(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, []Chunk{c}, got)
	embs, err := s2.Embeddings(ctx, []string{c.ID}, testModel)
	require.NoError(t, err)
	require.Len(t, embs, 1)
	assert.Equal(t, []float32{0.5, -0.25}, embs[0].Vector)
}

func TestVectorBlobRoundTrip(t *testing.T) {
	v := []float32{1.5, -2, 0, 3.25}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}

func TestFTSQuery(t *testing.T) {
	assert.Equal(t, `"parse" OR "config"`, ftsQuery("parse(config)"))
	assert.Empty(t, ftsQuery("() {}"))
}
