package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

const testModel = "test-model"

func testChunk(project, nodeID string, t Type, ordinal int, content string) Chunk {
	return Chunk{
		ID:          ID(project, nodeID, t, ordinal),
		ProjectID:   project,
		NodeID:      nodeID,
		FilePath:    "src/" + nodeID + ".go",
		ChunkType:   t,
		Content:     content,
		TokenCount:  len(content),
		StartLine:   1 + ordinal,
		EndLine:     2 + ordinal,
		Ordinal:     ordinal,
		ContentHash: Hash(content),
	}
}

func embeddingFor(c Chunk, v ...float32) Embedding {
	return Embedding{ChunkID: c.ID, Model: testModel, Vector: v, ContentHash: c.ContentHash}
}

func chunkIDs(cs []Chunk) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func scoredIDs(hits []ScoredChunk) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

// runStoreSuite exercises the Store contract against any implementation.
// newStore must return a fresh store with an initialized schema. Each
// subtest uses its own project id so shared databases stay isolated.
func runStoreSuite(t *testing.T, project string, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("UpsertAndChunksByNode", func(t *testing.T) {
		s := newStore(t)
		p := project + "-upsert"
		sig := testChunk(p, "n1", TypeSignature, 0, "func Foo()")
		impl := testChunk(p, "n1", TypeImplementation, 1, "func Foo() { bar() }")
		require.NoError(t, s.UpsertChunks(ctx, []Chunk{impl, sig}))
		require.NoError(t, s.UpsertChunks(ctx, []Chunk{impl, sig}), "upsert is idempotent")

		got, err := s.ChunksByNode(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, []string{sig.ID, impl.ID}, chunkIDs(got))
		assert.Equal(t, sig, got[0])

		st, err := s.Stats(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Chunks)
	})

	t.Run("ChunksByNodeUnknown", func(t *testing.T) {
		s := newStore(t)
		got, err := s.ChunksByNode(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("InvalidChunkRejected", func(t *testing.T) {
		s := newStore(t)
		err := s.UpsertChunks(ctx, []Chunk{{ID: "x"}})
		require.Error(t, err)
		assert.True(t, ckgerr.HasCode(err, ckgerr.InvalidArgument))
	})

	t.Run("EmbeddingForMissingChunkRejected", func(t *testing.T) {
		s := newStore(t)
		err := s.UpsertEmbeddings(ctx, []Embedding{{ChunkID: "nope", Model: testModel, Vector: []float32{1}}})
		require.Error(t, err)
		assert.True(t, ckgerr.HasCode(err, ckgerr.IndexCorruption))
	})

	t.Run("DeleteByNodeCascadesEmbeddings", func(t *testing.T) {
		s := newStore(t)
		p := project + "-delete"
		a := testChunk(p, "na", TypeImplementation, 0, "alpha")
		b := testChunk(p, "nb", TypeImplementation, 0, "beta")
		require.NoError(t, s.UpsertChunks(ctx, []Chunk{a, b}))
		require.NoError(t, s.UpsertEmbeddings(ctx, []Embedding{embeddingFor(a, 1, 0), embeddingFor(b, 0, 1)}))

		require.NoError(t, s.DeleteByNode(ctx, "na"))

		got, err := s.ChunksByNode(ctx, "na")
		require.NoError(t, err)
		assert.Empty(t, got)
		embs, err := s.Embeddings(ctx, []string{a.ID, b.ID}, testModel)
		require.NoError(t, err)
		require.Len(t, embs, 1)
		assert.Equal(t, b.ID, embs[0].ChunkID)

		st, err := s.Stats(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, &Stats{Chunks: 1, Embeddings: 1}, st)
		nodes, err := s.NodeIDs(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"nb"}, nodes)

		require.NoError(t, s.DeleteByNodes(ctx, []string{"nb", "unknown"}))
		st, err = s.Stats(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, &Stats{}, st)
		nodes, err = s.NodeIDs(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("ReplaceNodesKeepsUnchangedEmbeddings", func(t *testing.T) {
		s := newStore(t)
		p := project + "-replace"
		same := testChunk(p, "n", TypeSignature, 0, "func Keep()")
		changed := testChunk(p, "n", TypeImplementation, 1, "func Keep() { old() }")
		gone := testChunk(p, "n", TypeDocumentation, 2, "// Keep keeps.")
		require.NoError(t, s.UpsertChunks(ctx, []Chunk{same, changed, gone}))
		require.NoError(t, s.UpsertEmbeddings(ctx, []Embedding{
			embeddingFor(same, 1, 0), embeddingFor(changed, 0, 1), embeddingFor(gone, 1, 1),
		}))

		changedNext := testChunk(p, "n", TypeImplementation, 1, "func Keep() { updated() }")
		require.NoError(t, s.ReplaceNodes(ctx, []string{"n"}, []Chunk{same, changedNext}))

		got, err := s.ChunksByNode(ctx, "n")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "func Keep() { updated() }", got[1].Content)

		embs, err := s.Embeddings(ctx, []string{same.ID, changed.ID, gone.ID}, testModel)
		require.NoError(t, err)
		require.Len(t, embs, 1, "only the unchanged chunk keeps its vector")
		assert.Equal(t, same.ID, embs[0].ChunkID)
		assert.Equal(t, []float32{1, 0}, embs[0].Vector)
	})

	t.Run("SimilaritySearch", func(t *testing.T) {
		s := newStore(t)
		p := project + "-sim"
		near := testChunk(p, "near", TypeImplementation, 0, "near")
		far := testChunk(p, "far", TypeImplementation, 0, "far")
		other := testChunk(p+"-other", "other", TypeImplementation, 0, "other")
		require.NoError(t, s.UpsertChunks(ctx, []Chunk{near, far, other}))
		require.NoError(t, s.UpsertEmbeddings(ctx, []Embedding{
			embeddingFor(near, 1, 0.1),
			embeddingFor(far, 0, 1),
			embeddingFor(other, 1, 0.1),
			{ChunkID: far.ID, Model: "other-model", Vector: []float32{1, 0}, ContentHash: far.ContentHash},
		}))

		hits, err := s.SimilaritySearch(ctx, p, testModel, []float32{1, 0}, 10, 0.7)
		require.NoError(t, err)
		require.Equal(t, []string{near.ID}, scoredIDs(hits), "far is below minScore, other is another project, other-model is never compared")
		assert.InDelta(t, 0.995, hits[0].Score, 0.01)

		hits, err = s.SimilaritySearch(ctx, p, testModel, []float32{1, 0}, 10, 0.01)
		require.NoError(t, err)
		assert.Equal(t, []string{near.ID}, scoredIDs(hits), "orthogonal vectors score zero")

		hits, err = s.SimilaritySearch(ctx, p, testModel, []float32{1, 0, 0}, 10, 0.1)
		require.NoError(t, err)
		assert.Empty(t, hits, "dimension mismatch never matches")
	})

	t.Run("TextSearch", func(t *testing.T) {
		s := newStore(t)
		p := project + "-text"
		a := testChunk(p, "a", TypeImplementation, 0, "func parseConfig(path string) error { return loadYaml(path) }")
		b := testChunk(p, "b", TypeImplementation, 0, "func render(w io.Writer) { fmt.Fprintln(w, config) }")
		c := testChunk(p, "c", TypeImplementation, 0, "func unrelated() {}")
		require.NoError(t, s.UpsertChunks(ctx, []Chunk{a, b, c}))

		hits, err := s.TextSearch(ctx, p, "loadYaml path", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, a.ID, hits[0].ID)
		assert.Equal(t, 1.0, hits[0].Score)
		for _, h := range hits {
			assert.Greater(t, h.Score, 0.0)
			assert.LessOrEqual(t, h.Score, 1.0)
			assert.NotEqual(t, c.ID, h.ID)
		}

		hits, err = s.TextSearch(ctx, p+"-none", "loadYaml", 10)
		require.NoError(t, err)
		assert.Empty(t, hits, "text search is project scoped")

		hits, err = s.TextSearch(ctx, p, "  ", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)

		require.NoError(t, s.DeleteByNode(ctx, "a"))
		hits, err = s.TextSearch(ctx, p, "loadYaml", 10)
		require.NoError(t, err)
		assert.Empty(t, hits, "deleted chunks leave the text index")
	})
}
