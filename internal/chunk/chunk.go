// Package chunk stores text chunks and their embedding vectors and serves
// similarity and full-text queries over them.
package chunk

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/viterin/vek/vek32"
	"github.com/zeebo/xxh3"
)

// Type classifies a chunk.
type Type string

const (
	TypeSignature      Type = "signature"
	TypeImplementation Type = "implementation"
	TypeDocumentation  Type = "documentation"
)

// DefaultMinScore is the similarity floor applied when a caller passes 0.
const DefaultMinScore = 0.7

// Chunk is a bounded span of text owned by a graph node.
type Chunk struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	NodeID      string `json:"nodeId"`
	FilePath    string `json:"filePath"`
	ChunkType   Type   `json:"chunkType"`
	Content     string `json:"content"`
	TokenCount  int    `json:"tokenCount"`
	StartLine   int    `json:"startLine"`
	EndLine     int    `json:"endLine"`
	Ordinal     int    `json:"ordinal"`
	ContentHash string `json:"contentHash"`
}

// Embedding is the vector of exactly one chunk under one model.
type Embedding struct {
	ChunkID     string    `json:"chunkId"`
	Model       string    `json:"model"`
	Vector      []float32 `json:"vector"`
	ContentHash string    `json:"contentHash"` // hash of the chunk content that was embedded
}

// ScoredChunk is a query hit. Score is in (0, 1].
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Stats summarizes one project's chunk store.
type Stats struct {
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
}

// Store persists chunks and embeddings. Deleting a chunk deletes its
// embeddings in the same operation.
// Implementations: MemStore, SQLiteStore, PgStore.
type Store interface {
	io.Closer

	InitSchema(ctx context.Context) error

	UpsertChunks(ctx context.Context, chunks []Chunk) error
	UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error

	DeleteByNode(ctx context.Context, nodeID string) error
	DeleteByNodes(ctx context.Context, nodeIDs []string) error

	// ReplaceNodes deletes every chunk owned by nodeIDs and stores chunks in
	// one operation. Embeddings survive only for chunks whose id and content
	// hash are unchanged.
	ReplaceNodes(ctx context.Context, nodeIDs []string, chunks []Chunk) error

	ChunksByNode(ctx context.Context, nodeID string) ([]Chunk, error)

	// NodeIDs returns the distinct node ids owning chunks in the project,
	// sorted. The consistency check uses it to find orphaned chunks.
	NodeIDs(ctx context.Context, projectID string) ([]string, error)

	// Embeddings returns the stored embeddings of chunkIDs under model.
	Embeddings(ctx context.Context, chunkIDs []string, model string) ([]Embedding, error)

	// SimilaritySearch ranks the project's chunks embedded with model by
	// cosine similarity to vector, dropping hits below minScore.
	SimilaritySearch(ctx context.Context, projectID, model string, vector []float32, limit int, minScore float64) ([]ScoredChunk, error)

	// TextSearch ranks the project's chunks by lexical relevance.
	TextSearch(ctx context.Context, projectID, query string, limit int) ([]ScoredChunk, error)

	Stats(ctx context.Context, projectID string) (*Stats, error)
}

var idNamespace = uuid.MustParse("2c9a41e7-5b0d-4f8e-b6c3-7d1e9f0a2b54")

// ID returns the deterministic id of a chunk.
func ID(projectID, nodeID string, t Type, ordinal int) string {
	key := "chunk\x00" + projectID + "\x00" + nodeID + "\x00" + string(t) + "\x00" + strconv.Itoa(ordinal)
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Hash returns the content hash stored on chunks and embeddings.
func Hash(content string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(content))
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := vek32.Dot(a, a)
	nb := vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
}

// sortScored orders hits by score descending, then id.
func sortScored(hits []ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// normalize scales raw lexical scores into (0, 1] relative to the best hit.
func normalize(hits []ScoredChunk) {
	best := 0.0
	for _, h := range hits {
		if h.Score > best {
			best = h.Score
		}
	}
	if best <= 0 {
		for i := range hits {
			hits[i].Score = 1
		}
		return
	}
	for i := range hits {
		hits[i].Score /= best
		if hits[i].Score <= 0 {
			hits[i].Score = math.SmallestNonzeroFloat64
		}
	}
}

func truncate(hits []ScoredChunk, limit int) []ScoredChunk {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func minScoreOrDefault(s float64) float64 {
	if s <= 0 {
		return DefaultMinScore
	}
	return s
}

func validateChunks(chunks []Chunk) error {
	for _, c := range chunks {
		if c.ID == "" || c.NodeID == "" || c.ProjectID == "" {
			return fmt.Errorf("chunk %q: id, nodeId and projectId are required", c.ID)
		}
	}
	return nil
}
