package chunk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/tokens"
)

// textDoc is the bleve document indexed for each chunk.
type textDoc struct {
	Project string `json:"project"`
	Content string `json:"content"`
}

// MemStore is an in-memory Store. Text search runs over an in-memory bleve
// index with a code-aware analyzer; similarity search is a linear cosine
// scan.
type MemStore struct {
	mu         sync.RWMutex
	chunks     map[string]Chunk
	byNode     map[string]map[string]bool      // nodeID -> chunkIDs
	embeddings map[string]map[string]Embedding // chunkID -> model -> embedding
	text       bleve.Index
}

// NewMemStore creates an empty MemStore.
func NewMemStore() (*MemStore, error) {
	idx, err := bleve.NewMemOnly(textMapping())
	if err != nil {
		return nil, fmt.Errorf("create text index: %w", err)
	}
	return &MemStore{
		chunks:     make(map[string]Chunk),
		byNode:     make(map[string]map[string]bool),
		embeddings: make(map[string]map[string]Embedding),
		text:       idx,
	}, nil
}

func textMapping() mapping.IndexMapping {
	project := bleve.NewTextFieldMapping()
	project.Analyzer = keyword.Name
	project.IncludeInAll = false

	content := bleve.NewTextFieldMapping()
	content.Analyzer = codeAnalyzerName

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("project", project)
	doc.AddFieldMappingsAt("content", content)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = codeAnalyzerName
	return im
}

func (m *MemStore) InitSchema(context.Context) error { return nil }

func (m *MemStore) Close() error {
	return m.text.Close()
}

func (m *MemStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return ckgerr.Wrap(ckgerr.Timeout, "upsert chunks", err)
	}
	if err := validateChunks(chunks); err != nil {
		return ckgerr.Wrap(ckgerr.InvalidArgument, "upsert chunks", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLocked(nil, chunks)
}

func (m *MemStore) UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error {
	if err := ctx.Err(); err != nil {
		return ckgerr.Wrap(ckgerr.Timeout, "upsert embeddings", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range embeddings {
		if _, ok := m.chunks[e.ChunkID]; !ok {
			return ckgerr.Errorf(ckgerr.IndexCorruption, "embedding for missing chunk %s", e.ChunkID)
		}
	}
	for _, e := range embeddings {
		byModel := m.embeddings[e.ChunkID]
		if byModel == nil {
			byModel = make(map[string]Embedding)
			m.embeddings[e.ChunkID] = byModel
		}
		e.Vector = append([]float32(nil), e.Vector...)
		byModel[e.Model] = e
	}
	return nil
}

func (m *MemStore) DeleteByNode(ctx context.Context, nodeID string) error {
	return m.DeleteByNodes(ctx, []string{nodeID})
}

func (m *MemStore) DeleteByNodes(ctx context.Context, nodeIDs []string) error {
	return m.ReplaceNodes(ctx, nodeIDs, nil)
}

func (m *MemStore) ReplaceNodes(ctx context.Context, nodeIDs []string, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return ckgerr.Wrap(ckgerr.Timeout, "replace chunks", err)
	}
	if err := validateChunks(chunks); err != nil {
		return ckgerr.Wrap(ckgerr.InvalidArgument, "replace chunks", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLocked(nodeIDs, chunks)
}

// replaceLocked removes the chunks of nodeIDs, then stores chunks. The text
// index is updated in a single bleve batch.
func (m *MemStore) replaceLocked(nodeIDs []string, chunks []Chunk) error {
	incoming := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		incoming[c.ID] = c
	}

	batch := m.text.NewBatch()
	for _, nodeID := range nodeIDs {
		for id := range m.byNode[nodeID] {
			if next, ok := incoming[id]; !ok || next.ContentHash != m.chunks[id].ContentHash {
				delete(m.embeddings, id)
			}
			if _, ok := incoming[id]; !ok {
				batch.Delete(id)
			}
			delete(m.chunks, id)
		}
		delete(m.byNode, nodeID)
	}

	for _, c := range chunks {
		if old, ok := m.chunks[c.ID]; ok {
			if old.ContentHash != c.ContentHash {
				delete(m.embeddings, c.ID)
			}
			if old.NodeID != c.NodeID {
				delete(m.byNode[old.NodeID], c.ID)
			}
		}
		m.chunks[c.ID] = c
		set := m.byNode[c.NodeID]
		if set == nil {
			set = make(map[string]bool)
			m.byNode[c.NodeID] = set
		}
		set[c.ID] = true
		if err := batch.Index(c.ID, textDoc{Project: c.ProjectID, Content: c.Content}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := m.text.Batch(batch); err != nil {
		return fmt.Errorf("update text index: %w", err)
	}
	return nil
}

func (m *MemStore) ChunksByNode(ctx context.Context, nodeID string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "chunks by node", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chunk, 0, len(m.byNode[nodeID]))
	for id := range m.byNode[nodeID] {
		out = append(out, m.chunks[id])
	}
	sortChunks(out)
	return out, nil
}

func (m *MemStore) Embeddings(ctx context.Context, chunkIDs []string, model string) ([]Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "embeddings", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Embedding
	for _, id := range chunkIDs {
		if e, ok := m.embeddings[id][model]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) SimilaritySearch(ctx context.Context, projectID, model string, vector []float32, limit int, minScore float64) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "similarity search", err)
	}
	minScore = minScoreOrDefault(minScore)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []ScoredChunk
	for id, byModel := range m.embeddings {
		e, ok := byModel[model]
		if !ok {
			continue
		}
		c := m.chunks[id]
		if c.ProjectID != projectID {
			continue
		}
		if score := Cosine(vector, e.Vector); score >= minScore {
			hits = append(hits, ScoredChunk{Chunk: c, Score: score})
		}
	}
	sortScored(hits)
	return truncate(hits, limit), nil
}

func (m *MemStore) TextSearch(ctx context.Context, projectID, text string, limit int) ([]ScoredChunk, error) {
	words := tokens.Words(text)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(strings.Join(words, " "))
	match.SetField("content")
	match.Analyzer = codeAnalyzerName
	project := bleve.NewTermQuery(projectID)
	project.SetField("project")
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(match, project), limit, 0, false)

	m.mu.RLock()
	defer m.mu.RUnlock()
	res, err := m.text.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ckgerr.Wrap(ckgerr.Timeout, "text search", err)
		}
		return nil, ckgerr.Wrap(ckgerr.StoreUnavailable, "text search", err)
	}
	hits := make([]ScoredChunk, 0, len(res.Hits))
	for _, h := range res.Hits {
		c, ok := m.chunks[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, ScoredChunk{Chunk: c, Score: h.Score})
	}
	normalize(hits)
	sortScored(hits)
	return hits, nil
}

func (m *MemStore) Stats(ctx context.Context, projectID string) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "chunk stats", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := &Stats{}
	for id, c := range m.chunks {
		if c.ProjectID != projectID {
			continue
		}
		s.Chunks++
		s.Embeddings += len(m.embeddings[id])
	}
	return s, nil
}

func (m *MemStore) NodeIDs(ctx context.Context, projectID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "chunk node ids", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for nodeID, ids := range m.byNode {
		for id := range ids {
			if m.chunks[id].ProjectID == projectID {
				out = append(out, nodeID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// sortChunks orders chunks by file, start line, ordinal, then id.
func sortChunks(cs []Chunk) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.ID < b.ID
	})
}
