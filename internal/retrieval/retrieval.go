// Package retrieval builds token-bounded context payloads for a query by
// combining symbolic lookups with semantic chunk search.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/config"
	"github.com/dusk-indust/ckg/internal/embed"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/logging"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

const (
	// maxDefinitions caps the definitions the symbolic phase expands.
	maxDefinitions = 10
	// maxReferrers caps the referencing nodes the symbolic phase expands.
	maxReferrers = 10
)

// identifier matches queries that look like a symbol name, optionally
// qualified (pkg.Func, Class::method).
var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*((\.|::)[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// Options tunes one BuildContext call. The zero value runs every phase with
// the configured limits.
type Options struct {
	SkipSymbolic bool `json:"skipSymbolic,omitempty"`
	SkipSemantic bool `json:"skipSemantic,omitempty"`
	SkipRerank   bool `json:"skipRerank,omitempty"`
	SkipCallers  bool `json:"skipCallers,omitempty"` // omit nearest-caller signatures

	// HintFile is the caller's current file; candidates near it rank higher.
	HintFile string `json:"hintFile,omitempty"`

	Limit    int     `json:"limit,omitempty"`    // semantic candidates; 0 uses the config
	MinScore float64 `json:"minScore,omitempty"` // similarity floor; 0 uses the config
}

// Scores is the per-signal breakdown of a candidate's rank.
type Scores struct {
	Exact     float64 `json:"exact"`
	Semantic  float64 `json:"semantic"`
	Recency   float64 `json:"recency"`
	Proximity float64 `json:"proximity"`
}

// Item is one chunk included in a payload.
type Item struct {
	ChunkID    string     `json:"chunkId"`
	NodeID     string     `json:"nodeId"`
	FilePath   string     `json:"filePath"`
	ChunkType  chunk.Type `json:"chunkType"`
	StartLine  int        `json:"startLine"`
	EndLine    int        `json:"endLine"`
	TokenCount int        `json:"tokenCount"` // of the whole section, header and caller included
	Score      float64    `json:"score"`
	Scores     Scores     `json:"scores"`
	Sources    []string   `json:"sources"`
	Caller     string     `json:"caller,omitempty"`
}

// Payload is the assembled context. TokenCount never exceeds MaxTokens.
type Payload struct {
	Query      string   `json:"query"`
	ProjectID  string   `json:"projectId"`
	Items      []Item   `json:"items"`
	Content    string   `json:"content"`
	TokenCount int      `json:"tokenCount"`
	MaxTokens  int      `json:"maxTokens"`
	Candidates int      `json:"candidates"`
	Degraded   bool     `json:"degraded"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Candidate sources.
const (
	SourceDefinition = "definition"
	SourceReference  = "reference"
	SourceSemantic   = "semantic"
	SourceText       = "text"
)

// Builder answers BuildContext queries.
type Builder struct {
	graph    graph.Store
	chunks   chunk.Store
	symbols  *symbolic.Index
	embedder embed.Embedder
	cfg      config.RetrievalConfig
	log      *slog.Logger

	storeTimeout time.Duration
}

// New creates a Builder. embedder may be nil, in which case the semantic
// phase always uses text search.
func New(g graph.Store, c chunk.Store, embedder embed.Embedder, cfg config.RetrievalConfig, logger *slog.Logger) *Builder {
	d := config.Default().Retrieval
	if cfg.Weights == (config.Weights{}) {
		cfg.Weights = d.Weights
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = d.MinScore
	}
	if cfg.SemanticLimit <= 0 {
		cfg.SemanticLimit = d.SemanticLimit
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = d.MaxDepth
	}
	logger = logging.OrDefault(logger).With("component", "retrieval")
	return &Builder{
		graph:    g,
		chunks:   c,
		symbols:  symbolic.New(g, logger),
		embedder: embedder,
		cfg:      cfg,
		log:      logger,
	}
}

// candidate is a chunk under consideration.
type candidate struct {
	chunk   chunk.Chunk
	scores  Scores
	score   float64
	sources []string
	order   int // discovery order, used when reranking is skipped
}

// buildState carries one BuildContext call.
type buildState struct {
	*Builder
	projectID string
	query     string
	opts      Options
	byID      map[string]*candidate
	payload   Payload
}

// BuildContext returns the context for query in projectID within maxTokens.
// It never fails: store or embedder failures and an expired deadline yield
// a partial or empty payload with Degraded set and the reasons listed.
func (b *Builder) BuildContext(ctx context.Context, projectID, query string, maxTokens int, opts Options) Payload {
	s := &buildState{
		Builder:   b,
		projectID: projectID,
		query:     strings.TrimSpace(query),
		opts:      opts,
		byID:      make(map[string]*candidate),
		payload:   Payload{Query: query, ProjectID: projectID, MaxTokens: maxTokens, Items: []Item{}},
	}
	switch {
	case projectID == "":
		s.degrade("project id is required")
		return s.payload
	case s.query == "":
		return s.payload
	case maxTokens <= 0:
		return s.payload
	}

	if !opts.SkipSymbolic && s.checkDeadline(ctx, "symbolic") {
		s.symbolicPhase(ctx)
	}
	if !opts.SkipSemantic && s.checkDeadline(ctx, "semantic") {
		s.semanticPhase(ctx)
	}

	ranked := s.ranked(ctx, !opts.SkipRerank && s.checkDeadline(ctx, "rerank"))
	s.payload.Candidates = len(ranked)
	s.assemble(ctx, ranked, maxTokens)

	b.log.Debug("context built", "project", projectID, "query", query,
		"candidates", s.payload.Candidates, "items", len(s.payload.Items),
		"tokens", s.payload.TokenCount, "degraded", s.payload.Degraded)
	return s.payload
}

// checkDeadline reports whether phase may run.
func (s *buildState) checkDeadline(ctx context.Context, phase string) bool {
	if err := ctx.Err(); err != nil {
		s.degrade(fmt.Sprintf("%s phase skipped: %v", phase, err))
		return false
	}
	return true
}

func (s *buildState) degrade(reason string) {
	s.payload.Degraded = true
	s.payload.Reasons = append(s.payload.Reasons, reason)
	s.log.Warn("context degraded", "project", s.projectID, "reason", reason)
}

// add merges c into the candidate set, keeping the best of each signal.
func (s *buildState) add(c chunk.Chunk, source string, exact, semantic float64) {
	cand, ok := s.byID[c.ID]
	if !ok {
		cand = &candidate{chunk: c, order: len(s.byID)}
		s.byID[c.ID] = cand
	}
	cand.scores.Exact = max(cand.scores.Exact, exact)
	cand.scores.Semantic = max(cand.scores.Semantic, semantic)
	for _, src := range cand.sources {
		if src == source {
			return
		}
	}
	cand.sources = append(cand.sources, source)
}

// symbolicPhase adds the chunks of definitions and referrers of a
// symbol-like query.
func (s *buildState) symbolicPhase(ctx context.Context) {
	if !identifier.MatchString(s.query) {
		return
	}
	name := s.query
	if i := strings.LastIndexAny(name, ".:"); i >= 0 {
		name = name[i+1:]
	}

	defs, err := storeCall(ctx, s.storeTimeout, func(ctx context.Context) ([]graph.Node, error) {
		return s.symbols.FindDefinitions(ctx, s.projectID, name, s.opts.HintFile)
	})
	if err != nil {
		s.degrade(fmt.Sprintf("symbolic lookup failed: %v", err))
		return
	}
	if len(defs) > maxDefinitions {
		defs = defs[:maxDefinitions]
	}
	for _, d := range defs {
		exact := 1.0
		if d.Name != name {
			exact = 0.5
		}
		if !s.addNodeChunks(ctx, d.ID, SourceDefinition, exact) {
			return
		}
	}

	refs, err := storeCall(ctx, s.storeTimeout, func(ctx context.Context) ([]graph.Edge, error) {
		return s.symbols.FindReferences(ctx, s.projectID, name)
	})
	if err != nil {
		s.degrade(fmt.Sprintf("reference lookup failed: %v", err))
		return
	}
	seen := make(map[string]bool)
	for _, e := range refs {
		if seen[e.FromID] || len(seen) >= maxReferrers {
			continue
		}
		seen[e.FromID] = true
		if !s.addNodeChunks(ctx, e.FromID, SourceReference, 0.25) {
			return
		}
	}
}

// addNodeChunks adds the chunks of nodeID. It reports false when the chunk
// store timed out and the phase should stop.
func (s *buildState) addNodeChunks(ctx context.Context, nodeID, source string, exact float64) bool {
	chunks, err := storeCall(ctx, s.storeTimeout, func(ctx context.Context) ([]chunk.Chunk, error) {
		return s.chunks.ChunksByNode(ctx, nodeID)
	})
	if timedOut(err) {
		s.degrade(fmt.Sprintf("chunk lookup timed out: %v", err))
		return false
	}
	if err != nil {
		s.log.Warn("chunks of node", "project", s.projectID, "node", nodeID, "err", err)
		return true
	}
	for _, c := range chunks {
		s.add(c, source, exact, 0)
	}
	return true
}

// semanticPhase adds similarity hits for the query, falling back to text
// search when the embedder is unavailable or finds nothing.
func (s *buildState) semanticPhase(ctx context.Context) {
	limit := s.opts.Limit
	if limit <= 0 {
		limit = s.cfg.SemanticLimit
	}
	minScore := s.opts.MinScore
	if minScore <= 0 {
		minScore = s.cfg.MinScore
	}

	if s.embedder != nil {
		hits, err := s.similar(ctx, limit, minScore)
		if err == nil && len(hits) > 0 {
			for _, h := range hits {
				s.add(h.Chunk, SourceSemantic, 0, h.Score)
			}
			return
		}
		if err != nil {
			s.degrade(fmt.Sprintf("semantic search unavailable, using text search: %v", err))
		}
	}
	if !s.checkDeadline(ctx, "text search") {
		return
	}

	hits, err := storeCall(ctx, s.storeTimeout, func(ctx context.Context) ([]chunk.ScoredChunk, error) {
		return s.chunks.TextSearch(ctx, s.projectID, s.query, limit)
	})
	if err != nil {
		s.degrade(fmt.Sprintf("text search failed: %v", err))
		return
	}
	for _, h := range hits {
		s.add(h.Chunk, SourceText, 0, h.Score)
	}
}

func (s *buildState) similar(ctx context.Context, limit int, minScore float64) ([]chunk.ScoredChunk, error) {
	vector, err := s.embedder.Embed(ctx, s.query)
	if err != nil {
		return nil, err
	}
	return storeCall(ctx, s.storeTimeout, func(ctx context.Context) ([]chunk.ScoredChunk, error) {
		return s.chunks.SimilaritySearch(ctx, s.projectID, s.embedder.Model(), vector, limit, minScore)
	})
}
