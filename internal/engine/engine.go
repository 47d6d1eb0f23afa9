// Package engine wires the stores, the indexer and the query services into a
// single facade used by the CLI and the MCP server.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/config"
	"github.com/dusk-indust/ckg/internal/embed"
	"github.com/dusk-indust/ckg/internal/extract"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/indexer"
	"github.com/dusk-indust/ckg/internal/logging"
	"github.com/dusk-indust/ckg/internal/parse"
	"github.com/dusk-indust/ckg/internal/retrieval"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

// Options overrides parts of the configured wiring. Stores set here are owned
// by the caller and not closed by Engine.Close.
type Options struct {
	Graph      graph.Store
	Chunks     chunk.Store
	Embedder   embed.Embedder
	Logger     *slog.Logger
	OnProgress func(indexer.ProgressEvent)
}

// Engine is the code knowledge graph: indexing plus every query operation.
type Engine struct {
	cfg       *config.Config
	graph     graph.Store
	chunks    chunk.Store
	parser    parse.Parser
	embedder  embed.Embedder
	indexer   *indexer.Indexer
	symbols   *symbolic.Index
	retrieval *retrieval.Builder
	log       *slog.Logger

	closers []func() error
}

// Open builds an Engine from cfg. A nil cfg uses config.Default().
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.InvalidArgument, "open engine", err)
	}
	log := logging.OrDefault(opts.Logger)
	e := &Engine{cfg: cfg, log: log}

	var err error
	e.graph = opts.Graph
	if e.graph == nil {
		if e.graph, err = openGraph(cfg.Store); err != nil {
			return nil, err
		}
		e.closers = append(e.closers, e.graph.Close)
	}
	e.chunks = opts.Chunks
	if e.chunks == nil {
		if e.chunks, err = openChunks(ctx, cfg.Store); err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, e.chunks.Close)
	}
	if err := e.initSchema(ctx); err != nil {
		e.Close()
		return nil, err
	}

	e.embedder = opts.Embedder
	if e.embedder == nil {
		if e.embedder, err = embed.New(cfg.Embedder); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.parser = parse.NewTreeSitterParser()
	e.closers = append(e.closers, e.parser.Close)

	e.indexer, err = indexer.New(indexer.Options{
		Graph:     e.graph,
		Chunks:    e.chunks,
		Parser:    e.parser,
		Embedder:  e.embedder,
		Resolvers: extract.NewResolvers(),
		Config:    cfg.Indexer,
		Filter: indexer.FilterOptions{
			Languages:       cfg.Languages,
			ExcludeDirs:     cfg.ExcludeDirs,
			ExcludePatterns: cfg.ExcludePatterns,
		},
		MaxTokens:    cfg.Chunking.MaxTokens,
		StoreTimeout: cfg.Store.Timeout,
		Logger:       log,
		OnProgress:   opts.OnProgress,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.symbols = symbolic.New(e.graph, log)
	e.retrieval = retrieval.New(e.graph, e.chunks, e.embedder, cfg.Retrieval, log).WithStoreTimeout(cfg.Store.Timeout)

	log.Debug("engine opened", "graph", cfg.Store.Graph, "chunks", cfg.Store.Chunks, "embedder", e.EmbedderModel())
	return e, nil
}

func (e *Engine) initSchema(ctx context.Context) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.graph.InitSchema(ctx); err != nil {
		return fmt.Errorf("init graph schema: %w", err)
	}
	if err := e.chunks.InitSchema(ctx); err != nil {
		return fmt.Errorf("init chunk schema: %w", err)
	}
	return nil
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Store.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.Store.Timeout)
}

// Close releases the stores and parser the engine opened, in reverse order.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Graph returns the graph store.
func (e *Engine) Graph() graph.Store { return e.graph }

// EmbedderModel names the embedding model, or "" when embeddings are off.
func (e *Engine) EmbedderModel() string {
	if e.embedder == nil {
		return ""
	}
	return e.embedder.Model()
}

// BuildIndex indexes the tree at root as projectID. Incremental builds
// re-parse only files whose content changed since the last build.
func (e *Engine) BuildIndex(ctx context.Context, projectID, root string, incremental bool) (indexer.BatchReport, error) {
	if projectID == "" {
		return indexer.BatchReport{}, ckgerr.New(ckgerr.InvalidArgument, "project id is required")
	}
	return e.indexer.Build(ctx, projectID, root, incremental)
}

// Watch keeps projectID's index current until ctx is cancelled. The project
// must have been built first.
func (e *Engine) Watch(ctx context.Context, projectID string) error {
	w, err := indexer.NewWatcher(e.indexer, projectID)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.indexer.Run(ctx) })
	g.Go(func() error { return w.Run(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Notify queues a change reported by an external watcher.
func (e *Engine) Notify(ctx context.Context, ev indexer.Event) error {
	return e.indexer.Enqueue(ctx, ev)
}

// Flush applies every queued change now.
func (e *Engine) Flush(ctx context.Context) (indexer.BatchReport, error) {
	return e.indexer.Flush(ctx)
}

// BuildContext assembles the context for query within maxTokens.
func (e *Engine) BuildContext(ctx context.Context, projectID, query string, maxTokens int, opts retrieval.Options) retrieval.Payload {
	return e.retrieval.BuildContext(ctx, projectID, query, maxTokens, opts)
}

// FindDefinitions returns the symbols named name, best match first.
func (e *Engine) FindDefinitions(ctx context.Context, projectID, name, hintFile string) ([]graph.Node, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.symbols.FindDefinitions(ctx, projectID, name, hintFile)
}

// Reference is one use of a symbol together with the node it comes from.
type Reference struct {
	From graph.Node `json:"from"`
	Edge graph.Edge `json:"edge"`
}

// FindReferences returns the uses of name with their source nodes.
func (e *Engine) FindReferences(ctx context.Context, projectID, name string) ([]Reference, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	edges, err := e.symbols.FindReferences(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	out := make([]Reference, 0, len(edges))
	for _, edge := range edges {
		n, err := e.graph.GetNode(ctx, edge.FromID)
		if err != nil {
			return nil, fmt.Errorf("find references %q: %w", name, err)
		}
		if n == nil {
			continue
		}
		out = append(out, Reference{From: *n, Edge: edge})
	}
	return out, nil
}

// AnalyzeImpact reports how widely name is used.
func (e *Engine) AnalyzeImpact(ctx context.Context, projectID, name string) (*symbolic.Impact, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.symbols.AnalyzeImpact(ctx, projectID, name)
}

// FindUnusedExports returns exported symbols nothing references.
func (e *Engine) FindUnusedExports(ctx context.Context, projectID string) ([]graph.Node, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.symbols.FindUnusedExports(ctx, projectID)
}

// FindCircularDependencies returns each import cycle as its files.
func (e *Engine) FindCircularDependencies(ctx context.Context, projectID string) ([][]graph.Node, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.symbols.FindCircularDependencies(ctx, projectID)
}

// ImportClusters groups files connected by imports.
func (e *Engine) ImportClusters(ctx context.Context, projectID string) ([]symbolic.Cluster, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.symbols.ImportClusters(ctx, projectID)
}

// maxDependencyDepth caps Dependencies traversals.
const maxDependencyDepth = 10

// Dependencies walks the graph from a symbol, or from a file when name is
// empty, and returns the start node with everything within depth hops.
// DirectionOut follows what the start uses, DirectionIn what uses it. An
// unknown start yields a nil node and no error.
func (e *Engine) Dependencies(ctx context.Context, projectID, name, path string, dir graph.Direction, depth int) (*graph.Node, []graph.Neighbor, error) {
	if name == "" && path == "" {
		return nil, nil, ckgerr.New(ckgerr.InvalidArgument, "a symbol name or a file path is required")
	}
	if depth <= 0 {
		depth = graph.DefaultMaxDepth
	}
	depth = min(depth, maxDependencyDepth)

	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	var start *graph.Node
	if name != "" {
		defs, err := e.symbols.FindDefinitions(ctx, projectID, name, path)
		if err != nil {
			return nil, nil, err
		}
		if len(defs) > 0 {
			start = &defs[0]
		}
	} else {
		n, err := e.graph.GetNode(ctx, graph.NodeID(projectID, path, graph.KindFile, path, 1))
		if err != nil {
			return nil, nil, err
		}
		start = n
	}
	if start == nil {
		return nil, nil, nil
	}

	neighbors, err := e.graph.Neighbors(ctx, start.ID, dir, depth, depth)
	if err != nil {
		return nil, nil, err
	}
	out := make([]graph.Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Node.ID != start.ID {
			out = append(out, n)
		}
	}
	return start, out, nil
}

// CheckConsistency verifies referential integrity across both stores.
func (e *Engine) CheckConsistency(ctx context.Context, projectID string) error {
	return e.indexer.CheckConsistency(ctx, projectID)
}

// Status summarises a project's index.
type Status struct {
	ProjectID   string               `json:"projectId"`
	Root        string               `json:"root,omitempty"`
	GraphStore  string               `json:"graphStore"`
	ChunkStore  string               `json:"chunkStore"`
	Embedder    string               `json:"embedder,omitempty"`
	Graph       graph.Stats          `json:"graph"`
	Chunks      chunk.Stats          `json:"chunks"`
	Pending     int                  `json:"pending"`
	Diagnostics []indexer.Diagnostic `json:"diagnostics,omitempty"`
	CheckedAt   time.Time            `json:"checkedAt"`
}

// Status returns index statistics and the outstanding diagnostics.
func (e *Engine) Status(ctx context.Context, projectID string) (*Status, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	gs, err := e.graph.Stats(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("graph stats: %w", err)
	}
	cs, err := e.chunks.Stats(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("chunk stats: %w", err)
	}
	root, _ := e.indexer.Root(projectID)
	return &Status{
		ProjectID:   projectID,
		Root:        root,
		GraphStore:  e.cfg.Store.Graph,
		ChunkStore:  e.cfg.Store.Chunks,
		Embedder:    e.EmbedderModel(),
		Graph:       *gs,
		Chunks:      *cs,
		Pending:     e.indexer.Pending(),
		Diagnostics: e.indexer.Diagnostics(projectID),
		CheckedAt:   time.Now().UTC(),
	}, nil
}
