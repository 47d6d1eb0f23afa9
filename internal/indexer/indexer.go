package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/config"
	"github.com/dusk-indust/ckg/internal/embed"
	"github.com/dusk-indust/ckg/internal/extract"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/logging"
	"github.com/dusk-indust/ckg/internal/parse"
)

// ErrShed is returned by Enqueue when the queue stayed full and the event
// was dropped.
var ErrShed = errors.New("indexer: queue full, event shed")

const (
	// shedWait is how long Enqueue waits for queue space before shedding.
	shedWait = 250 * time.Millisecond
	// embedBatch caps the number of texts per embedder call.
	embedBatch = 64
)

// Options configures an Indexer.
type Options struct {
	Graph     graph.Store
	Chunks    chunk.Store
	Parser    parse.Parser
	Embedder  embed.Embedder // nil disables embeddings
	Resolvers *extract.Resolvers

	Config       config.IndexerConfig
	Filter       FilterOptions
	MaxTokens    int           // chunk size cap
	StoreTimeout time.Duration // per store call; 0 disables

	Logger     *slog.Logger
	OnProgress func(ProgressEvent) // called synchronously; may be nil
}

// Indexer applies file events to the graph and chunk stores. Events are
// coalesced in a bounded queue and processed in batches, one batch at a
// time, each on a bounded worker pool.
type Indexer struct {
	graph     graph.Store
	chunks    chunk.Store
	parser    parse.Parser
	embedder  embed.Embedder
	resolvers *extract.Resolvers
	pipeline  *extract.Pipeline
	linker    *linker

	cfg          config.IndexerConfig
	filter       FilterOptions
	storeTimeout time.Duration
	log          *slog.Logger
	onProgress   func(ProgressEvent)

	queue *queue
	diags *diagnostics
	stale *staleFiles

	mu    sync.RWMutex
	roots map[string]string // project id -> absolute root

	batchMu sync.Mutex // batches never overlap
}

// New creates an Indexer. Zero config fields take the documented defaults.
func New(opts Options) (*Indexer, error) {
	if opts.Graph == nil || opts.Chunks == nil || opts.Parser == nil {
		return nil, ckgerr.New(ckgerr.InvalidArgument, "indexer: graph store, chunk store and parser are required")
	}
	cfg := withDefaults(opts.Config)
	resolvers := opts.Resolvers
	if resolvers == nil {
		resolvers = extract.NewResolvers()
	}
	return &Indexer{
		graph:        opts.Graph,
		chunks:       opts.Chunks,
		parser:       opts.Parser,
		embedder:     opts.Embedder,
		resolvers:    resolvers,
		pipeline:     extract.NewPipeline(resolvers, opts.MaxTokens),
		linker:       &linker{store: opts.Graph},
		cfg:          cfg,
		filter:       opts.Filter,
		storeTimeout: opts.StoreTimeout,
		log:          logging.OrDefault(opts.Logger).With("component", "indexer"),
		onProgress:   opts.OnProgress,
		queue:        newQueue(cfg.QueueSize, cfg.BatchSize),
		diags:        newDiagnostics(),
		stale:        newStaleFiles(),
		roots:        make(map[string]string),
	}, nil
}

func withDefaults(c config.IndexerConfig) config.IndexerConfig {
	d := config.Default().Indexer
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = d.BatchInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	return c
}

// AddProject registers root as the working tree of projectID.
func (ix *Indexer) AddProject(projectID, root string) error {
	if projectID == "" {
		return ckgerr.New(ckgerr.InvalidArgument, "project id is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return ckgerr.Wrap(ckgerr.InvalidArgument, "project root", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return ckgerr.Errorf(ckgerr.InvalidArgument, "project root %s is not a directory", root)
	}
	ix.mu.Lock()
	ix.roots[projectID] = abs
	ix.mu.Unlock()
	return nil
}

// Root returns the registered root of projectID.
func (ix *Indexer) Root(projectID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	root, ok := ix.roots[projectID]
	return root, ok
}

// Diagnostics returns the outstanding per-file diagnostics of projectID.
func (ix *Indexer) Diagnostics(projectID string) []Diagnostic {
	return ix.diags.list(projectID)
}

// Pending returns the number of queued events.
func (ix *Indexer) Pending() int { return ix.queue.len() }

// Enqueue adds ev to the queue. When the queue is full it waits briefly for
// space, then drops the event, logs a warning and returns ErrShed.
func (ix *Indexer) Enqueue(ctx context.Context, ev Event) error {
	if _, ok := ix.Root(ev.ProjectID); !ok {
		return ckgerr.Errorf(ckgerr.InvalidArgument, "unknown project %q", ev.ProjectID)
	}
	p, err := cleanPath(ev.Path)
	if err != nil {
		return err
	}
	ev.Path = p

	var timer *time.Timer
	for {
		if ix.queue.push(ev) {
			ix.emit(ProgressEvent{ProjectID: ev.ProjectID, Path: ev.Path, State: StateQueued})
			return nil
		}
		if timer == nil {
			timer = time.NewTimer(shedWait)
			defer timer.Stop()
		}
		select {
		case <-ix.queue.space:
		case <-timer.C:
			ix.log.Warn("queue full, shedding event", "project", ev.ProjectID, "file", ev.Path, "type", ev.Type)
			return ErrShed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run processes batches until ctx is cancelled: whenever a full batch is
// waiting, and otherwise every batch interval. A batch in flight when ctx
// is cancelled runs to completion.
func (ix *Indexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(ix.cfg.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ix.queue.ready:
			ix.processNext(ctx)
		case <-ticker.C:
			ix.requeueStale(ctx)
			if _, err := ix.Flush(ctx); err != nil {
				ix.log.Error("flush failed", "err", err)
			}
		}
	}
}

// Flush processes queued events until the queue is empty.
func (ix *Indexer) Flush(ctx context.Context) (BatchReport, error) {
	var total BatchReport
	start := time.Now()
	for ix.queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rep, ok := ix.processNext(ctx)
		if !ok {
			break
		}
		total.add(rep)
	}
	total.Duration = time.Since(start)
	return total, nil
}

func (ix *Indexer) processNext(ctx context.Context) (BatchReport, bool) {
	ix.batchMu.Lock()
	defer ix.batchMu.Unlock()
	events := ix.queue.take(ix.cfg.BatchSize)
	if len(events) == 0 {
		return BatchReport{}, false
	}
	return ix.processBatch(ctx, events), true
}

// processBatch applies events grouped by project. The caller holds batchMu.
func (ix *Indexer) processBatch(ctx context.Context, events []Event) BatchReport {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	var order []string
	byProject := make(map[string][]Event)
	for _, ev := range events {
		if _, ok := byProject[ev.ProjectID]; !ok {
			order = append(order, ev.ProjectID)
		}
		byProject[ev.ProjectID] = append(byProject[ev.ProjectID], ev)
	}

	var total BatchReport
	for _, projectID := range order {
		evs := byProject[projectID]
		root, ok := ix.Root(projectID)
		if !ok {
			ix.log.Warn("dropping events for unknown project", "project", projectID, "events", len(evs))
			total.Files += len(evs)
			total.Skipped += len(evs)
			continue
		}
		paths := make([]string, len(evs))
		for i, ev := range evs {
			paths[i] = ev.Path
		}
		total.add(ix.apply(ctx, projectID, root, paths, false))
	}
	total.Duration = time.Since(start)
	ix.log.Info("batch applied",
		"files", total.Files, "indexed", total.Indexed, "unchanged", total.Unchanged,
		"deleted", total.Deleted, "failed", total.Failed, "dependents", total.Dependents,
		"edges", total.Edges, "elapsed", total.Duration)
	return total
}

// outcome is the result of applying one file.
type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeUnchanged
	outcomeDeleted
	outcomeFailed
	outcomeSkipped
)

// fileResult is what one worker reports back.
type fileResult struct {
	outcome outcome
	names   []string // names defined or referenced by the new version
	kept    bool     // parse errors left the previous version in place
}

// apply brings paths of one project in line with the working tree, runs the
// dependents round and relinks every affected name. Whether a path is an
// upsert or a delete is decided by the filesystem, so replaying any event
// for a path converges to the same state.
func (ix *Indexer) apply(ctx context.Context, projectID, root string, paths []string, force bool) BatchReport {
	rep := BatchReport{Files: len(paths)}
	resolver := ix.resolvers.Get(projectID)
	inBatch := make(map[string]bool, len(paths))
	names := make(map[string]bool)

	var deleted, created []string
	for _, p := range paths {
		inBatch[p] = true
		names[p] = true
		ix.collectNames(ctx, projectID, p, names)
		if exists(root, p) {
			if !resolver.Has(p) {
				created = append(created, p)
			}
			resolver.AddFile(p)
		} else {
			deleted = append(deleted, p)
			resolver.RemoveFile(p)
		}
	}

	results := ix.run(ctx, projectID, root, paths, force)
	for _, r := range results {
		rep.count(r.outcome)
		for _, n := range r.names {
			names[n] = true
		}
	}

	if len(deleted) > 0 || len(created) > 0 {
		deps := ix.dependents(ctx, projectID, deleted, len(created) > 0, inBatch)
		if len(deps) > 0 {
			rep.Dependents = len(deps)
			for _, p := range deps {
				ix.collectNames(ctx, projectID, p, names)
			}
			for _, r := range ix.run(ctx, projectID, root, deps, true) {
				for _, n := range r.names {
					names[n] = true
				}
			}
		}
	}

	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	edges, err := ix.link(ctx, projectID, list)
	if err != nil {
		ix.log.Error("link failed", "project", projectID, "names", len(list), "err", err)
	}
	rep.Edges = edges
	return rep
}

func (r *BatchReport) count(o outcome) {
	switch o {
	case outcomeIndexed:
		r.Indexed++
	case outcomeUnchanged:
		r.Unchanged++
	case outcomeDeleted:
		r.Deleted++
	case outcomeFailed:
		r.Failed++
	case outcomeSkipped:
		r.Skipped++
	}
}

// run applies paths on the worker pool. One file failing never stops the
// others.
func (ix *Indexer) run(ctx context.Context, projectID, root string, paths []string, force bool) []fileResult {
	results := make([]fileResult, len(paths))
	var g errgroup.Group
	g.SetLimit(ix.cfg.Workers)
	for i, p := range paths {
		g.Go(func() error {
			results[i] = ix.applyFile(ctx, projectID, root, p, force)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// link relinks names with the store timeout and transient retries.
func (ix *Indexer) link(ctx context.Context, projectID string, names []string) (int, error) {
	var edges int
	err := ix.retry(ctx, func(int) error {
		sctx, cancel := ix.storeContext(ctx)
		defer cancel()
		n, err := ix.linker.link(sctx, projectID, names)
		edges = n
		return err
	})
	return edges, err
}

// applyFile runs one file through Extracting -> Applying -> Done|Failed,
// retrying transient failures with exponential backoff and jitter.
func (ix *Indexer) applyFile(ctx context.Context, projectID, root, p string, force bool) fileResult {
	start := time.Now()
	var res fileResult
	attempts := 0
	err := ix.retry(ctx, func(attempt int) error {
		attempts = attempt
		ix.emit(ProgressEvent{ProjectID: projectID, Path: p, State: StateExtracting, Attempt: attempt})
		var err error
		// A retry may follow a partial apply, so it never trusts the hash.
		res, err = ix.indexFile(ctx, projectID, root, p, force || attempt > 1 || ix.stale.has(projectID, p))
		if err != nil && ckgerr.IsTransient(err) {
			ix.log.Warn("file attempt failed", "project", projectID, "file", p, "attempt", attempt, "err", err)
			ix.emit(ProgressEvent{ProjectID: projectID, Path: p, State: StateFailed, Attempt: attempt, Message: err.Error()})
		}
		return err
	})
	if err != nil {
		ix.diags.record(projectID, p, err)
		ix.markStale(ctx, projectID, p)
		ix.log.Error("file failed", "project", projectID, "file", p, "attempts", attempts, "err", err)
		ix.emit(ProgressEvent{ProjectID: projectID, Path: p, State: StateFailed, Attempt: attempts, Message: err.Error(), Elapsed: time.Since(start)})
		return fileResult{outcome: outcomeFailed}
	}
	if !res.kept {
		ix.stale.clear(projectID, p)
	}
	ix.emit(ProgressEvent{ProjectID: projectID, Path: p, State: StateDone, Attempt: attempts, Message: res.outcome.String(), Elapsed: time.Since(start)})
	return res
}

func (o outcome) String() string {
	switch o {
	case outcomeIndexed:
		return "indexed"
	case outcomeUnchanged:
		return "unchanged"
	case outcomeDeleted:
		return "deleted"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// indexFile is one attempt at bringing p in line with the working tree.
func (ix *Indexer) indexFile(ctx context.Context, projectID, root, p string, force bool) (fileResult, error) {
	full := filepath.Join(root, filepath.FromSlash(p))
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return ix.deleteFile(ctx, projectID, p)
	}
	if err != nil {
		return fileResult{}, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return fileResult{outcome: outcomeSkipped}, nil
	}

	lang, ok := parse.DetectLanguage(p)
	if !ok {
		ix.diags.record(projectID, p, ckgerr.Errorf(ckgerr.UnsupportedLanguage, "%s: no parser for this file type", p))
		return fileResult{outcome: outcomeSkipped}, nil
	}
	source, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return ix.deleteFile(ctx, projectID, p)
	}
	if err != nil {
		return fileResult{}, fmt.Errorf("read %s: %w", p, err)
	}

	sctx, cancel := ix.storeContext(ctx)
	old, err := ix.graph.NodesByFile(sctx, projectID, p)
	cancel()
	if err != nil {
		return fileResult{}, err
	}
	var oldFile *graph.Node
	for i := range old {
		if old[i].Kind == graph.KindFile {
			oldFile = &old[i]
		}
	}
	if !force && oldFile != nil && oldFile.Meta(graph.MetaContentHash) == chunk.Hash(string(source)) {
		ix.diags.clear(projectID, p)
		return fileResult{outcome: outcomeUnchanged}, nil
	}

	tree, err := ix.parser.Parse(ctx, p, source, lang)
	if err != nil {
		if ckgerr.CodeOf(err) == "" {
			err = ckgerr.Wrap(ckgerr.ParseFailed, p, err)
		}
		return fileResult{}, err
	}
	result := ix.pipeline.Extract(p, tree, projectID)
	if result.Err != nil {
		ix.diags.record(projectID, p, result.Err)
		if oldFile != nil {
			ix.log.Warn("parse errors, keeping previous version", "project", projectID, "file", p, "err", result.Err)
			return fileResult{outcome: outcomeSkipped, kept: true}, nil
		}
		ix.log.Warn("parse errors, indexing partial result", "project", projectID, "file", p, "err", result.Err)
	}
	for i := range result.Nodes {
		if result.Nodes[i].Kind == graph.KindFile {
			result.Nodes[i].Metadata[graph.MetaModTime] = info.ModTime().UTC().Format(time.RFC3339)
		}
	}

	ix.emit(ProgressEvent{ProjectID: projectID, Path: p, State: StateApplying})
	sctx, cancel = ix.storeContext(ctx)
	removed, err := ix.graph.ReplaceFile(sctx, result.FileGraph(projectID, p))
	cancel()
	if err != nil {
		return fileResult{}, err
	}

	owners := append(nodeIDs(old), removed...)
	owners = append(owners, result.NodeIDs()...)
	sctx, cancel = ix.storeContext(ctx)
	err = ix.chunks.ReplaceNodes(sctx, dedupe(owners), result.Chunks)
	cancel()
	if err != nil {
		return fileResult{}, err
	}
	if err := ix.embedChunks(ctx, result.Chunks); err != nil {
		return fileResult{}, err
	}

	if result.Err == nil {
		ix.diags.clear(projectID, p)
	}
	return fileResult{outcome: outcomeIndexed, names: resultNames(result)}, nil
}

// markStale records that p failed after a possibly partial apply and clears
// the content hash on its file node, so later builds re-extract it even in
// a fresh process. Clearing the hash is best effort: the store may be the
// reason p failed.
func (ix *Indexer) markStale(ctx context.Context, projectID, p string) {
	ix.stale.mark(projectID, p)
	sctx, cancel := ix.storeContext(ctx)
	defer cancel()
	nodes, err := ix.graph.NodesByFile(sctx, projectID, p)
	if err != nil {
		ix.log.Warn("mark stale: nodes", "project", projectID, "file", p, "err", err)
		return
	}
	for _, n := range nodes {
		if n.Kind != graph.KindFile || n.Meta(graph.MetaContentHash) == "" {
			continue
		}
		n.Metadata = maps.Clone(n.Metadata)
		delete(n.Metadata, graph.MetaContentHash)
		if err := ix.graph.UpsertNodes(sctx, []graph.Node{n}); err != nil {
			ix.log.Warn("mark stale: clear hash", "project", projectID, "file", p, "err", err)
		}
	}
}

// requeueStale queues every stale file for another attempt.
func (ix *Indexer) requeueStale(ctx context.Context) {
	for projectID, paths := range ix.stale.all() {
		for _, p := range paths {
			if err := ix.Enqueue(ctx, Event{ProjectID: projectID, Path: p, Type: EventModified}); err != nil {
				ix.log.Warn("requeue stale file", "project", projectID, "file", p, "err", err)
				return
			}
		}
	}
}

// deleteFile removes p's nodes, edges, refs and chunks.
func (ix *Indexer) deleteFile(ctx context.Context, projectID, p string) (fileResult, error) {
	sctx, cancel := ix.storeContext(ctx)
	defer cancel()
	old, err := ix.graph.NodesByFile(sctx, projectID, p)
	if err != nil {
		return fileResult{}, err
	}
	removed, err := ix.graph.DeleteByFile(sctx, projectID, p)
	if err != nil {
		return fileResult{}, err
	}
	if ids := dedupe(append(nodeIDs(old), removed...)); len(ids) > 0 {
		if err := ix.chunks.DeleteByNodes(sctx, ids); err != nil {
			return fileResult{}, err
		}
	}
	ix.diags.clear(projectID, p)
	ix.resolvers.Get(projectID).RemoveFile(p)
	if len(old) == 0 {
		return fileResult{outcome: outcomeSkipped}, nil
	}
	return fileResult{outcome: outcomeDeleted}, nil
}

// embedChunks embeds the chunks that have no embedding under the current
// model for their current content.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []chunk.Chunk) error {
	if ix.embedder == nil || len(chunks) == 0 {
		return nil
	}
	model := ix.embedder.Model()
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	sctx, cancel := ix.storeContext(ctx)
	have, err := ix.chunks.Embeddings(sctx, ids, model)
	cancel()
	if err != nil {
		return err
	}
	current := make(map[string]string, len(have))
	for _, e := range have {
		current[e.ChunkID] = e.ContentHash
	}
	var todo []chunk.Chunk
	for _, c := range chunks {
		if current[c.ID] != c.ContentHash {
			todo = append(todo, c)
		}
	}

	for start := 0; start < len(todo); start += embedBatch {
		batch := todo[start:min(start+embedBatch, len(todo))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return ckgerr.Errorf(ckgerr.EmbedderUnavailable, "embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		embeddings := make([]chunk.Embedding, len(batch))
		for i, c := range batch {
			embeddings[i] = chunk.Embedding{ChunkID: c.ID, Model: model, Vector: vectors[i], ContentHash: c.ContentHash}
		}
		sctx, cancel := ix.storeContext(ctx)
		err = ix.chunks.UpsertEmbeddings(sctx, embeddings)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// dependents returns files outside the batch that must be re-extracted:
// importers of deleted files, and files whose unresolved imports now
// resolve after files were created.
func (ix *Indexer) dependents(ctx context.Context, projectID string, deleted []string, created bool, inBatch map[string]bool) []string {
	sctx, cancel := ix.storeContext(ctx)
	defer cancel()
	deps := make(map[string]bool)

	if len(deleted) > 0 {
		refs, err := ix.graph.RefsByName(sctx, projectID, deleted)
		if err != nil {
			ix.log.Error("dependents: importers", "project", projectID, "err", err)
		}
		for _, r := range refs {
			if r.Relationship == graph.RelImports && !inBatch[r.FilePath] {
				deps[r.FilePath] = true
			}
		}
	}
	if created {
		endpoints, err := ix.graph.NodesByKind(sctx, projectID, graph.KindEndpoint)
		if err != nil {
			ix.log.Error("dependents: endpoints", "project", projectID, "err", err)
		}
		resolver := ix.resolvers.Get(projectID)
		for _, n := range endpoints {
			if inBatch[n.FilePath] || deps[n.FilePath] {
				continue
			}
			if _, ok := resolver.Resolve(n.Meta(graph.MetaSpecifier), n.FilePath, n.Language); ok {
				deps[n.FilePath] = true
			}
		}
	}

	out := make([]string, 0, len(deps))
	for p := range deps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// collectNames adds the names p currently defines or references to names.
func (ix *Indexer) collectNames(ctx context.Context, projectID, p string, names map[string]bool) {
	sctx, cancel := ix.storeContext(ctx)
	defer cancel()
	nodes, err := ix.graph.NodesByFile(sctx, projectID, p)
	if err != nil {
		ix.log.Warn("collect names: nodes", "project", projectID, "file", p, "err", err)
	}
	for _, n := range nodes {
		if n.Kind.IsSymbol() {
			names[n.Name] = true
		}
	}
	refs, err := ix.graph.RefsByFile(sctx, projectID, p)
	if err != nil {
		ix.log.Warn("collect names: refs", "project", projectID, "file", p, "err", err)
	}
	for _, r := range refs {
		names[r.Name] = true
	}
}

func resultNames(r extract.Result) []string {
	var names []string
	for _, n := range r.Nodes {
		if n.Kind.IsSymbol() || n.Kind == graph.KindFile {
			names = append(names, n.Name)
		}
	}
	for _, ref := range r.Refs {
		names = append(names, ref.Name)
	}
	return names
}

// retry calls fn until it succeeds, fails permanently or runs out of
// attempts. Only transient errors are retried.
func (ix *Indexer) retry(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !ckgerr.IsTransient(err) || attempt >= ix.cfg.MaxRetries {
			return err
		}
		select {
		case <-time.After(backoff(attempt, ix.cfg.RetryBaseDelay, ix.cfg.RetryMaxDelay)):
		case <-ctx.Done():
			return err
		}
	}
}

// backoff returns base*2^(attempt-1) capped at maxDelay, with +/-20% jitter.
func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	d = min(d, maxDelay)
	jitter := (rand.Float64()*2 - 1) * 0.2 * float64(d)
	d += time.Duration(jitter)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (ix *Indexer) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ix.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ix.storeTimeout)
}

func (ix *Indexer) emit(ev ProgressEvent) {
	if ix.onProgress != nil {
		ix.onProgress(ev)
	}
}

// cleanPath normalizes an event path to a clean, slash-separated path
// relative to the project root.
func cleanPath(p string) (string, error) {
	p = path.Clean(filepath.ToSlash(p))
	if p == "." || p == "" || path.IsAbs(p) || p == ".." || len(p) > 2 && p[:3] == "../" {
		return "", ckgerr.Errorf(ckgerr.InvalidArgument, "path %q must be relative to the project root", p)
	}
	return p, nil
}

func exists(root, p string) bool {
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
	return err == nil && !info.IsDir()
}
