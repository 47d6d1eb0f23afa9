package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/extract"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/parse"
)

// FilterOptions selects the files of a working tree that get indexed.
type FilterOptions struct {
	Languages       []string // empty means every supported language
	ExcludeDirs     []string // directory names skipped anywhere in the tree
	ExcludePatterns []string // globs matched against the path, its base name and its suffixes
}

// pathFilter applies FilterOptions and the root .gitignore to
// slash-separated paths relative to the project root.
type pathFilter struct {
	gitignore *ignore.GitIgnore
	dirs      map[string]bool
	patterns  []glob.Glob
	langs     map[graph.Language]bool
}

func newPathFilter(root string, opts FilterOptions) (*pathFilter, error) {
	f := &pathFilter{dirs: make(map[string]bool, len(opts.ExcludeDirs))}
	for _, d := range opts.ExcludeDirs {
		f.dirs[d] = true
	}
	for _, p := range opts.ExcludePatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, ckgerr.Wrap(ckgerr.InvalidArgument, "exclude pattern "+p, err)
		}
		f.patterns = append(f.patterns, g)
	}
	if len(opts.Languages) > 0 {
		f.langs = make(map[graph.Language]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			f.langs[graph.Language(strings.ToLower(l))] = true
		}
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err == nil {
		f.gitignore = gi
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .gitignore: %w", err)
	}
	return f, nil
}

// skipDir reports whether the directory rel is excluded.
func (f *pathFilter) skipDir(rel string) bool {
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if f.dirs[part] {
			return true
		}
	}
	return f.ignored(rel+"/") || f.excluded(rel)
}

// include reports whether the file rel is indexed.
func (f *pathFilter) include(rel string) bool {
	lang, ok := parse.DetectLanguage(rel)
	if !ok || (f.langs != nil && !f.langs[lang]) {
		return false
	}
	if dir := path.Dir(rel); dir != "." && f.skipDir(dir) {
		return false
	}
	return !f.ignored(rel) && !f.excluded(rel)
}

func (f *pathFilter) ignored(rel string) bool {
	return f.gitignore != nil && f.gitignore.MatchesPath(rel)
}

func (f *pathFilter) excluded(rel string) bool {
	rel = strings.TrimSuffix(rel, "/")
	parts := strings.Split(rel, "/")
	for _, g := range f.patterns {
		if g.Match(parts[len(parts)-1]) {
			return true
		}
		for i := range parts {
			if g.Match(strings.Join(parts[i:], "/")) {
				return true
			}
		}
	}
	return false
}

// walk returns the sorted indexable files under dir, relative to root.
func (f *pathFilter) walk(ctx context.Context, root, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if f.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && f.include(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Build indexes the working tree at root as projectID. A full build
// re-extracts every file, deletes files no longer on disk and relinks the
// whole project. An incremental build compares content hashes with the
// indexed state and pushes only the delta through the queue.
func (ix *Indexer) Build(ctx context.Context, projectID, root string, incremental bool) (BatchReport, error) {
	start := time.Now()
	if err := ix.AddProject(projectID, root); err != nil {
		return BatchReport{}, err
	}
	root, _ = ix.Root(projectID)
	filter, err := newPathFilter(root, ix.filter)
	if err != nil {
		return BatchReport{}, err
	}
	files, err := filter.walk(ctx, root, root)
	if err != nil {
		return BatchReport{}, err
	}
	indexed, err := ix.indexedFiles(ctx, projectID)
	if err != nil {
		return BatchReport{}, err
	}

	var rep BatchReport
	if incremental {
		rep, err = ix.buildIncremental(ctx, projectID, root, files, indexed)
	} else {
		rep, err = ix.buildFull(ctx, projectID, root, files, indexed)
	}
	rep.Duration = time.Since(start)
	if err != nil {
		return rep, err
	}
	ix.log.Info("build complete", "project", projectID, "incremental", incremental,
		"files", rep.Files, "indexed", rep.Indexed, "unchanged", rep.Unchanged,
		"deleted", rep.Deleted, "failed", rep.Failed, "edges", rep.Edges, "elapsed", rep.Duration)
	return rep, nil
}

func (ix *Indexer) buildFull(ctx context.Context, projectID, root string, files []string, indexed map[string]string) (BatchReport, error) {
	ix.batchMu.Lock()
	defer ix.batchMu.Unlock()
	ctx = context.WithoutCancel(ctx)

	ix.resolvers.Set(projectID, extract.NewResolver(root, files))
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f] = true
	}
	paths := append([]string(nil), files...)
	for p := range indexed {
		if !onDisk[p] {
			paths = append(paths, p)
		}
	}
	return ix.apply(ctx, projectID, root, paths, true), nil
}

func (ix *Indexer) buildIncremental(ctx context.Context, projectID, root string, files []string, indexed map[string]string) (BatchReport, error) {
	known := make([]string, 0, len(indexed))
	for p := range indexed {
		known = append(known, p)
	}
	ix.resolvers.Set(projectID, extract.NewResolver(root, known))

	var rep BatchReport
	var events []Event
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f] = true
		hash, ok := indexed[f]
		if !ok {
			events = append(events, Event{ProjectID: projectID, Path: f, Type: EventCreated})
			continue
		}
		if ix.stale.has(projectID, f) {
			events = append(events, Event{ProjectID: projectID, Path: f, Type: EventModified})
			continue
		}
		source, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f)))
		if err != nil || chunk.Hash(string(source)) != hash {
			events = append(events, Event{ProjectID: projectID, Path: f, Type: EventModified})
			continue
		}
		rep.Files++
		rep.Unchanged++
	}
	for _, p := range sortedKeys(indexed) {
		if !onDisk[p] {
			events = append(events, Event{ProjectID: projectID, Path: p, Type: EventDeleted})
		}
	}

	for _, ev := range events {
		if ix.queue.len() >= ix.cfg.BatchSize {
			r, err := ix.Flush(ctx)
			rep.add(r)
			if err != nil {
				return rep, err
			}
		}
		if err := ix.Enqueue(ctx, ev); err != nil {
			return rep, err
		}
	}
	r, err := ix.Flush(ctx)
	rep.add(r)
	return rep, err
}

// indexedFiles maps every indexed file of projectID to its content hash.
func (ix *Indexer) indexedFiles(ctx context.Context, projectID string) (map[string]string, error) {
	sctx, cancel := ix.storeContext(ctx)
	defer cancel()
	nodes, err := ix.graph.NodesByKind(sctx, projectID, graph.KindFile)
	if err != nil {
		return nil, fmt.Errorf("indexed files: %w", err)
	}
	out := make(map[string]string, len(nodes))
	for _, n := range nodes {
		out[n.FilePath] = n.Meta(graph.MetaContentHash)
	}
	return out, nil
}

// CheckConsistency verifies that every edge of projectID joins two existing
// nodes and that every chunk belongs to an existing node.
func (ix *Indexer) CheckConsistency(ctx context.Context, projectID string) error {
	sctx, cancel := ix.storeContext(ctx)
	defer cancel()

	nodes, err := ix.graph.NodesByKind(sctx, projectID)
	if err != nil {
		return fmt.Errorf("consistency: nodes: %w", err)
	}
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	edges, err := ix.graph.EdgesByRelationship(sctx, projectID)
	if err != nil {
		return fmt.Errorf("consistency: edges: %w", err)
	}
	owners, err := ix.chunks.NodeIDs(sctx, projectID)
	if err != nil {
		return fmt.Errorf("consistency: chunks: %w", err)
	}

	var problems []string
	for _, e := range edges {
		if !ids[e.FromID] || !ids[e.ToID] {
			problems = append(problems, fmt.Sprintf("edge %s (%s) %s -> %s", e.ID, e.Relationship, e.FromID, e.ToID))
		}
	}
	for _, id := range owners {
		if !ids[id] {
			problems = append(problems, "chunks of missing node "+id)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	for _, p := range problems {
		ix.log.Error("consistency violation", "project", projectID, "detail", p)
	}
	return ckgerr.Errorf(ckgerr.IndexCorruption, "%d consistency violations, first: %s", len(problems), problems[0])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
