package indexer

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/dusk-indust/ckg/internal/graph"
)

// linker turns refs into derived edges. For a set of names it drops every
// edge derived from those names and rebuilds them from the current refs and
// definitions, so the derived edge set is a function of the stored state
// alone and incremental updates converge to what a full build produces.
type linker struct {
	store graph.Store
}

// candidate scopes, narrowest first.
//
//  1. the referencing file (for Go, its package directory)
//  2. files the referencing file imports (for Go, their package directories)
//  3. the whole project, exported definitions preferred
//
// Each ref adds 1/len(candidates) to the weight of the edge to every
// candidate of the first non-empty scope.
func (l *linker) link(ctx context.Context, projectID string, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	names = dedupe(names)

	old, err := l.store.EdgesBySymbol(ctx, projectID, names)
	if err != nil {
		return 0, fmt.Errorf("link: derived edges: %w", err)
	}
	refs, err := l.store.RefsByName(ctx, projectID, names)
	if err != nil {
		return 0, fmt.Errorf("link: refs: %w", err)
	}

	s := &linkState{
		linker:    l,
		projectID: projectID,
		defs:      make(map[string][]graph.Node),
		imports:   make(map[string][]string),
		files:     make(map[string]bool),
	}
	edges := make(map[string]*graph.Edge)
	for _, r := range refs {
		targets, err := s.resolve(ctx, r)
		if err != nil {
			return 0, err
		}
		for _, to := range targets {
			if to == r.FromID {
				continue
			}
			id := graph.EdgeID(projectID, r.FromID, to, r.Relationship)
			if e, ok := edges[id]; ok {
				e.Weight += 1 / float64(len(targets))
				continue
			}
			edges[id] = &graph.Edge{
				ID:           id,
				ProjectID:    projectID,
				FromID:       r.FromID,
				ToID:         to,
				Relationship: r.Relationship,
				Weight:       1 / float64(len(targets)),
				FilePath:     r.FilePath,
				Metadata:     map[string]string{graph.MetaSymbol: r.Name},
			}
		}
	}

	remove := make([]string, len(old))
	for i, e := range old {
		remove[i] = e.ID
	}
	add := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		add = append(add, *e)
	}
	sort.Slice(add, func(i, j int) bool { return add[i].ID < add[j].ID })

	if err := l.store.ReplaceEdges(ctx, projectID, remove, add); err != nil {
		return 0, fmt.Errorf("link: replace edges: %w", err)
	}
	return len(add), nil
}

// linkState caches lookups for one link call.
type linkState struct {
	*linker
	projectID string
	defs      map[string][]graph.Node // name -> symbol definitions
	imports   map[string][]string     // file -> imported files
	files     map[string]bool         // file node exists
}

// resolve returns the target node ids of r.
func (s *linkState) resolve(ctx context.Context, r graph.Ref) ([]string, error) {
	if r.Relationship == graph.RelImports {
		ok, err := s.fileExists(ctx, r.Name)
		if err != nil || !ok {
			return nil, err
		}
		return []string{fileNodeID(s.projectID, r.Name)}, nil
	}

	defs, err := s.definitions(ctx, r.Name)
	if err != nil || len(defs) == 0 {
		return nil, err
	}

	if scope := filterNodes(defs, func(n graph.Node) bool { return samePackage(n, r.FilePath) }); len(scope) > 0 {
		return nodeIDs(scope), nil
	}

	imported, err := s.importedFiles(ctx, r.FilePath)
	if err != nil {
		return nil, err
	}
	if len(imported) > 0 {
		scope := filterNodes(defs, func(n graph.Node) bool {
			for _, f := range imported {
				if samePackage(n, f) {
					return true
				}
			}
			return false
		})
		if len(scope) > 0 {
			return nodeIDs(scope), nil
		}
	}

	if exported := filterNodes(defs, graph.Node.Exported); len(exported) > 0 {
		return nodeIDs(exported), nil
	}
	return nodeIDs(defs), nil
}

func (s *linkState) definitions(ctx context.Context, name string) ([]graph.Node, error) {
	if defs, ok := s.defs[name]; ok {
		return defs, nil
	}
	nodes, err := s.store.NodesByName(ctx, s.projectID, name, false)
	if err != nil {
		return nil, fmt.Errorf("link: definitions of %q: %w", name, err)
	}
	defs := filterNodes(nodes, func(n graph.Node) bool { return n.Kind.IsSymbol() })
	s.defs[name] = defs
	return defs, nil
}

func (s *linkState) importedFiles(ctx context.Context, file string) ([]string, error) {
	if files, ok := s.imports[file]; ok {
		return files, nil
	}
	refs, err := s.store.RefsByFile(ctx, s.projectID, file)
	if err != nil {
		return nil, fmt.Errorf("link: imports of %s: %w", file, err)
	}
	var files []string
	for _, r := range refs {
		if r.Relationship == graph.RelImports {
			files = append(files, r.Name)
		}
	}
	s.imports[file] = files
	return files, nil
}

func (s *linkState) fileExists(ctx context.Context, file string) (bool, error) {
	if ok, seen := s.files[file]; seen {
		return ok, nil
	}
	n, err := s.store.GetNode(ctx, fileNodeID(s.projectID, file))
	if err != nil {
		return false, fmt.Errorf("link: file %s: %w", file, err)
	}
	s.files[file] = n != nil
	return n != nil, nil
}

// samePackage reports whether n is visible from file without an import:
// the same file, or for Go any file in the same directory.
func samePackage(n graph.Node, file string) bool {
	if n.FilePath == file {
		return true
	}
	return n.Language == graph.LangGo && path.Ext(file) == ".go" && path.Dir(n.FilePath) == path.Dir(file)
}

func fileNodeID(projectID, file string) string {
	return graph.NodeID(projectID, file, graph.KindFile, file, 1)
}

func filterNodes(nodes []graph.Node, keep func(graph.Node) bool) []graph.Node {
	var out []graph.Node
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func nodeIDs(nodes []graph.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
