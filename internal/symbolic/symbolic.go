// Package symbolic answers exact-match structural queries over the graph:
// definitions, references, impact, unused exports, cycles and clusters.
// It keeps no state of its own; every query reads the graph store.
package symbolic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/logging"
)

// Index runs symbolic queries against a graph.Store.
type Index struct {
	store  graph.Store
	logger *slog.Logger
}

// New creates an Index over store.
func New(store graph.Store, logger *slog.Logger) *Index {
	return &Index{store: store, logger: logging.OrDefault(logger)}
}

// useRelationships are the edges that count as a use of their target.
var useRelationships = []graph.Relationship{graph.RelReferences, graph.RelCalls}

// FindDefinitions returns the symbol nodes named name. Exact matches rank
// before case-insensitive ones, then nodes closer to hintFile, then by
// path and line. hintFile may be empty.
func (x *Index) FindDefinitions(ctx context.Context, projectID, name, hintFile string) ([]graph.Node, error) {
	if name == "" {
		return nil, nil
	}
	nodes, err := x.store.NodesByName(ctx, projectID, name, true)
	if err != nil {
		return nil, fmt.Errorf("find definitions %q: %w", name, err)
	}

	defs := nodes[:0]
	for _, n := range nodes {
		if n.Kind.IsSymbol() {
			defs = append(defs, n)
		}
	}
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		if ea, eb := a.Name == name, b.Name == name; ea != eb {
			return ea
		}
		if hintFile != "" {
			if pa, pb := proximity(a.FilePath, hintFile), proximity(b.FilePath, hintFile); pa != pb {
				return pa > pb
			}
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.StartLine < b.StartLine
	})
	return defs, nil
}

// exactDefinitions returns the definitions named exactly name.
func (x *Index) exactDefinitions(ctx context.Context, projectID, name string) ([]graph.Node, error) {
	defs, err := x.FindDefinitions(ctx, projectID, name, "")
	if err != nil {
		return nil, err
	}
	exact := defs[:0]
	for _, d := range defs {
		if d.Name == name {
			exact = append(exact, d)
		}
	}
	return exact, nil
}

// FindReferences returns the references and calls edges pointing at any
// definition named name, ordered by owning file.
func (x *Index) FindReferences(ctx context.Context, projectID, name string) ([]graph.Edge, error) {
	defs, err := x.exactDefinitions(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []graph.Edge
	for _, d := range defs {
		edges, err := x.store.FindEdges(ctx, d.ID, graph.DirectionIn, useRelationships...)
		if err != nil {
			return nil, fmt.Errorf("find references %q: %w", name, err)
		}
		for _, e := range edges {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Impact summarizes how far a change to a symbol would reach.
type Impact struct {
	Symbol         string       `json:"symbol"`
	ReferenceCount int          `json:"referenceCount"`
	FileSpread     int          `json:"fileSpread"`
	Files          []string     `json:"files"`
	Definitions    []graph.Node `json:"definitions"`
	Recommendation string       `json:"recommendation"`
}

// Recommendations returned by AnalyzeImpact.
const (
	RecommendUnused   = "unused: safe to remove or rename"
	RecommendHigh     = "high-impact, coordinate before renaming"
	RecommendModerate = "moderate-impact, review every referencing file"
	RecommendLow      = "low-impact, safe to change locally"
)

// AnalyzeImpact counts the references to name and the distinct files they
// come from. FileSpread above 10 is high impact, above 3 moderate.
func (x *Index) AnalyzeImpact(ctx context.Context, projectID, name string) (*Impact, error) {
	defs, err := x.exactDefinitions(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	refs, err := x.FindReferences(ctx, projectID, name)
	if err != nil {
		return nil, err
	}

	files := make(map[string]bool)
	for _, e := range refs {
		files[e.FilePath] = true
	}
	imp := &Impact{
		Symbol:         name,
		ReferenceCount: len(refs),
		FileSpread:     len(files),
		Files:          sortedKeys(files),
		Definitions:    defs,
	}
	if imp.Definitions == nil {
		imp.Definitions = []graph.Node{}
	}
	imp.Recommendation = recommend(imp.ReferenceCount, imp.FileSpread)
	return imp, nil
}

func recommend(refs, spread int) string {
	switch {
	case refs == 0:
		return RecommendUnused
	case spread > 10:
		return RecommendHigh
	case spread > 3:
		return RecommendModerate
	default:
		return RecommendLow
	}
}

// FindUnusedExports returns exported symbols that nothing references,
// calls or extends. Entry points are never reported.
func (x *Index) FindUnusedExports(ctx context.Context, projectID string) ([]graph.Node, error) {
	symbols, err := x.store.NodesByKind(ctx, projectID, graph.KindFunction, graph.KindClass, graph.KindVariable, graph.KindType)
	if err != nil {
		return nil, fmt.Errorf("unused exports: %w", err)
	}
	edges, err := x.store.EdgesByRelationship(ctx, projectID, graph.RelReferences, graph.RelCalls, graph.RelExtends)
	if err != nil {
		return nil, fmt.Errorf("unused exports: %w", err)
	}
	used := make(map[string]bool, len(edges))
	for _, e := range edges {
		used[e.ToID] = true
	}

	var out []graph.Node
	for _, n := range symbols {
		if n.Exported() && !n.EntryPoint() && !used[n.ID] {
			out = append(out, n)
		}
	}
	graph.SortNodes(out)
	x.logger.Debug("unused exports", "project", projectID, "symbols", len(symbols), "unused", len(out))
	return out, nil
}

// proximity counts the leading path segments a and b share; the same file
// scores highest.
func proximity(a, b string) int {
	if a == b {
		return 1 << 16
	}
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	n := 0
	for n < len(as)-1 && n < len(bs)-1 && as[n] == bs[n] {
		n++
	}
	return n
}

// Proximity reports how structurally close two repo-relative paths are,
// normalised to [0,1]: 1 for the same file, 0 for unrelated top-level
// directories.
func Proximity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	depth := max(strings.Count(a, "/"), strings.Count(b, "/"))
	if depth == 0 {
		return 0.5 // siblings at the repository root
	}
	return 0.9 * float64(proximity(a, b)) / float64(depth)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
