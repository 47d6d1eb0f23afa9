package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

// ProjectExport is the top-level JSON export structure.
type ProjectExport struct {
	ProjectID  string             `json:"projectId"`
	ExportedAt string             `json:"exportedAt"`
	Stats      graph.Stats        `json:"stats"`
	Files      []FileExport       `json:"files"`
	Edges      []EdgeExport       `json:"edges"`
	Cycles     [][]string         `json:"cycles,omitempty"`
	Clusters   []symbolic.Cluster `json:"clusters,omitempty"`
}

// FileExport describes one indexed file and the symbols it defines.
type FileExport struct {
	Path     string         `json:"path"`
	Language string         `json:"language"`
	Symbols  []SymbolExport `json:"symbols,omitempty"`
	Imports  []string       `json:"imports,omitempty"`
	External []string       `json:"external,omitempty"` // unresolved import specifiers
}

// SymbolExport describes a single symbol.
type SymbolExport struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Exported  bool   `json:"exported,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// EdgeExport is a call, reference or extends edge between two symbols, or
// between a file and a symbol for top-level uses. Endpoints are written as
// path#name, or just path for files.
type EdgeExport struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Relationship string  `json:"relationship"`
	Weight       float64 `json:"weight"`
}

// ExportProject builds a ProjectExport from the graph store.
func ExportProject(ctx context.Context, store graph.Store, projectID string) (*ProjectExport, error) {
	stats, err := store.Stats(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	nodes, err := store.NodesByKind(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("nodes: %w", err)
	}
	edges, err := store.EdgesByRelationship(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("edges: %w", err)
	}

	export := &ProjectExport{
		ProjectID:  projectID,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Stats:      *stats,
	}

	byID := make(map[string]graph.Node, len(nodes))
	files := make(map[string]*FileExport)
	for _, n := range nodes {
		byID[n.ID] = n
		if n.Kind == graph.KindFile {
			files[n.FilePath] = &FileExport{Path: n.FilePath, Language: string(n.Language)}
		}
	}
	for _, n := range nodes {
		f, ok := files[n.FilePath]
		if !ok || !n.Kind.IsSymbol() {
			continue
		}
		f.Symbols = append(f.Symbols, SymbolExport{
			Name:      n.Name,
			Kind:      string(n.Kind),
			StartLine: n.StartLine,
			EndLine:   n.EndLine,
			Exported:  n.Exported(),
			Signature: n.Meta(graph.MetaSignature),
		})
	}

	for _, e := range edges {
		from, okFrom := byID[e.FromID]
		to, okTo := byID[e.ToID]
		if !okFrom || !okTo {
			continue
		}
		switch e.Relationship {
		case graph.RelDefines:
			// Implied by FileExport.Symbols.
		case graph.RelImports:
			f, ok := files[from.FilePath]
			if !ok {
				continue
			}
			if to.Kind == graph.KindEndpoint {
				f.External = append(f.External, to.Name)
			} else {
				f.Imports = append(f.Imports, to.FilePath)
			}
		default:
			export.Edges = append(export.Edges, EdgeExport{
				From:         endpointName(from),
				To:           endpointName(to),
				Relationship: string(e.Relationship),
				Weight:       e.Weight,
			})
		}
	}

	for _, path := range sortedKeys(files) {
		f := files[path]
		sort.Slice(f.Symbols, func(i, j int) bool { return f.Symbols[i].StartLine < f.Symbols[j].StartLine })
		sort.Strings(f.Imports)
		sort.Strings(f.External)
		export.Files = append(export.Files, *f)
	}
	sort.Slice(export.Edges, func(i, j int) bool {
		a, b := export.Edges[i], export.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Relationship < b.Relationship
	})

	idx := symbolic.New(store, nil)
	cycles, err := idx.FindCircularDependencies(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("cycles: %w", err)
	}
	for _, c := range cycles {
		paths := make([]string, len(c))
		for i, n := range c {
			paths[i] = n.FilePath
		}
		export.Cycles = append(export.Cycles, paths)
	}
	if export.Clusters, err = idx.ImportClusters(ctx, projectID); err != nil {
		return nil, fmt.Errorf("clusters: %w", err)
	}
	return export, nil
}

func endpointName(n graph.Node) string {
	if n.Kind == graph.KindFile {
		return n.FilePath
	}
	return n.FilePath + "#" + n.Name
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
