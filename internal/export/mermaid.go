package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

// GenerateMermaid renders a project's file import graph as a Mermaid
// "graph TD" diagram. Files are grouped into one subgraph per import
// cluster and labelled with their symbol count; files on an import cycle
// get the "cycle" class. Unresolved imports are left out.
func GenerateMermaid(ctx context.Context, store graph.Store, projectID string) (string, error) {
	idx := symbolic.New(store, nil)
	clusters, err := idx.ImportClusters(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("clusters: %w", err)
	}
	cycles, err := idx.FindCircularDependencies(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("cycles: %w", err)
	}
	nodes, err := store.NodesByKind(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("nodes: %w", err)
	}
	edges, err := store.EdgesByRelationship(ctx, projectID, graph.RelImports)
	if err != nil {
		return "", fmt.Errorf("imports: %w", err)
	}

	pathOf := make(map[string]string)
	symbols := make(map[string]int)
	var files []string
	for _, n := range nodes {
		switch {
		case n.Kind == graph.KindFile:
			pathOf[n.ID] = n.FilePath
			files = append(files, n.FilePath)
		case n.Kind.IsSymbol():
			symbols[n.FilePath]++
		}
	}
	sort.Strings(files)

	d := &diagram{ids: make(map[string]string)}
	d.line("graph TD")

	placed := make(map[string]bool)
	for _, c := range clusters {
		label := c.Name
		if label == "" {
			label = "(root)"
		}
		d.line(fmt.Sprintf("  subgraph %s[\"%.40s\"]", d.id("cluster:"+c.Name), label))
		for _, member := range c.Members {
			placed[member] = true
			d.line("    " + d.file(member, symbols[member]))
		}
		d.line("  end")
	}
	for _, p := range files {
		if !placed[p] {
			d.line("  " + d.file(p, symbols[p]))
		}
	}

	arrows := make(map[string]bool)
	for _, e := range edges {
		src, okSrc := pathOf[e.FromID]
		tgt, okTgt := pathOf[e.ToID]
		if okSrc && okTgt {
			arrows[fmt.Sprintf("  %s --> %s", d.id(src), d.id(tgt))] = true
		}
	}
	for _, a := range sortedKeys(arrows) {
		d.line(a)
	}

	var onCycle []string
	for _, c := range cycles {
		for _, n := range c {
			onCycle = append(onCycle, d.id(n.FilePath))
		}
	}
	if len(onCycle) > 0 {
		sort.Strings(onCycle)
		d.line("  classDef cycle stroke:#d33,stroke-width:2px")
		d.line(fmt.Sprintf("  class %s cycle", strings.Join(onCycle, ",")))
	}
	return d.sb.String(), nil
}

// diagram assigns alphanumeric Mermaid ids in first-use order.
type diagram struct {
	sb  strings.Builder
	ids map[string]string
}

func (d *diagram) line(s string) {
	d.sb.WriteString(s)
	d.sb.WriteByte('\n')
}

func (d *diagram) id(key string) string {
	if id, ok := d.ids[key]; ok {
		return id
	}
	id := fmt.Sprintf("N%d", len(d.ids))
	d.ids[key] = id
	return id
}

func (d *diagram) file(path string, symbols int) string {
	return fmt.Sprintf("%s[\"%s (%d)\"]", d.id(path), shortPath(path), symbols)
}

// shortPath returns the last 2 path segments for readability.
func shortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
