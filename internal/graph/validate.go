package graph

import (
	"context"
	"sort"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

func validateNodes(nodes []Node) error {
	for _, n := range nodes {
		if n.ID == "" || n.ProjectID == "" {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "node %q (%s %s): id and project are required", n.ID, n.Kind, n.Name)
		}
	}
	return nil
}

// validateFileGraph checks that every record in fg belongs to its file.
func validateFileGraph(fg FileGraph) error {
	if fg.ProjectID == "" || fg.FilePath == "" {
		return ckgerr.New(ckgerr.InvalidArgument, "file graph needs a project and a file path")
	}
	if err := validateNodes(fg.Nodes); err != nil {
		return err
	}
	for _, n := range fg.Nodes {
		if n.ProjectID != fg.ProjectID || n.FilePath != fg.FilePath {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "node %s belongs to %s/%s, not %s/%s",
				n.ID, n.ProjectID, n.FilePath, fg.ProjectID, fg.FilePath)
		}
	}
	for _, e := range fg.Edges {
		if e.ProjectID != fg.ProjectID || e.FilePath != fg.FilePath {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "edge %s is not owned by %s", e.ID, fg.FilePath)
		}
	}
	for _, r := range fg.Refs {
		if r.ProjectID != fg.ProjectID || r.FilePath != fg.FilePath {
			return ckgerr.Errorf(ckgerr.InvalidArgument, "ref %s is not owned by %s", r.ID, fg.FilePath)
		}
	}
	return nil
}

func relFilter(rels []Relationship) func(Relationship) bool {
	if len(rels) == 0 {
		return func(Relationship) bool { return true }
	}
	return func(r Relationship) bool {
		for _, want := range rels {
			if r == want {
				return true
			}
		}
		return false
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ckgerr.Wrap(ckgerr.Timeout, "graph store", err)
	}
	return nil
}

// SortNodes orders nodes by file, start line, then id.
func SortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.ID < b.ID
	})
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.ID < b.ID
	})
}
