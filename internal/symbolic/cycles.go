package symbolic

import (
	"context"
	"fmt"
	"sort"

	"github.com/dusk-indust/ckg/internal/graph"
)

// FindCircularDependencies returns every import cycle among the project's
// files: strongly connected components of the file import graph with at
// least two files, plus files importing themselves. Each cycle is sorted by
// path and the cycles by their first path. Runs in O(V+E).
func (x *Index) FindCircularDependencies(ctx context.Context, projectID string) ([][]graph.Node, error) {
	files, adj, err := x.importGraph(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("circular dependencies: %w", err)
	}

	var cycles [][]graph.Node
	for _, scc := range stronglyConnected(adj) {
		if len(scc) == 1 && !selfLoop(adj, scc[0]) {
			continue
		}
		cycle := make([]graph.Node, len(scc))
		for i, v := range scc {
			cycle[i] = files[v]
		}
		graph.SortNodes(cycle)
		cycles = append(cycles, cycle)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0].FilePath < cycles[j][0].FilePath })
	x.logger.Debug("circular dependencies", "project", projectID, "files", len(files), "cycles", len(cycles))
	return cycles, nil
}

// importGraph loads the project's file nodes and the imports edges between
// them as an adjacency list over file indices. Edges to endpoints are
// dropped.
func (x *Index) importGraph(ctx context.Context, projectID string) ([]graph.Node, [][]int, error) {
	files, err := x.store.NodesByKind(ctx, projectID, graph.KindFile)
	if err != nil {
		return nil, nil, err
	}
	edges, err := x.store.EdgesByRelationship(ctx, projectID, graph.RelImports)
	if err != nil {
		return nil, nil, err
	}

	index := make(map[string]int, len(files))
	for i, f := range files {
		index[f.ID] = i
	}
	adj := make([][]int, len(files))
	for _, e := range edges {
		from, ok := index[e.FromID]
		if !ok {
			continue
		}
		to, ok := index[e.ToID]
		if !ok {
			continue
		}
		adj[from] = append(adj[from], to)
	}
	return files, adj, nil
}

func selfLoop(adj [][]int, v int) bool {
	for _, w := range adj[v] {
		if w == v {
			return true
		}
	}
	return false
}

// stronglyConnected is Tarjan's algorithm with an explicit call stack, so
// long import chains cannot overflow the goroutine stack.
func stronglyConnected(adj [][]int) [][]int {
	n := len(adj)
	var (
		index   = make([]int, n)
		low     = make([]int, n)
		onStack = make([]bool, n)
		stack   []int
		next    int
		sccs    [][]int
	)
	for i := range index {
		index[i] = -1
	}

	visit := func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true
	}

	type frame struct{ v, edge int }
	for root := 0; root < n; root++ {
		if index[root] != -1 {
			continue
		}
		visit(root)
		calls := []frame{{v: root}}
		for len(calls) > 0 {
			top := &calls[len(calls)-1]
			v := top.v
			if top.edge < len(adj[v]) {
				w := adj[v][top.edge]
				top.edge++
				switch {
				case index[w] == -1:
					visit(w)
					calls = append(calls, frame{v: w})
				case onStack[w]:
					low[v] = min(low[v], index[w])
				}
				continue
			}

			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].v
				low[parent] = min(low[parent], low[v])
			}
			if low[v] != index[v] {
				continue
			}
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}
	return sccs
}
