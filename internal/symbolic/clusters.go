package symbolic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/ckg/internal/graph"
)

// Cluster is a group of files connected by imports.
type Cluster struct {
	Name     string   `json:"name"`
	Members  []string `json:"members"`
	Cohesion float64  `json:"cohesion"`
}

// ImportClusters finds connected components in the file import graph and
// returns those with at least two files.
//
// Algorithm:
//  1. Build an undirected adjacency list from imports edges among files.
//  2. Find connected components via BFS.
//  3. Score each component: internal imports / (internal imports + imports
//     of unresolved external modules). A cluster that only talks to itself
//     scores 1.
//
// Clusters are ordered by size, largest first, then by name.
func (x *Index) ImportClusters(ctx context.Context, projectID string) ([]Cluster, error) {
	files, err := x.store.NodesByKind(ctx, projectID, graph.KindFile)
	if err != nil {
		return nil, fmt.Errorf("import clusters: %w", err)
	}
	edges, err := x.store.EdgesByRelationship(ctx, projectID, graph.RelImports)
	if err != nil {
		return nil, fmt.Errorf("import clusters: %w", err)
	}

	paths := make(map[string]string, len(files)) // node id -> path
	for _, f := range files {
		paths[f.ID] = f.FilePath
	}
	adj := make(map[string]map[string]bool, len(files))
	for _, f := range files {
		adj[f.FilePath] = make(map[string]bool)
	}
	external := make(map[string]int)
	for _, e := range edges {
		from, ok := paths[e.FromID]
		if !ok {
			continue
		}
		to, ok := paths[e.ToID]
		if !ok {
			if e.Meta(graph.MetaUnresolved) == "true" {
				external[from]++
			}
			continue
		}
		if from != to {
			adj[from][to] = true
			adj[to][from] = true
		}
	}

	order := make([]string, 0, len(adj))
	for p := range adj {
		order = append(order, p)
	}
	sort.Strings(order)

	visited := make(map[string]bool, len(adj))
	var clusters []Cluster
	for _, p := range order {
		if visited[p] {
			continue
		}
		component := bfsComponent(p, adj, visited)
		if len(component) < 2 {
			continue
		}
		sort.Strings(component)
		clusters = append(clusters, Cluster{
			Name:     longestCommonPrefix(component),
			Members:  component,
			Cohesion: cohesion(component, adj, external),
		})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Members) != len(clusters[j].Members) {
			return len(clusters[i].Members) > len(clusters[j].Members)
		}
		return clusters[i].Name < clusters[j].Name
	})
	return clusters, nil
}

// bfsComponent performs BFS from start on the adjacency list and returns
// all reachable nodes. It marks visited nodes as it goes.
func bfsComponent(start string, adj map[string]map[string]bool, visited map[string]bool) []string {
	var component []string
	queue := []string{start}
	visited[start] = true

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		for neighbor := range adj[node] {
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}
	return component
}

// cohesion is internal / (internal + external). Each undirected internal
// edge counts once.
func cohesion(component []string, adj map[string]map[string]bool, external map[string]int) float64 {
	internal, outside := 0, 0
	for _, m := range component {
		for neighbor := range adj[m] {
			if m < neighbor {
				internal++
			}
		}
		outside += external[m]
	}
	total := internal + outside
	if total == 0 {
		return 0
	}
	return float64(internal) / float64(total)
}

// longestCommonPrefix finds the longest common directory prefix among a set
// of file paths, ending in "/". Returns "" when the paths share no
// directory.
func longestCommonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	if len(paths) == 1 {
		return paths[0]
	}

	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			trimmed := strings.TrimRight(prefix, "/")
			idx := strings.LastIndex(trimmed, "/")
			if idx < 0 {
				return ""
			}
			prefix = trimmed[:idx+1]
		}
	}

	if !strings.HasSuffix(prefix, "/") {
		idx := strings.LastIndex(prefix, "/")
		if idx < 0 {
			return ""
		}
		prefix = prefix[:idx+1]
	}
	return prefix
}
