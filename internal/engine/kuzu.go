//go:build cgo

package engine

import "github.com/dusk-indust/ckg/internal/graph"

func openKuzu(path string) (graph.Store, error) {
	if path == ":memory:" {
		return graph.NewKuzuStore()
	}
	return graph.NewKuzuFileStore(path)
}
