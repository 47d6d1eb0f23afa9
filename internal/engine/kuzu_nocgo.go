//go:build !cgo

package engine

import (
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/graph"
)

func openKuzu(string) (graph.Store, error) {
	return nil, ckgerr.New(ckgerr.InvalidArgument, "the kuzu graph store needs a cgo build")
}
