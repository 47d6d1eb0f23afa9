package engine

import (
	"context"
	"path/filepath"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/config"
	"github.com/dusk-indust/ckg/internal/graph"
)

// DefaultDataDir holds persistent stores when no path is configured.
const DefaultDataDir = ".ckg"

func openGraph(cfg config.StoreConfig) (graph.Store, error) {
	switch cfg.Graph {
	case "", "memory":
		return graph.NewMemStore(), nil
	case "kuzu":
		path := cfg.GraphPath
		if path == "" {
			path = filepath.Join(DefaultDataDir, "graph.kuzu")
		}
		return openKuzu(path)
	}
	return nil, ckgerr.Errorf(ckgerr.InvalidArgument, "unknown graph store %q", cfg.Graph)
}

func openChunks(ctx context.Context, cfg config.StoreConfig) (chunk.Store, error) {
	switch cfg.Chunks {
	case "", "memory":
		return chunk.NewMemStore()
	case "sqlite":
		path := cfg.ChunkDSN
		if path == "" {
			path = filepath.Join(DefaultDataDir, "chunks.db")
		}
		return chunk.NewSQLiteStore(path)
	case "postgres":
		if cfg.ChunkDSN == "" {
			return nil, ckgerr.New(ckgerr.InvalidArgument, "postgres chunk store needs a DSN")
		}
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		return chunk.NewPgStore(ctx, cfg.ChunkDSN)
	}
	return nil, ckgerr.Errorf(ckgerr.InvalidArgument, "unknown chunk store %q", cfg.Chunks)
}
