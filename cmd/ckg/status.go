package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and diagnostics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		st, err := s.eng.Status(ctx, s.project)
		if err != nil {
			return err
		}
		return printResult(cmd, st, func(w io.Writer) { printStatus(w, st) })
	})
}

func printStatus(w io.Writer, st *engine.Status) {
	fmt.Fprintf(w, "Project: %s\n", st.ProjectID)
	fmt.Fprintf(w, "Root:    %s\n", st.Root)
	fmt.Fprintf(w, "Stores:  graph=%s chunks=%s\n", st.GraphStore, st.ChunkStore)
	embedder := st.Embedder
	if embedder == "" {
		embedder = "disabled"
	}
	fmt.Fprintf(w, "Embedder: %s\n\n", embedder)

	fmt.Fprintf(w, "  %-12s %d\n", "files", st.Graph.Files)
	fmt.Fprintf(w, "  %-12s %d\n", "symbols", st.Graph.Symbols)
	fmt.Fprintf(w, "  %-12s %d\n", "endpoints", st.Graph.Endpoints)
	fmt.Fprintf(w, "  %-12s %d\n", "edges", st.Graph.Edges)
	fmt.Fprintf(w, "  %-12s %d\n", "refs", st.Graph.Refs)
	fmt.Fprintf(w, "  %-12s %d\n", "chunks", st.Chunks.Chunks)
	fmt.Fprintf(w, "  %-12s %d\n", "embeddings", st.Chunks.Embeddings)
	fmt.Fprintf(w, "  %-12s %d\n", "pending", st.Pending)

	if len(st.Diagnostics) == 0 {
		return
	}
	fmt.Fprintf(w, "\nDiagnostics (%d):\n", len(st.Diagnostics))
	for _, d := range st.Diagnostics {
		fmt.Fprintf(w, "  -> %s [%s] %s\n", d.Path, d.Code, d.Message)
	}
}
