package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/indexer"
)

var (
	indexFull  bool
	indexCheck bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the index",
	Long: `Index the repository under --root. By default only files whose content
changed since the last run are re-parsed; --full rebuilds every file.

Examples:
  ckg index
  ckg index --full --check
  ckg --root ../service --project service index`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index current while files change",
	Long: `Refresh the index, then watch the repository and apply file changes
in batches until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	indexCmd.Flags().BoolVar(&indexFull, "full", false, "Re-parse every file")
	indexCmd.Flags().BoolVar(&indexCheck, "check", false, "Verify referential integrity after indexing")
	rootCmd.AddCommand(indexCmd, watchCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.eng.BuildIndex(ctx, s.project, s.root, !indexFull)
	if err != nil {
		return err
	}
	if indexCheck {
		if err := s.eng.CheckConsistency(ctx, s.project); err != nil {
			return err
		}
	}
	return printResult(cmd, report, func(w io.Writer) { printReport(w, report) })
}

func printReport(w io.Writer, r indexer.BatchReport) {
	fmt.Fprintf(w, "Files:      %d\n", r.Files)
	fmt.Fprintf(w, "Indexed:    %d\n", r.Indexed)
	fmt.Fprintf(w, "Unchanged:  %d\n", r.Unchanged)
	fmt.Fprintf(w, "Deleted:    %d\n", r.Deleted)
	fmt.Fprintf(w, "Failed:     %d\n", r.Failed)
	fmt.Fprintf(w, "Skipped:    %d\n", r.Skipped)
	fmt.Fprintf(w, "Dependents: %d\n", r.Dependents)
	fmt.Fprintf(w, "Edges:      %d\n", r.Edges)
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		s.log.Info("watching", "project", s.project, "root", s.root)
		err := s.eng.Watch(ctx, s.project)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}
