package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the project graph as JSON",
	Long: `Write every file with its symbols, imports and symbol-level edges, plus
import cycles and clusters, as one JSON document.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Print a Mermaid diagram of the file import graph",
	Args:  cobra.NoArgs,
	RunE:  runDiagram,
}

func init() {
	rootCmd.AddCommand(exportCmd, diagramCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		data, err := export.ExportProject(ctx, s.eng.Graph(), s.project)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}

		_, err = cmd.OutOrStdout().Write(append(out, '\n'))
		return err
	})
}

func runDiagram(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		mermaid, err := export.GenerateMermaid(ctx, s.eng.Graph(), s.project)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), mermaid)
		return err
	})
}
