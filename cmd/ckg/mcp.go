package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/mcptools"
)

var mcpHTTPAddr string

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the code knowledge graph tools over MCP",
	Long: `Refresh the index, then serve the MCP tools. The default transport is
stdio; --http serves the streamable HTTP transport on the given address.`,
	Args: cobra.NoArgs,
	RunE: runServeMCP,
}

func init() {
	serveMCPCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Listen address for the HTTP transport (e.g. :8765)")
	rootCmd.AddCommand(serveMCPCmd)
}

func runServeMCP(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		svc := mcptools.NewCodeIntelService(s.eng, s.project, s.root)
		if mcpHTTPAddr != "" {
			s.log.Info("serving MCP over HTTP", "addr", mcpHTTPAddr, "project", s.project)
			return mcptools.RunMCPServer(ctx, svc, mcpHTTPAddr)
		}
		return mcptools.RunMCPServerStdio(ctx, svc)
	})
}
