package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCodeIntelMCPServer creates an MCP server with every code knowledge graph
// tool registered.
func NewCodeIntelMCPServer(svc *CodeIntelService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ckg",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_index",
		Description: "Index a repository into the code knowledge graph. Parses source files with tree-sitter, extracts symbols, imports and calls, links references across files, and embeds code chunks. Incremental builds re-parse only changed files.",
	}, svc.BuildIndex)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_context",
		Description: "Assemble the most relevant code for a query within a token budget. Combines definition and reference lookups with semantic search, ranks by exactness, similarity, recency and closeness to the hint file, and never truncates a chunk.",
	}, svc.BuildContext)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_definitions",
		Description: "Find where a symbol is defined. Exact name matches rank first, then definitions closest to the hint file.",
	}, svc.FindDefinitions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_references",
		Description: "Find the calls and references that resolve to a symbol, with the function or file each comes from.",
	}, svc.FindReferences)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_impact",
		Description: "Estimate the blast radius of changing a symbol: reference count, referencing files and a recommendation.",
	}, svc.AnalyzeImpact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_dependencies",
		Description: "Traverse the knowledge graph from a symbol or a file. Upstream follows what it imports, calls and extends; downstream follows what imports, calls or extends it.",
	}, svc.GetDependencies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_unused_exports",
		Description: "List exported symbols that nothing in the project references.",
	}, svc.FindUnusedExports)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_circular_dependencies",
		Description: "List import cycles. Each cycle is the set of files in one strongly connected component of the import graph.",
	}, svc.FindCircularDependencies)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_clusters",
		Description: "Return groups of files connected by imports, with cohesion scores.",
	}, svc.GetClusters)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics, pending changes and per-file diagnostics for a project.",
	}, svc.GetStatus)

	return server
}

// RunMCPServer starts an HTTP server exposing the code intelligence MCP tools.
func RunMCPServer(ctx context.Context, svc *CodeIntelService, addr string) error {
	server := NewCodeIntelMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking until
// stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, svc *CodeIntelService) error {
	return NewCodeIntelMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
