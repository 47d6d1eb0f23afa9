package mcptools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/ckg/internal/engine"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/retrieval"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

// defaultMaxTokens is the build_context budget when the caller sets none.
const defaultMaxTokens = 2000

// CodeIntelService exposes an Engine as MCP tool handlers.
type CodeIntelService struct {
	eng       *engine.Engine
	projectID string // default project
	root      string // default repository root
}

// NewCodeIntelService creates a CodeIntelService. projectID and root are
// the defaults for calls that omit them.
func NewCodeIntelService(eng *engine.Engine, projectID, root string) *CodeIntelService {
	return &CodeIntelService{eng: eng, projectID: projectID, root: root}
}

func (s *CodeIntelService) project(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if s.projectID == "" {
		return "", fmt.Errorf("projectId is required")
	}
	return s.projectID, nil
}

// BuildIndex indexes a repository into the graph and chunk stores.
func (s *CodeIntelService) BuildIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildIndexInput,
) (*mcp.CallToolResult, BuildIndexOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, BuildIndexOutput{}, err
	}
	root := input.RepoPath
	if root == "" {
		root = s.root
	}
	if root == "" {
		return nil, BuildIndexOutput{}, fmt.Errorf("repoPath is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, BuildIndexOutput{}, fmt.Errorf("cannot access repoPath: %w", err)
	}
	if !info.IsDir() {
		return nil, BuildIndexOutput{}, fmt.Errorf("repoPath is not a directory: %s", root)
	}

	rep, err := s.eng.BuildIndex(ctx, projectID, root, input.Incremental)
	if err != nil {
		return nil, BuildIndexOutput{}, fmt.Errorf("build index: %w", err)
	}
	return nil, BuildIndexOutput{Report: rep}, nil
}

// BuildContext assembles ranked code context for a query within a token
// budget. Failures degrade the payload instead of failing the call.
func (s *CodeIntelService) BuildContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildContextInput,
) (*mcp.CallToolResult, BuildContextOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, BuildContextOutput{}, err
	}
	if input.Query == "" {
		return nil, BuildContextOutput{}, fmt.Errorf("query is required")
	}
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	p := s.eng.BuildContext(ctx, projectID, input.Query, maxTokens, retrieval.Options{
		HintFile:     input.HintFile,
		SkipSemantic: input.SkipSemantic,
		SkipCallers:  input.SkipCallers,
	})
	return nil, BuildContextOutput{Payload: p}, nil
}

// FindDefinitions returns the symbols defined under a name.
func (s *CodeIntelService) FindDefinitions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SymbolInput,
) (*mcp.CallToolResult, FindDefinitionsOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, FindDefinitionsOutput{}, err
	}
	if input.Name == "" {
		return nil, FindDefinitionsOutput{}, fmt.Errorf("name is required")
	}
	defs, err := s.eng.FindDefinitions(ctx, projectID, input.Name, input.HintFile)
	if err != nil {
		return nil, FindDefinitionsOutput{}, err
	}
	if defs == nil {
		defs = []graph.Node{}
	}
	return nil, FindDefinitionsOutput{Definitions: defs}, nil
}

// FindReferences returns the call and reference sites of a symbol.
func (s *CodeIntelService) FindReferences(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SymbolInput,
) (*mcp.CallToolResult, FindReferencesOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, FindReferencesOutput{}, err
	}
	if input.Name == "" {
		return nil, FindReferencesOutput{}, fmt.Errorf("name is required")
	}
	refs, err := s.eng.FindReferences(ctx, projectID, input.Name)
	if err != nil {
		return nil, FindReferencesOutput{}, err
	}
	return nil, FindReferencesOutput{References: refs}, nil
}

// AnalyzeImpact reports the blast radius of changing a symbol.
func (s *CodeIntelService) AnalyzeImpact(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SymbolInput,
) (*mcp.CallToolResult, AnalyzeImpactOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, AnalyzeImpactOutput{}, err
	}
	if input.Name == "" {
		return nil, AnalyzeImpactOutput{}, fmt.Errorf("name is required")
	}
	impact, err := s.eng.AnalyzeImpact(ctx, projectID, input.Name)
	if err != nil {
		return nil, AnalyzeImpactOutput{}, err
	}
	return nil, AnalyzeImpactOutput{Impact: impact}, nil
}

// GetDependencies traverses the graph from a symbol or a file.
func (s *CodeIntelService) GetDependencies(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetDependenciesInput,
) (*mcp.CallToolResult, GetDependenciesOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, GetDependenciesOutput{}, err
	}
	if input.Name == "" && input.Path == "" {
		return nil, GetDependenciesOutput{}, fmt.Errorf("name or path is required")
	}

	dir := graph.DirectionIn
	if strings.EqualFold(input.Direction, "upstream") {
		dir = graph.DirectionOut
	}

	root, deps, err := s.eng.Dependencies(ctx, projectID, input.Name, input.Path, dir, input.MaxDepth)
	if err != nil {
		return nil, GetDependenciesOutput{}, fmt.Errorf("get dependencies: %w", err)
	}
	if deps == nil {
		deps = []graph.Neighbor{}
	}
	return nil, GetDependenciesOutput{Root: root, Dependencies: deps}, nil
}

// FindUnusedExports lists exported symbols nothing references.
func (s *CodeIntelService) FindUnusedExports(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProjectInput,
) (*mcp.CallToolResult, UnusedExportsOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, UnusedExportsOutput{}, err
	}
	unused, err := s.eng.FindUnusedExports(ctx, projectID)
	if err != nil {
		return nil, UnusedExportsOutput{}, err
	}
	if unused == nil {
		unused = []graph.Node{}
	}
	return nil, UnusedExportsOutput{Unused: unused, Total: len(unused)}, nil
}

// FindCircularDependencies lists import cycles as file paths.
func (s *CodeIntelService) FindCircularDependencies(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProjectInput,
) (*mcp.CallToolResult, CyclesOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, CyclesOutput{}, err
	}
	cycles, err := s.eng.FindCircularDependencies(ctx, projectID)
	if err != nil {
		return nil, CyclesOutput{}, err
	}
	out := CyclesOutput{Cycles: make([][]string, 0, len(cycles))}
	for _, c := range cycles {
		files := make([]string, len(c))
		for i, n := range c {
			files[i] = n.FilePath
		}
		out.Cycles = append(out.Cycles, files)
	}
	return nil, out, nil
}

// GetClusters returns groups of files connected by imports.
func (s *CodeIntelService) GetClusters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProjectInput,
) (*mcp.CallToolResult, GetClustersOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, GetClustersOutput{}, err
	}
	clusters, err := s.eng.ImportClusters(ctx, projectID)
	if err != nil {
		return nil, GetClustersOutput{}, err
	}
	if clusters == nil {
		clusters = []symbolic.Cluster{}
	}
	return nil, GetClustersOutput{Clusters: clusters}, nil
}

// GetStatus reports index statistics and outstanding diagnostics.
func (s *CodeIntelService) GetStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProjectInput,
) (*mcp.CallToolResult, GetStatusOutput, error) {
	projectID, err := s.project(input.ProjectID)
	if err != nil {
		return nil, GetStatusOutput{}, err
	}
	st, err := s.eng.Status(ctx, projectID)
	if err != nil {
		return nil, GetStatusOutput{}, err
	}
	return nil, GetStatusOutput{Status: st}, nil
}
