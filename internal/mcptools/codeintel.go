package mcptools

import (
	"github.com/dusk-indust/ckg/internal/engine"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/indexer"
	"github.com/dusk-indust/ckg/internal/retrieval"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.
// ProjectID may be omitted when the server was started for one project.

// BuildIndexInput is the input for the build_index MCP tool.
type BuildIndexInput struct {
	ProjectID   string `json:"projectId,omitempty" jsonschema:"project identifier (default: the server's project)"`
	RepoPath    string `json:"repoPath,omitempty" jsonschema:"absolute path to the repository to index (default: the server's root)"`
	Incremental bool   `json:"incremental,omitempty" jsonschema:"re-parse only files whose content changed"`
}

// BuildIndexOutput is the result of the build_index MCP tool.
type BuildIndexOutput struct {
	Report indexer.BatchReport `json:"report"`
}

// BuildContextInput is the input for the build_context MCP tool.
type BuildContextInput struct {
	ProjectID    string `json:"projectId,omitempty" jsonschema:"project identifier"`
	Query        string `json:"query" jsonschema:"symbol name or natural-language question"`
	MaxTokens    int    `json:"maxTokens,omitempty" jsonschema:"token budget for the assembled context (default: 2000)"`
	HintFile     string `json:"hintFile,omitempty" jsonschema:"repo-relative path of the file being edited; nearby code ranks higher"`
	SkipSemantic bool   `json:"skipSemantic,omitempty" jsonschema:"use only symbolic lookups"`
	SkipCallers  bool   `json:"skipCallers,omitempty" jsonschema:"omit nearest-caller signatures"`
}

// BuildContextOutput is the result of the build_context MCP tool.
type BuildContextOutput struct {
	Payload retrieval.Payload `json:"payload"`
}

// SymbolInput is the input for tools that look up one symbol.
type SymbolInput struct {
	ProjectID string `json:"projectId,omitempty" jsonschema:"project identifier"`
	Name      string `json:"name" jsonschema:"symbol name"`
	HintFile  string `json:"hintFile,omitempty" jsonschema:"repo-relative path used to rank ambiguous definitions"`
}

// FindDefinitionsOutput is the result of the find_definitions MCP tool.
type FindDefinitionsOutput struct {
	Definitions []graph.Node `json:"definitions"`
}

// FindReferencesOutput is the result of the find_references MCP tool.
type FindReferencesOutput struct {
	References []engine.Reference `json:"references"`
}

// AnalyzeImpactOutput is the result of the analyze_impact MCP tool.
type AnalyzeImpactOutput struct {
	Impact *symbolic.Impact `json:"impact"`
}

// GetDependenciesInput is the input for the get_dependencies MCP tool.
type GetDependenciesInput struct {
	ProjectID string `json:"projectId,omitempty" jsonschema:"project identifier"`
	Name      string `json:"name,omitempty" jsonschema:"symbol to start from; when empty the traversal starts at the file in path"`
	Path      string `json:"path,omitempty" jsonschema:"repo-relative file path; with name it picks among same-named symbols"`
	Direction string `json:"direction,omitempty" jsonschema:"upstream (what it depends on) or downstream (what depends on it). Default: downstream"`
	MaxDepth  int    `json:"maxDepth,omitempty" jsonschema:"maximum traversal depth (default: 3)"`
}

// GetDependenciesOutput is the result of the get_dependencies MCP tool.
type GetDependenciesOutput struct {
	Root         *graph.Node      `json:"root,omitempty"`
	Dependencies []graph.Neighbor `json:"dependencies"`
}

// ProjectInput is the input for project-wide analyses.
type ProjectInput struct {
	ProjectID string `json:"projectId,omitempty" jsonschema:"project identifier"`
}

// UnusedExportsOutput is the result of the find_unused_exports MCP tool.
type UnusedExportsOutput struct {
	Unused []graph.Node `json:"unused"`
	Total  int          `json:"total"`
}

// CyclesOutput is the result of the find_circular_dependencies MCP tool.
type CyclesOutput struct {
	Cycles [][]string `json:"cycles"`
}

// GetClustersOutput is the result of the get_clusters MCP tool.
type GetClustersOutput struct {
	Clusters []symbolic.Cluster `json:"clusters"`
}

// GetStatusOutput is the result of the get_status MCP tool.
type GetStatusOutput struct {
	Status *engine.Status `json:"status"`
}
