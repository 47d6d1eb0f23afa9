package graph

// --- Enums ---

// NodeKind classifies nodes in the knowledge graph.
type NodeKind string

const (
	KindFile     NodeKind = "File"
	KindFunction NodeKind = "Function"
	KindClass    NodeKind = "Class"
	KindVariable NodeKind = "Variable"
	KindType     NodeKind = "Type"
	KindEndpoint NodeKind = "Endpoint"
)

// IsSymbol reports whether k is a code symbol (not a file or endpoint).
func (k NodeKind) IsSymbol() bool {
	switch k {
	case KindFunction, KindClass, KindVariable, KindType:
		return true
	}
	return false
}

// Relationship classifies directed edges between nodes.
type Relationship string

const (
	RelDefines    Relationship = "defines"
	RelReferences Relationship = "references"
	RelImports    Relationship = "imports"
	RelCalls      Relationship = "calls"
	RelExtends    Relationship = "extends"
)

// Language identifies a programming language.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
)

// Metadata keys written by extraction and linking.
const (
	MetaSignature   = "signature"
	MetaVisibility  = "visibility"
	MetaExported    = "exported"
	MetaHasDoc      = "hasDocstring"
	MetaEntryPoint  = "entryPoint"
	MetaSymbolKind  = "symbolKind"
	MetaParent      = "parent"
	MetaParseErrors = "parseErrors"
	MetaModTime     = "modTime"
	MetaContentHash = "contentHash"
	MetaLOC         = "loc"
	MetaSpecifier   = "specifier"
	MetaUnresolved  = "unresolved"
	MetaSymbol      = "symbol" // set on edges derived from name references
)

// --- Models ---

// Node is a file, code symbol, or external endpoint.
type Node struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId"`
	Kind      NodeKind          `json:"kind"`
	Name      string            `json:"name"`
	FilePath  string            `json:"filePath"`
	Language  Language          `json:"language"`
	StartLine int               `json:"startLine"`
	EndLine   int               `json:"endLine"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value or "".
func (n Node) Meta(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata[key]
}

// Exported reports whether the node carries exported=true.
func (n Node) Exported() bool { return n.Meta(MetaExported) == "true" }

// EntryPoint reports whether the node carries entryPoint=true.
func (n Node) EntryPoint() bool { return n.Meta(MetaEntryPoint) == "true" }

// Edge is a directed, typed relationship. FilePath is the owning file: the
// edge is removed whenever that file is replaced or deleted.
type Edge struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"projectId"`
	FromID       string            `json:"fromId"`
	ToID         string            `json:"toId"`
	Relationship Relationship      `json:"relationship"`
	Weight       float64           `json:"weight"`
	FilePath     string            `json:"filePath"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value or "".
func (e Edge) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Ref is a by-name reference found in a file that the linker resolves into
// edges once every candidate definition is known. For imports, Name is the
// resolved repo-relative target path.
type Ref struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"projectId"`
	FilePath     string       `json:"filePath"`
	FromID       string       `json:"fromId"`
	Name         string       `json:"name"`
	Relationship Relationship `json:"relationship"`
	Line         int          `json:"line"`
}

// FileGraph is the complete extraction of one file, replaced atomically.
type FileGraph struct {
	ProjectID string `json:"projectId"`
	FilePath  string `json:"filePath"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	Refs      []Ref  `json:"refs"`
}

// Stats summarizes one project's graph.
type Stats struct {
	Files     int `json:"files"`
	Symbols   int `json:"symbols"`
	Endpoints int `json:"endpoints"`
	Edges     int `json:"edges"`
	Refs      int `json:"refs"`
}
