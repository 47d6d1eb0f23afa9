// Package parse turns source files into language-neutral syntax trees.
package parse

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/ckg/internal/graph"
)

// SymbolKind is the language-level kind of a declaration.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolType      SymbolKind = "type"
	SymbolEnum      SymbolKind = "enum"
	SymbolVariable  SymbolKind = "variable"
	SymbolConstant  SymbolKind = "constant"
)

// Symbol is a declaration found in a file. Lines are 1-based and inclusive.
type Symbol struct {
	Name       string     `json:"name"`
	Kind       SymbolKind `json:"kind"`
	Exported   bool       `json:"exported"`
	EntryPoint bool       `json:"entryPoint,omitempty"`
	Parent     string     `json:"parent,omitempty"` // enclosing class or impl type
	StartLine  int        `json:"startLine"`
	EndLine    int        `json:"endLine"`
	BodyLine   int        `json:"bodyLine,omitempty"` // first line of the body, 0 when bodiless
	Signature  string     `json:"signature"`
	Doc        string     `json:"doc,omitempty"`
	DocLine    int        `json:"docLine,omitempty"` // first line of Doc
}

// Import is a raw import specifier as written in the source.
type Import struct {
	Specifier string `json:"specifier"`
	Line      int    `json:"line"`
}

// UseKind distinguishes calls from other name references.
type UseKind string

const (
	UseCall      UseKind = "call"
	UseReference UseKind = "reference"
)

// Use is a by-name reference to a symbol that may live in another file.
type Use struct {
	Name string  `json:"name"`
	Kind UseKind `json:"kind"`
	Line int     `json:"line"`
}

// Heritage records that Type extends or implements Super.
type Heritage struct {
	Type  string `json:"type"`
	Super string `json:"super"`
	Line  int    `json:"line"`
}

// SyntaxTree is the parser's language-neutral output for one file.
type SyntaxTree struct {
	Path       string         `json:"path"`
	Language   graph.Language `json:"language"`
	Source     []byte         `json:"-"`
	Lines      int            `json:"lines"`
	Symbols    []Symbol       `json:"symbols"`
	Imports    []Import       `json:"imports"`
	Uses       []Use          `json:"uses"`
	Heritage   []Heritage     `json:"heritage"`
	ErrorCount int            `json:"errorCount"`
}

// Parser extracts structural information from source files.
// Implementations: TreeSitterParser (production).
type Parser interface {
	// Parse builds the syntax tree of one file. Files with syntax errors
	// still yield a tree; ErrorCount reports how many error nodes were seen.
	Parse(ctx context.Context, path string, source []byte, lang graph.Language) (*SyntaxTree, error)

	// SupportedLanguages returns the languages this parser can handle.
	SupportedLanguages() []graph.Language

	// Close releases parser resources.
	Close() error
}

// extLanguages maps file extensions to languages.
var extLanguages = map[string]graph.Language{
	".go":  graph.LangGo,
	".ts":  graph.LangTypeScript,
	".tsx": graph.LangTypeScript,
	".mts": graph.LangTypeScript,
	".cts": graph.LangTypeScript,
	".js":  graph.LangJavaScript,
	".jsx": graph.LangJavaScript,
	".mjs": graph.LangJavaScript,
	".cjs": graph.LangJavaScript,
	".py":  graph.LangPython,
	".rs":  graph.LangRust,
}

// DetectLanguage returns the language for path based on its extension.
func DetectLanguage(path string) (graph.Language, bool) {
	lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}
