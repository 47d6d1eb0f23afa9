package parse

import (
	"bytes"
	"context"
	"sort"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/ckg/internal/ckgerr"
	"github.com/dusk-indust/ckg/internal/graph"
)

// LanguageSupport is the per-language capability behind TreeSitterParser.
// Adding a language means adding an implementation and registering it.
type LanguageSupport interface {
	// Language is the language this implementation handles.
	Language() graph.Language

	// Grammar returns the tree-sitter grammar for path. Some languages have
	// dialects selected by extension (TSX).
	Grammar(path string) *tree_sitter.Language

	// ExtractSymbols fills st from the parsed tree.
	ExtractSymbols(root *tree_sitter.Node, source []byte, st *SyntaxTree)
}

// TreeSitterParser implements the Parser interface using tree-sitter grammars.
// A new tree-sitter parser is created per Parse call, so concurrent Parse
// calls are safe.
type TreeSitterParser struct {
	supports map[graph.Language]LanguageSupport
}

// NewTreeSitterParser creates a TreeSitterParser with Go, TypeScript,
// JavaScript, Python and Rust support registered. When langs is non-empty
// only those languages are enabled.
func NewTreeSitterParser(langs ...graph.Language) *TreeSitterParser {
	p := &TreeSitterParser{supports: make(map[graph.Language]LanguageSupport)}
	all := []LanguageSupport{
		newGoSupport(),
		newTSSupport(graph.LangTypeScript),
		newTSSupport(graph.LangJavaScript),
		newPySupport(),
		newRustSupport(),
	}
	enabled := make(map[graph.Language]bool, len(langs))
	for _, l := range langs {
		enabled[l] = true
	}
	for _, ls := range all {
		if len(langs) == 0 || enabled[ls.Language()] {
			p.Register(ls)
		}
	}
	return p
}

// Register adds or replaces the support for ls.Language().
func (p *TreeSitterParser) Register(ls LanguageSupport) {
	p.supports[ls.Language()] = ls
}

// Parse builds the syntax tree of a single source file.
func (p *TreeSitterParser) Parse(ctx context.Context, path string, source []byte, lang graph.Language) (*SyntaxTree, error) {
	ls, ok := p.supports[lang]
	if !ok {
		return nil, ckgerr.Errorf(ckgerr.UnsupportedLanguage, "no parser for %s (%s)", path, lang)
	}
	if err := ctx.Err(); err != nil {
		return nil, ckgerr.Wrap(ckgerr.Timeout, "parse "+path, err)
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(ls.Grammar(path)); err != nil {
		return nil, ckgerr.Wrap(ckgerr.ParseFailed, "set language "+string(lang), err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, ckgerr.Errorf(ckgerr.ParseFailed, "tree-sitter returned nil tree for %s", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	st := &SyntaxTree{
		Path:     path,
		Language: lang,
		Source:   source,
		Lines:    countLOC(source),
	}
	if root.HasError() {
		st.ErrorCount = countErrors(root)
	}
	ls.ExtractSymbols(root, source, st)
	return st, nil
}

// SupportedLanguages returns the registered languages in sorted order.
func (p *TreeSitterParser) SupportedLanguages() []graph.Language {
	langs := make([]graph.Language, 0, len(p.supports))
	for l := range p.supports {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Close is a no-op because parsers are created per Parse call.
func (p *TreeSitterParser) Close() error {
	return nil
}

// countLOC counts the number of lines in source by counting newline bytes
// and adding one for the final line if the source is non-empty.
func countLOC(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	n := bytes.Count(source, []byte{'\n'})
	if source[len(source)-1] != '\n' {
		n++
	}
	return n
}

// countErrors counts ERROR and MISSING nodes below root.
func countErrors(root *tree_sitter.Node) int {
	cursor := root.Walk()
	defer cursor.Close()

	count := 0
	var walk func()
	walk = func() {
		n := cursor.Node()
		if n.IsError() || n.IsMissing() {
			count++
		}
		if !n.HasError() {
			return
		}
		if cursor.GotoFirstChild() {
			walk()
			for cursor.GotoNextSibling() {
				walk()
			}
			cursor.GotoParent()
		}
	}
	walk()
	return count
}
