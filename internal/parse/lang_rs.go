package parse

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	"github.com/dusk-indust/ckg/internal/graph"
)

// rustSupport extracts symbols, imports and uses from Rust source files.
type rustSupport struct {
	grammar *tree_sitter.Language
}

func newRustSupport() *rustSupport {
	return &rustSupport{grammar: tree_sitter.NewLanguage(tree_sitter_rust.Language())}
}

func (r *rustSupport) Language() graph.Language             { return graph.LangRust }
func (r *rustSupport) Grammar(string) *tree_sitter.Language { return r.grammar }

func (r *rustSupport) ExtractSymbols(root *tree_sitter.Node, source []byte, st *SyntaxTree) {
	w := &rsWalker{source: source, st: st}
	cursor := root.Walk()
	defer cursor.Close()
	w.walk(cursor)
}

type rsWalker struct {
	source []byte
	st     *SyntaxTree
}

func (w *rsWalker) walk(cursor *tree_sitter.TreeCursor) {
	node := cursor.Node()

	switch node.Kind() {
	case "function_item":
		if isRustItem(node) {
			w.item(node, SymbolFunction, "")
		}

	case "struct_item", "union_item":
		if isRustItem(node) {
			w.item(node, SymbolType, "")
		}

	case "enum_item":
		if isRustItem(node) {
			w.item(node, SymbolEnum, "")
		}

	case "trait_item":
		if isRustItem(node) {
			w.item(node, SymbolInterface, "")
		}

	case "type_item":
		if isRustItem(node) {
			w.item(node, SymbolType, "")
		}

	case "const_item":
		if isRustItem(node) {
			w.item(node, SymbolConstant, "")
		}

	case "static_item":
		if isRustItem(node) {
			w.item(node, SymbolVariable, "")
		}

	case "impl_item":
		w.impl(node)

	case "use_declaration":
		w.use(node)

	case "call_expression":
		w.call(node)

	case "type_identifier":
		if !isNameOf(node) {
			w.st.Uses = append(w.st.Uses, Use{Name: node.Utf8Text(w.source), Kind: UseReference, Line: startLine(node)})
		}
	}

	if cursor.GotoFirstChild() {
		w.walk(cursor)
		for cursor.GotoNextSibling() {
			w.walk(cursor)
		}
		cursor.GotoParent()
	}
}

// item extracts a symbol from a node that has a "name" field child.
func (w *rsWalker) item(node *tree_sitter.Node, kind SymbolKind, parent string) {
	name := fieldText(node, "name", w.source)
	if name == "" {
		return
	}
	body := node.ChildByFieldName("body")
	doc, docLine := precedingDoc(node, w.source, "attribute_item")
	w.st.Symbols = append(w.st.Symbols, Symbol{
		Name:       name,
		Kind:       kind,
		Exported:   isRustPub(node),
		EntryPoint: kind == SymbolFunction && name == "main",
		Parent:     parent,
		StartLine:  startLine(node),
		EndLine:    endLine(node),
		BodyLine:   bodyLine(body),
		Signature:  signatureOf(node, body, w.source),
		Doc:        rustDoc(doc),
		DocLine:    docLine,
	})
}

// impl processes an impl_item: extracts methods inside, and records trait
// implementations as heritage.
func (w *rsWalker) impl(node *tree_sitter.Node) {
	typeName := rustBaseType(node.ChildByFieldName("type"), w.source)

	// "impl Trait for Type"
	if traitNode := node.ChildByFieldName("trait"); traitNode != nil && typeName != "" {
		if trait := rustBaseType(traitNode, w.source); trait != "" {
			w.st.Heritage = append(w.st.Heritage, Heritage{Type: typeName, Super: trait, Line: startLine(node)})
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child == nil || child.Kind() != "function_item" {
			continue
		}
		w.item(child, SymbolMethod, typeName)
	}
}

func (w *rsWalker) use(node *tree_sitter.Node) {
	// The argument is typically a scoped_identifier, use_wildcard, or
	// use_list. We keep its full text as the specifier.
	text := fieldText(node, "argument", w.source)
	if text == "" {
		text = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(node.Utf8Text(w.source)), "use "), ";")
	}
	if text == "" {
		return
	}
	w.st.Imports = append(w.st.Imports, Import{Specifier: text, Line: startLine(node)})
}

func (w *rsWalker) call(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	var callee string
	switch fnNode.Kind() {
	case "identifier":
		callee = fnNode.Utf8Text(w.source)
	case "scoped_identifier":
		callee = fieldText(fnNode, "name", w.source)
	case "field_expression":
		callee = fieldText(fnNode, "field", w.source)
	}
	if callee != "" {
		w.st.Uses = append(w.st.Uses, Use{Name: callee, Kind: UseCall, Line: startLine(node)})
	}
}

// rustBaseType strips generics and paths from a type node.
func rustBaseType(n *tree_sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "type_identifier":
		return n.Utf8Text(source)
	case "generic_type":
		return rustBaseType(n.ChildByFieldName("type"), source)
	case "scoped_type_identifier":
		return fieldText(n, "name", source)
	}
	if id := firstDescendant(n, "type_identifier"); id != nil {
		return id.Utf8Text(source)
	}
	return ""
}

// isRustItem reports items at crate or module level.
func isRustItem(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	switch parent.Kind() {
	case "source_file":
		return true
	case "declaration_list":
		gp := parent.Parent()
		return gp != nil && gp.Kind() == "mod_item"
	}
	return false
}

// rustDoc keeps only outer doc comments (/// and /** */).
func rustDoc(doc string) string {
	if doc == "" {
		return ""
	}
	var lines []string
	for _, l := range strings.Split(doc, "\n") {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "///") || strings.HasPrefix(t, "/**") {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// isRustPub checks if a node has a visibility_modifier child.
func isRustPub(node *tree_sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c != nil && c.Kind() == "visibility_modifier" {
			return true
		}
	}
	return false
}
