package parse

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/dusk-indust/ckg/internal/graph"
)

// goSupport extracts symbols, imports and uses from Go source files.
type goSupport struct {
	grammar *tree_sitter.Language
}

func newGoSupport() *goSupport {
	return &goSupport{grammar: tree_sitter.NewLanguage(tree_sitter_go.Language())}
}

func (g *goSupport) Language() graph.Language             { return graph.LangGo }
func (g *goSupport) Grammar(string) *tree_sitter.Language { return g.grammar }

func (g *goSupport) ExtractSymbols(root *tree_sitter.Node, source []byte, st *SyntaxTree) {
	w := &goWalker{source: source, st: st}
	cursor := root.Walk()
	defer cursor.Close()
	w.walk(cursor)
}

type goWalker struct {
	source  []byte
	st      *SyntaxTree
	pkgName string
}

func (w *goWalker) walk(cursor *tree_sitter.TreeCursor) {
	node := cursor.Node()

	switch node.Kind() {
	case "package_clause":
		if id := firstDescendant(node, "package_identifier"); id != nil {
			w.pkgName = id.Utf8Text(w.source)
		}

	case "function_declaration":
		w.function(node, SymbolFunction, "")

	case "method_declaration":
		w.function(node, SymbolMethod, receiverType(node, w.source))

	case "type_declaration":
		w.typeDeclaration(node)

	case "var_declaration", "const_declaration":
		if p := node.Parent(); p != nil && p.Kind() == "source_file" {
			w.valueDeclaration(node)
		}

	case "import_spec":
		w.importSpec(node)

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

func (w *goWalker) function(node *tree_sitter.Node, kind SymbolKind, parent string) {
	name := fieldText(node, "name", w.source)
	if name == "" {
		return
	}
	body := node.ChildByFieldName("body")
	doc, docLine := precedingDoc(node, w.source)
	w.st.Symbols = append(w.st.Symbols, Symbol{
		Name:       name,
		Kind:       kind,
		Exported:   isGoExported(name),
		EntryPoint: kind == SymbolFunction && w.isEntryPoint(name),
		Parent:     parent,
		StartLine:  startLine(node),
		EndLine:    endLine(node),
		BodyLine:   bodyLine(body),
		Signature:  signatureOf(node, body, w.source),
		Doc:        doc,
		DocLine:    docLine,
	})
}

// isEntryPoint reports functions invoked by the toolchain rather than code.
func (w *goWalker) isEntryPoint(name string) bool {
	switch {
	case name == "main" && w.pkgName == "main", name == "init":
		return true
	case strings.HasPrefix(name, "Test"), strings.HasPrefix(name, "Benchmark"),
		strings.HasPrefix(name, "Fuzz"), strings.HasPrefix(name, "Example"):
		return strings.HasSuffix(w.st.Path, "_test.go")
	}
	return false
}

func (w *goWalker) typeDeclaration(node *tree_sitter.Node) {
	var specs []*tree_sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && (child.Kind() == "type_spec" || child.Kind() == "type_alias") {
			specs = append(specs, child)
		}
	}

	for _, spec := range specs {
		name := fieldText(spec, "name", w.source)
		if name == "" {
			continue
		}
		kind := SymbolType
		var body *tree_sitter.Node
		if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
			switch typeNode.Kind() {
			case "interface_type":
				kind = SymbolInterface
				body = typeNode
			case "struct_type":
				body = typeNode.ChildByFieldName("body")
				if body == nil {
					body = firstDescendant(typeNode, "field_declaration_list")
				}
			}
		}

		// A lone spec spans the whole declaration and owns its doc comment.
		outer := spec
		if len(specs) == 1 {
			outer = node
		}
		doc, docLine := precedingDoc(outer, w.source)
		w.st.Symbols = append(w.st.Symbols, Symbol{
			Name:      name,
			Kind:      kind,
			Exported:  isGoExported(name),
			StartLine: startLine(outer),
			EndLine:   endLine(outer),
			BodyLine:  bodyLine(body),
			Signature: signatureOf(outer, body, w.source),
			Doc:       doc,
			DocLine:   docLine,
		})
	}
}

func (w *goWalker) valueDeclaration(node *tree_sitter.Node) {
	kind := SymbolVariable
	specKind := "var_spec"
	if node.Kind() == "const_declaration" {
		kind = SymbolConstant
		specKind = "const_spec"
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		spec := node.Child(i)
		if spec == nil {
			continue
		}
		if spec.Kind() == "var_spec_list" {
			for j := uint(0); j < spec.ChildCount(); j++ {
				if c := spec.Child(j); c != nil && c.Kind() == specKind {
					w.valueSpec(c, kind)
				}
			}
			continue
		}
		if spec.Kind() == specKind {
			w.valueSpec(spec, kind)
		}
	}
}

func (w *goWalker) valueSpec(spec *tree_sitter.Node, kind SymbolKind) {
	name := fieldText(spec, "name", w.source)
	if name == "" || name == "_" {
		return
	}
	doc, docLine := precedingDoc(spec, w.source)
	w.st.Symbols = append(w.st.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		Exported:  isGoExported(name),
		StartLine: startLine(spec),
		EndLine:   endLine(spec),
		Signature: signatureOf(spec, nil, w.source),
		Doc:       doc,
		DocLine:   docLine,
	})
}

func (w *goWalker) importSpec(node *tree_sitter.Node) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		// Fall back to finding an interpreted_string_literal child.
		pathNode = firstDescendant(node, "interpreted_string_literal")
	}
	if pathNode == nil {
		return
	}
	importPath := trimQuotes(pathNode.Utf8Text(w.source))
	if importPath == "" {
		return
	}
	w.st.Imports = append(w.st.Imports, Import{Specifier: importPath, Line: startLine(node)})
}

func (w *goWalker) call(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}

	// Best-effort: only simple identifiers and the selected field of
	// selector expressions.
	var callee string
	switch fnNode.Kind() {
	case "identifier":
		callee = fnNode.Utf8Text(w.source)
	case "selector_expression":
		callee = fieldText(fnNode, "field", w.source)
	}
	if callee == "" {
		return
	}
	w.st.Uses = append(w.st.Uses, Use{Name: callee, Kind: UseCall, Line: startLine(node)})
}

// receiverType returns the base type name of a method receiver.
func receiverType(node *tree_sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if id := firstDescendant(recv, "type_identifier"); id != nil {
		return id.Utf8Text(source)
	}
	return ""
}

// isGoExported returns true if the first rune of name is an uppercase letter.
func isGoExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
