package parse

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dusk-indust/ckg/internal/graph"
)

// tsSupport extracts symbols from TypeScript and JavaScript. The two
// grammars share node kinds for everything extracted here.
type tsSupport struct {
	lang    graph.Language
	grammar *tree_sitter.Language
	tsx     *tree_sitter.Language
}

func newTSSupport(lang graph.Language) *tsSupport {
	if lang == graph.LangJavaScript {
		return &tsSupport{lang: lang, grammar: tree_sitter.NewLanguage(tree_sitter_javascript.Language())}
	}
	return &tsSupport{
		lang:    lang,
		grammar: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
		tsx:     tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
	}
}

func (t *tsSupport) Language() graph.Language { return t.lang }

func (t *tsSupport) Grammar(path string) *tree_sitter.Language {
	if t.tsx != nil && strings.HasSuffix(strings.ToLower(path), ".tsx") {
		return t.tsx
	}
	return t.grammar
}

func (t *tsSupport) ExtractSymbols(root *tree_sitter.Node, source []byte, st *SyntaxTree) {
	w := &tsWalker{source: source, st: st}
	cursor := root.Walk()
	defer cursor.Close()
	w.walk(cursor)
}

type tsWalker struct {
	source []byte
	st     *SyntaxTree
}

func (w *tsWalker) walk(cursor *tree_sitter.TreeCursor) {
	node := cursor.Node()

	switch node.Kind() {
	case "function_declaration", "generator_function_declaration":
		if isTSTopLevel(node) {
			w.named(node, SymbolFunction, "")
		}

	case "class_declaration", "abstract_class_declaration":
		if isTSTopLevel(node) {
			w.named(node, SymbolClass, "")
			w.heritage(node)
		}

	case "interface_declaration":
		if isTSTopLevel(node) {
			w.named(node, SymbolInterface, "")
			w.heritage(node)
		}

	case "type_alias_declaration":
		if isTSTopLevel(node) {
			w.named(node, SymbolType, "")
		}

	case "enum_declaration":
		if isTSTopLevel(node) {
			w.named(node, SymbolEnum, "")
		}

	case "method_definition":
		if class := enclosingClass(node); class != nil {
			w.named(node, SymbolMethod, fieldText(class, "name", w.source))
		}

	case "lexical_declaration", "variable_declaration":
		if isTSTopLevel(node) {
			w.declarators(node)
		}

	case "import_statement":
		w.importSource(node)

	case "export_statement":
		// Re-exports ("export { x } from './y'") carry a source field.
		if node.ChildByFieldName("source") != nil {
			w.importSource(node)
		}

	case "call_expression":
		w.call(node)

	case "new_expression":
		if ctor := node.ChildByFieldName("constructor"); ctor != nil && ctor.Kind() == "identifier" {
			w.use(ctor.Utf8Text(w.source), UseReference, node)
		}

	case "type_identifier":
		if !isNameOf(node) {
			w.use(node.Utf8Text(w.source), UseReference, node)
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

// named extracts a symbol from a node that has a "name" field child.
func (w *tsWalker) named(node *tree_sitter.Node, kind SymbolKind, parent string) {
	name := fieldText(node, "name", w.source)
	if name == "" {
		return
	}
	outer := outerStatement(node)
	exported := isTSExported(node)
	if kind == SymbolMethod {
		exported = isTSExported(enclosingClass(node)) && !isPrivateMember(node, name, w.source)
	}
	body := node.ChildByFieldName("body")
	doc, docLine := precedingDoc(outer, w.source, "decorator")
	w.st.Symbols = append(w.st.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		Exported:  exported,
		Parent:    parent,
		StartLine: startLine(outer),
		EndLine:   endLine(outer),
		BodyLine:  bodyLine(body),
		Signature: signatureOf(node, body, w.source),
		Doc:       doc,
		DocLine:   docLine,
	})
}

// declarators handles "const foo = () => {...}" and plain top-level
// variables.
func (w *tsWalker) declarators(node *tree_sitter.Node) {
	exported := isTSExported(node)
	constant := strings.HasPrefix(node.Utf8Text(w.source), "const")
	outer := outerStatement(node)
	doc, docLine := precedingDoc(outer, w.source)

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil || nameNode.Kind() != "identifier" {
			continue
		}

		kind := SymbolVariable
		if constant {
			kind = SymbolConstant
		}
		var body *tree_sitter.Node
		if value := child.ChildByFieldName("value"); value != nil {
			switch value.Kind() {
			case "arrow_function", "function_expression", "function":
				kind = SymbolFunction
				body = value.ChildByFieldName("body")
			case "class":
				kind = SymbolClass
				body = value.ChildByFieldName("body")
			}
		}

		w.st.Symbols = append(w.st.Symbols, Symbol{
			Name:      nameNode.Utf8Text(w.source),
			Kind:      kind,
			Exported:  exported,
			StartLine: startLine(outer),
			EndLine:   endLine(outer),
			BodyLine:  bodyLine(body),
			Signature: signatureOf(child, body, w.source),
			Doc:       doc,
			DocLine:   docLine,
		})
	}
}

// heritage records extends/implements clauses of a class or interface.
func (w *tsWalker) heritage(node *tree_sitter.Node) {
	typeName := fieldText(node, "name", w.source)
	if typeName == "" {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "class_heritage", "extends_type_clause", "extends_clause", "implements_clause":
			for _, super := range heritageNames(child, w.source) {
				w.st.Heritage = append(w.st.Heritage, Heritage{Type: typeName, Super: super, Line: startLine(child)})
			}
		}
	}
}

// heritageNames collects the rightmost identifier of every supertype
// expression below n.
func heritageNames(n *tree_sitter.Node, source []byte) []string {
	var out []string
	var visit func(c *tree_sitter.Node)
	visit = func(c *tree_sitter.Node) {
		switch c.Kind() {
		case "identifier", "type_identifier":
			if p := c.Parent(); p != nil && (p.Kind() == "member_expression" || p.Kind() == "nested_type_identifier") {
				return
			}
			out = append(out, c.Utf8Text(source))
			return
		case "property_identifier":
			out = append(out, c.Utf8Text(source))
			return
		case "type_arguments":
			return
		}
		for i := uint(0); i < c.ChildCount(); i++ {
			if ch := c.Child(i); ch != nil {
				visit(ch)
			}
		}
	}
	visit(n)
	return out
}

func (w *tsWalker) importSource(node *tree_sitter.Node) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		// Fall back: look for a string child.
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child != nil && child.Kind() == "string" {
				sourceNode = child
				break
			}
		}
	}
	if sourceNode == nil {
		return
	}
	if spec := trimQuotes(sourceNode.Utf8Text(w.source)); spec != "" {
		w.st.Imports = append(w.st.Imports, Import{Specifier: spec, Line: startLine(node)})
	}
}

func (w *tsWalker) call(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}

	switch fnNode.Kind() {
	case "identifier":
		name := fnNode.Utf8Text(w.source)
		if name == "require" {
			w.require(node)
			return
		}
		w.use(name, UseCall, node)
	case "member_expression":
		w.use(fieldText(fnNode, "property", w.source), UseCall, node)
	case "import":
		// dynamic import("./x")
		w.require(node)
	}
}

// require records CommonJS require('x') and dynamic import('x') calls as
// imports.
func (w *tsWalker) require(node *tree_sitter.Node) {
	args := node.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	str := firstDescendant(args, "string")
	if str == nil {
		return
	}
	if spec := trimQuotes(str.Utf8Text(w.source)); spec != "" {
		w.st.Imports = append(w.st.Imports, Import{Specifier: spec, Line: startLine(node)})
	}
}

func (w *tsWalker) use(name string, kind UseKind, at *tree_sitter.Node) {
	if name == "" {
		return
	}
	w.st.Uses = append(w.st.Uses, Use{Name: name, Kind: kind, Line: startLine(at)})
}

// isTSExported checks if a node is exported by looking at whether its parent
// is an export_statement.
func isTSExported(node *tree_sitter.Node) bool {
	if node == nil {
		return false
	}
	parent := node.Parent()
	if parent == nil {
		return false
	}
	return parent.Kind() == "export_statement"
}

// isTSTopLevel reports declarations directly in the program, possibly
// wrapped in an export statement.
func isTSTopLevel(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.Kind() == "export_statement" {
		parent = parent.Parent()
	}
	return parent != nil && parent.Kind() == "program"
}

// outerStatement returns the export statement wrapping node, or node.
func outerStatement(node *tree_sitter.Node) *tree_sitter.Node {
	if isTSExported(node) {
		return node.Parent()
	}
	return node
}

// enclosingClass returns the top-level class declaring a method, or nil.
func enclosingClass(method *tree_sitter.Node) *tree_sitter.Node {
	body := method.Parent()
	if body == nil || body.Kind() != "class_body" {
		return nil
	}
	class := body.Parent()
	if class == nil || !isTSTopLevel(class) {
		return nil
	}
	return class
}

func isPrivateMember(node *tree_sitter.Node, name string, source []byte) bool {
	if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "_") {
		return true
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if mod := node.Child(i); mod != nil && mod.Kind() == "accessibility_modifier" {
			text := mod.Utf8Text(source)
			return text == "private" || text == "protected"
		}
	}
	return false
}
