package parse

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/dusk-indust/ckg/internal/graph"
)

// pySupport extracts symbols, imports and uses from Python source files.
type pySupport struct {
	grammar *tree_sitter.Language
}

func newPySupport() *pySupport {
	return &pySupport{grammar: tree_sitter.NewLanguage(tree_sitter_python.Language())}
}

func (p *pySupport) Language() graph.Language             { return graph.LangPython }
func (p *pySupport) Grammar(string) *tree_sitter.Language { return p.grammar }

func (p *pySupport) ExtractSymbols(root *tree_sitter.Node, source []byte, st *SyntaxTree) {
	w := &pyWalker{source: source, st: st}
	cursor := root.Walk()
	defer cursor.Close()
	w.walk(cursor)
}

type pyWalker struct {
	source []byte
	st     *SyntaxTree
}

func (w *pyWalker) walk(cursor *tree_sitter.TreeCursor) {
	node := cursor.Node()

	switch node.Kind() {
	case "function_definition":
		if isPyTopLevel(node) {
			w.definition(node, SymbolFunction, "")
		} else if class := pyEnclosingClass(node); class != nil {
			w.definition(node, SymbolMethod, fieldText(class, "name", w.source))
		}

	case "class_definition":
		if isPyTopLevel(node) {
			w.definition(node, SymbolClass, "")
			w.superclasses(node)
		}

	case "decorated_definition":
		// The actual function_definition or class_definition is a child; we
		// handle it when we recurse.

	case "expression_statement":
		if p := node.Parent(); p != nil && p.Kind() == "module" {
			w.assignment(node)
		}

	case "if_statement":
		if p := node.Parent(); p != nil && p.Kind() == "module" && isMainGuard(node, w.source) {
			w.markMainGuard(node)
		}

	case "import_statement":
		w.importStatement(node)

	case "import_from_statement":
		w.fromImport(node)

	case "call":
		w.call(node)
	}

	if cursor.GotoFirstChild() {
		w.walk(cursor)
		for cursor.GotoNextSibling() {
			w.walk(cursor)
		}
		cursor.GotoParent()
	}
}

func (w *pyWalker) definition(node *tree_sitter.Node, kind SymbolKind, parent string) {
	name := fieldText(node, "name", w.source)
	if name == "" {
		return
	}
	outer := node
	if p := node.Parent(); p != nil && p.Kind() == "decorated_definition" {
		outer = p
	}
	body := node.ChildByFieldName("body")
	doc, docLine := pyDocstring(body, w.source)
	if doc == "" {
		doc, docLine = precedingDoc(outer, w.source)
	}
	exported := isPyExported(name)
	if kind == SymbolMethod {
		exported = exported && isPyExported(parent)
	}
	w.st.Symbols = append(w.st.Symbols, Symbol{
		Name:       name,
		Kind:       kind,
		Exported:   exported,
		EntryPoint: kind == SymbolFunction && name == "main",
		Parent:     parent,
		StartLine:  startLine(outer),
		EndLine:    endLine(outer),
		BodyLine:   bodyLine(body),
		Signature:  signatureOf(node, body, w.source),
		Doc:        doc,
		DocLine:    docLine,
	})
}

func (w *pyWalker) superclasses(node *tree_sitter.Node) {
	args := node.ChildByFieldName("superclasses")
	if args == nil {
		return
	}
	typeName := fieldText(node, "name", w.source)
	for i := uint(0); i < args.ChildCount(); i++ {
		arg := args.Child(i)
		if arg == nil {
			continue
		}
		var super string
		switch arg.Kind() {
		case "identifier":
			super = arg.Utf8Text(w.source)
		case "attribute":
			super = fieldText(arg, "attribute", w.source)
		}
		if super != "" && super != "object" {
			w.st.Heritage = append(w.st.Heritage, Heritage{Type: typeName, Super: super, Line: startLine(arg)})
		}
	}
}

// assignment records module-level "NAME = value" statements.
func (w *pyWalker) assignment(node *tree_sitter.Node) {
	assign := node.Child(0)
	if assign == nil || assign.Kind() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := left.Utf8Text(w.source)
	kind := SymbolVariable
	if name == strings.ToUpper(name) {
		kind = SymbolConstant
	}
	doc, docLine := precedingDoc(node, w.source)
	w.st.Symbols = append(w.st.Symbols, Symbol{
		Name:      name,
		Kind:      kind,
		Exported:  isPyExported(name),
		StartLine: startLine(node),
		EndLine:   endLine(node),
		Signature: signatureOf(node, nil, w.source),
		Doc:       doc,
		DocLine:   docLine,
	})
}

// markMainGuard flags functions called under `if __name__ == "__main__":`
// as entry points.
func (w *pyWalker) markMainGuard(node *tree_sitter.Node) {
	called := map[string]bool{}
	var visit func(n *tree_sitter.Node)
	visit = func(n *tree_sitter.Node) {
		if n.Kind() == "call" {
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Kind() == "identifier" {
				called[fn.Utf8Text(w.source)] = true
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			if c := n.Child(i); c != nil {
				visit(c)
			}
		}
	}
	visit(node)
	for i := range w.st.Symbols {
		if called[w.st.Symbols[i].Name] && w.st.Symbols[i].Kind == SymbolFunction {
			w.st.Symbols[i].EntryPoint = true
		}
	}
}

func (w *pyWalker) importStatement(node *tree_sitter.Node) {
	// import_statement children: "import" keyword then dotted_name(s) or
	// aliased_import(s).
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		var module string
		switch child.Kind() {
		case "dotted_name":
			module = child.Utf8Text(w.source)
		case "aliased_import":
			module = fieldText(child, "name", w.source)
		}
		if module != "" {
			w.st.Imports = append(w.st.Imports, Import{Specifier: module, Line: startLine(node)})
		}
	}
}

func (w *pyWalker) fromImport(node *tree_sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		// Fall back: look for a dotted_name child.
		moduleNode = firstDescendant(node, "dotted_name")
	}
	if moduleNode == nil {
		return
	}
	if module := moduleNode.Utf8Text(w.source); module != "" {
		w.st.Imports = append(w.st.Imports, Import{Specifier: module, Line: startLine(node)})
	}
}

func (w *pyWalker) call(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	var callee string
	switch fnNode.Kind() {
	case "identifier":
		callee = fnNode.Utf8Text(w.source)
	case "attribute":
		callee = fieldText(fnNode, "attribute", w.source)
	}
	if callee != "" {
		w.st.Uses = append(w.st.Uses, Use{Name: callee, Kind: UseCall, Line: startLine(node)})
	}
}

// pyDocstring returns the string literal opening body, if any.
func pyDocstring(body *tree_sitter.Node, source []byte) (string, int) {
	if body == nil || body.ChildCount() == 0 {
		return "", 0
	}
	first := body.Child(0)
	if first == nil || first.Kind() != "expression_statement" || first.ChildCount() == 0 {
		return "", 0
	}
	str := first.Child(0)
	if str == nil || str.Kind() != "string" {
		return "", 0
	}
	return str.Utf8Text(source), startLine(str)
}

// isMainGuard matches `if __name__ == "__main__":`.
func isMainGuard(node *tree_sitter.Node, source []byte) bool {
	cond := fieldText(node, "condition", source)
	return strings.Contains(cond, "__name__") && strings.Contains(cond, "__main__")
}

// isPyTopLevel returns true if the node is at the module top level.
// A top-level node has a parent that is "module", or a parent that is
// "decorated_definition" whose own parent is "module".
func isPyTopLevel(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.Kind() == "module" {
		return true
	}
	if parent.Kind() == "decorated_definition" {
		grandparent := parent.Parent()
		return grandparent != nil && grandparent.Kind() == "module"
	}
	return false
}

// pyEnclosingClass returns the top-level class whose body directly holds
// node, or nil.
func pyEnclosingClass(node *tree_sitter.Node) *tree_sitter.Node {
	parent := node.Parent()
	if parent != nil && parent.Kind() == "decorated_definition" {
		parent = parent.Parent()
	}
	if parent == nil || parent.Kind() != "block" {
		return nil
	}
	class := parent.Parent()
	if class == nil || class.Kind() != "class_definition" || !isPyTopLevel(class) {
		return nil
	}
	return class
}

// isPyExported returns true if the name does not start with an underscore.
func isPyExported(name string) bool {
	return !strings.HasPrefix(name, "_")
}
