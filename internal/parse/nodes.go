package parse

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// startLine returns the 1-based first line of n.
func startLine(n *tree_sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

// endLine returns the 1-based last line of n.
func endLine(n *tree_sitter.Node) int {
	return int(n.EndPosition().Row) + 1
}

// fieldText returns the text of n's child at field, or "".
func fieldText(n *tree_sitter.Node, field string, source []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return c.Utf8Text(source)
}

// signatureOf returns the declaration header of n: everything before body,
// or the first line when there is no body. Whitespace is collapsed.
func signatureOf(n, body *tree_sitter.Node, source []byte) string {
	var raw string
	if body != nil && body.StartByte() > n.StartByte() {
		raw = string(source[n.StartByte():body.StartByte()])
	} else {
		raw = n.Utf8Text(source)
		if i := strings.IndexByte(raw, '\n'); i >= 0 {
			raw = raw[:i]
		}
	}
	return strings.Join(strings.Fields(raw), " ")
}

// bodyLine returns the first line of body, or 0.
func bodyLine(body *tree_sitter.Node) int {
	if body == nil {
		return 0
	}
	return startLine(body)
}

func isComment(kind string) bool {
	return kind == "comment" || kind == "line_comment" || kind == "block_comment"
}

// precedingDoc collects the comment block directly above n, skipping
// sibling kinds listed in skip (attributes, decorators). It returns the
// comment text and its first line, or "", 0.
func precedingDoc(n *tree_sitter.Node, source []byte, skip ...string) (string, int) {
	var lines []string
	first := 0
	next := startLine(n)
	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		kind := prev.Kind()
		if contains(skip, kind) {
			next = startLine(prev)
			continue
		}
		if !isComment(kind) || endLine(prev) < next-1 {
			break
		}
		lines = append([]string{prev.Utf8Text(source)}, lines...)
		first = startLine(prev)
		next = first
	}
	if len(lines) == 0 {
		return "", 0
	}
	return strings.Join(lines, "\n"), first
}

// firstDescendant returns the first node of kind in a pre-order walk of n.
func firstDescendant(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	if n == nil {
		return nil
	}
	if n.Kind() == kind {
		return n
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if found := firstDescendant(n.Child(i), kind); found != nil {
			return found
		}
	}
	return nil
}

// isNameOf reports whether n is the "name" field of its parent.
func isNameOf(n *tree_sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	name := parent.ChildByFieldName("name")
	return name != nil && name.StartByte() == n.StartByte() && name.EndByte() == n.EndByte()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// trimQuotes strips string delimiters from an import specifier.
func trimQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}
