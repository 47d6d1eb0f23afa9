package extract

import (
	"strings"

	"github.com/dusk-indust/ckg/internal/chunk"
	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/parse"
	"github.com/dusk-indust/ckg/internal/tokens"
)

// chunker cuts one file into semantic chunks. Ordinals count per
// (node, chunk type) so a split implementation yields ordinals 0..n-1.
type chunker struct {
	projectID string
	filePath  string
	maxTokens int
	lines     []string
	ordinals  map[string]int
	out       []chunk.Chunk
}

func (p *Pipeline) chunks(projectID, filePath string, file graph.Node, symbols []symbolNode, tree *parse.SyntaxTree) []chunk.Chunk {
	lines := strings.Split(string(tree.Source), "\n")
	c := &chunker{
		projectID: projectID,
		filePath:  filePath,
		maxTokens: p.maxTokens,
		lines:     lines[:min(len(lines), tree.Lines)],
		ordinals:  make(map[string]int),
	}

	c.header(file, symbols)
	for _, sn := range symbols {
		s := sn.sym
		if s.Doc != "" {
			start := s.DocLine
			if start == 0 {
				start = s.StartLine
			}
			c.add(sn.node.ID, chunk.TypeDocumentation, s.Doc, start)
		}
		if s.Signature != "" {
			c.add(sn.node.ID, chunk.TypeSignature, s.Signature, s.StartLine)
		}
		if body := c.span(s.StartLine, s.EndLine); strings.TrimSpace(body) != "" {
			c.add(sn.node.ID, chunk.TypeImplementation, body, s.StartLine)
		}
	}
	return c.out
}

// header emits the file node's chunk: everything above the first
// declaration (package clause, imports, module docs).
func (c *chunker) header(file graph.Node, symbols []symbolNode) {
	end := len(c.lines)
	for _, sn := range symbols {
		first := sn.node.StartLine
		if sn.sym.DocLine > 0 && sn.sym.DocLine < first {
			first = sn.sym.DocLine
		}
		if first-1 < end {
			end = first - 1
		}
	}
	text := c.span(1, end)
	if strings.TrimSpace(text) == "" {
		return
	}
	c.add(file.ID, chunk.TypeSignature, text, 1)
}

// span returns source lines start..end (1-based, inclusive).
func (c *chunker) span(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(c.lines) {
		end = len(c.lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(c.lines[start-1:end], "\n")
}

// add splits text at the token cap and appends one chunk per piece.
// startLine is the source line of text's first line.
func (c *chunker) add(nodeID string, t chunk.Type, text string, startLine int) {
	key := nodeID + "\x00" + string(t)
	for _, piece := range tokens.Split(text, c.maxTokens) {
		if strings.TrimSpace(piece.Text) == "" {
			continue
		}
		ord := c.ordinals[key]
		c.ordinals[key] = ord + 1
		first := startLine + piece.Line
		c.out = append(c.out, chunk.Chunk{
			ID:          chunk.ID(c.projectID, nodeID, t, ord),
			ProjectID:   c.projectID,
			NodeID:      nodeID,
			FilePath:    c.filePath,
			ChunkType:   t,
			Content:     piece.Text,
			TokenCount:  piece.Tokens,
			StartLine:   first,
			EndLine:     first + max(piece.Lines, 1) - 1,
			Ordinal:     ord,
			ContentHash: chunk.Hash(piece.Text),
		})
	}
}
