package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/tokens"
)

// sectionSep joins sections. It is whitespace, so it never adds tokens.
const sectionSep = "\n\n"

// assemble adds ranked candidates to the payload until the next one would
// exceed maxTokens. Sections are never truncated.
func (s *buildState) assemble(ctx context.Context, ranked []*candidate, maxTokens int) {
	var (
		b        strings.Builder
		used     int
		headered = make(map[string]bool)
	)
	for _, c := range ranked {
		caller := ""
		if !s.opts.SkipCallers && ctx.Err() == nil {
			caller = s.nearestCaller(ctx, c.chunk.NodeID)
		}
		section := render(c, caller, !headered[c.chunk.FilePath])
		n := tokens.Count(section)
		if used+n > maxTokens {
			break
		}
		headered[c.chunk.FilePath] = true
		if b.Len() > 0 {
			b.WriteString(sectionSep)
		}
		b.WriteString(section)
		used += n
		s.payload.Items = append(s.payload.Items, Item{
			ChunkID:    c.chunk.ID,
			NodeID:     c.chunk.NodeID,
			FilePath:   c.chunk.FilePath,
			ChunkType:  c.chunk.ChunkType,
			StartLine:  c.chunk.StartLine,
			EndLine:    c.chunk.EndLine,
			TokenCount: n,
			Score:      c.score,
			Scores:     c.scores,
			Sources:    c.sources,
			Caller:     caller,
		})
	}
	s.payload.Content = b.String()
	s.payload.TokenCount = used
}

// render formats one candidate. The first section of a file carries the
// file header.
func render(c *candidate, caller string, header bool) string {
	var b strings.Builder
	if header {
		fmt.Fprintf(&b, "// file: %s\n", c.chunk.FilePath)
	}
	fmt.Fprintf(&b, "// lines %d-%d (%s)\n", c.chunk.StartLine, c.chunk.EndLine, c.chunk.ChunkType)
	if caller != "" {
		fmt.Fprintf(&b, "// called by: %s\n", caller)
	}
	b.WriteString(c.chunk.Content)
	return b.String()
}

// nearestCaller returns the signature of the closest symbol that reaches
// nodeID through incoming edges, or "" when there is none.
func (s *buildState) nearestCaller(ctx context.Context, nodeID string) string {
	depth := s.cfg.MaxDepth
	neighbors, err := storeCall(ctx, s.storeTimeout, func(ctx context.Context) ([]graph.Neighbor, error) {
		return s.graph.Neighbors(ctx, nodeID, graph.DirectionIn, depth, depth)
	})
	if timedOut(err) {
		s.degrade(fmt.Sprintf("caller lookup timed out, callers omitted: %v", err))
		s.opts.SkipCallers = true
		return ""
	}
	if err != nil {
		s.log.Debug("caller lookup", "project", s.projectID, "node", nodeID, "err", err)
		return ""
	}
	var callers []graph.Neighbor
	for _, n := range neighbors {
		if n.Node.ID != nodeID && n.Node.Kind.IsSymbol() {
			callers = append(callers, n)
		}
	}
	if len(callers) == 0 {
		return ""
	}
	sort.Slice(callers, func(i, j int) bool {
		a, b := callers[i], callers[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if a.Node.FilePath != b.Node.FilePath {
			return a.Node.FilePath < b.Node.FilePath
		}
		return a.Node.StartLine < b.Node.StartLine
	})
	n := callers[0].Node
	if sig := n.Meta(graph.MetaSignature); sig != "" {
		return sig
	}
	return n.Name
}
