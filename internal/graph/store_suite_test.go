package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

const testProject = "proj"

// fileNode builds a file node for path.
func fileNode(path string) Node {
	return Node{
		ID:        NodeID(testProject, path, KindFile, path, 1),
		ProjectID: testProject,
		Kind:      KindFile,
		Name:      path,
		FilePath:  path,
		Language:  LangGo,
		StartLine: 1,
		EndLine:   20,
	}
}

// symbolNode builds a function node named name in path at line.
func symbolNode(path, name string, line int) Node {
	return Node{
		ID:        NodeID(testProject, path, KindFunction, name, line),
		ProjectID: testProject,
		Kind:      KindFunction,
		Name:      name,
		FilePath:  path,
		Language:  LangGo,
		StartLine: line,
		EndLine:   line + 2,
		Metadata:  map[string]string{MetaExported: "true"},
	}
}

func edge(owner string, from, to Node, rel Relationship) Edge {
	return Edge{
		ID:           EdgeID(testProject, from.ID, to.ID, rel),
		ProjectID:    testProject,
		FromID:       from.ID,
		ToID:         to.ID,
		Relationship: rel,
		Weight:       1,
		FilePath:     owner,
	}
}

// fileGraph builds a file with the given function names and defines edges.
func fileGraph(path string, funcs ...string) (FileGraph, []Node) {
	f := fileNode(path)
	fg := FileGraph{ProjectID: testProject, FilePath: path, Nodes: []Node{f}}
	syms := []Node{f}
	for i, name := range funcs {
		s := symbolNode(path, name, 3+i*4)
		fg.Nodes = append(fg.Nodes, s)
		fg.Edges = append(fg.Edges, edge(path, f, s, RelDefines))
		syms = append(syms, s)
	}
	return fg, syms
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func nodeIDs(nodes []Node) []string { return ids(nodes, func(n Node) string { return n.ID }) }
func edgeIDs(edges []Edge) []string { return ids(edges, func(e Edge) string { return e.ID }) }

// runStoreSuite exercises the Store contract against one implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("InitSchemaIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InitSchema(ctx))
		require.NoError(t, s.InitSchema(ctx))
	})

	t.Run("ReplaceFileRoundTrip", func(t *testing.T) {
		s := newStore(t)
		fg, nodes := fileGraph("a.go", "Foo", "Bar")
		removed, err := s.ReplaceFile(ctx, fg)
		require.NoError(t, err)
		assert.Empty(t, removed)

		got, err := s.GetNode(ctx, nodes[1].ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Foo", got.Name)
		assert.True(t, got.Exported())

		byFile, err := s.NodesByFile(ctx, testProject, "a.go")
		require.NoError(t, err)
		assert.Len(t, byFile, 3)

		st, err := s.Stats(ctx, testProject)
		require.NoError(t, err)
		assert.Equal(t, &Stats{Files: 1, Symbols: 2, Edges: 2}, st)
	})

	t.Run("GetNodeNotFound", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetNode(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ReplaceFileIdempotent", func(t *testing.T) {
		s := newStore(t)
		fg, _ := fileGraph("a.go", "Foo")
		_, err := s.ReplaceFile(ctx, fg)
		require.NoError(t, err)
		removed, err := s.ReplaceFile(ctx, fg)
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		st, err := s.Stats(ctx, testProject)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Files+st.Symbols)
		assert.Equal(t, 1, st.Edges)
	})

	t.Run("UpsertNodesAndEdges", func(t *testing.T) {
		s := newStore(t)
		a, b := fileNode("a.go"), fileNode("b.go")
		require.NoError(t, s.UpsertNodes(ctx, []Node{a, b}))
		require.NoError(t, s.UpsertEdges(ctx, []Edge{edge("a.go", a, b, RelImports)}))
		require.NoError(t, s.UpsertEdges(ctx, []Edge{edge("a.go", a, b, RelImports)}))

		edges, err := s.EdgesByRelationship(ctx, testProject, RelImports)
		require.NoError(t, err)
		assert.Len(t, edges, 1, "upsert by id must not duplicate")
	})

	t.Run("DanglingEdgeRejected", func(t *testing.T) {
		s := newStore(t)
		a := fileNode("a.go")
		require.NoError(t, s.UpsertNodes(ctx, []Node{a}))
		ghost := fileNode("ghost.go")
		err := s.UpsertEdges(ctx, []Edge{edge("a.go", a, ghost, RelImports)})
		require.Error(t, err)
		assert.True(t, ckgerr.HasCode(err, ckgerr.IndexCorruption))

		edges, err := s.EdgesByRelationship(ctx, testProject)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("ReplaceFileRollsBackOnDanglingEdge", func(t *testing.T) {
		s := newStore(t)
		fg, _ := fileGraph("a.go", "Foo")
		_, err := s.ReplaceFile(ctx, fg)
		require.NoError(t, err)

		bad, nodes := fileGraph("a.go", "Baz")
		bad.Edges = append(bad.Edges, edge("a.go", nodes[0], fileNode("ghost.go"), RelImports))
		_, err = s.ReplaceFile(ctx, bad)
		require.Error(t, err)

		byFile, err := s.NodesByFile(ctx, testProject, "a.go")
		require.NoError(t, err)
		names := ids(byFile, func(n Node) string { return n.Name })
		assert.Contains(t, names, "Foo", "previous version must survive a failed replace")
		assert.NotContains(t, names, "Baz")
	})

	t.Run("DeleteByFileCascade", func(t *testing.T) {
		s := newStore(t)
		fa, na := fileGraph("a.go", "Foo")
		fb, nb := fileGraph("b.go", "Bar")
		fb.Edges = append(fb.Edges, edge("b.go", nb[1], na[1], RelCalls))
		_, err := s.ReplaceFile(ctx, fa)
		require.NoError(t, err)
		_, err = s.ReplaceFile(ctx, fb)
		require.NoError(t, err)

		// an edge owned by a.go pointing into b.go
		require.NoError(t, s.UpsertEdges(ctx, []Edge{edge("a.go", na[0], nb[0], RelImports)}))

		removed, err := s.DeleteByFile(ctx, testProject, "a.go")
		require.NoError(t, err)
		assert.ElementsMatch(t, nodeIDs(na), removed)

		for _, n := range na {
			got, err := s.GetNode(ctx, n.ID)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
		all, err := s.EdgesByRelationship(ctx, testProject)
		require.NoError(t, err)
		for _, e := range all {
			assert.NotContains(t, nodeIDs(na), e.FromID)
			assert.NotContains(t, nodeIDs(na), e.ToID)
		}
		assert.Len(t, all, 1, "only b.go's defines edge remains")
	})

	t.Run("FindEdgesDirection", func(t *testing.T) {
		s := newStore(t)
		a, b, c := fileNode("a.go"), fileNode("b.go"), fileNode("c.go")
		require.NoError(t, s.UpsertNodes(ctx, []Node{a, b, c}))
		ab := edge("a.go", a, b, RelImports)
		cb := edge("c.go", c, b, RelImports)
		bc := edge("b.go", b, c, RelReferences)
		require.NoError(t, s.UpsertEdges(ctx, []Edge{ab, cb, bc}))

		in, err := s.FindEdges(ctx, b.ID, DirectionIn)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{ab.ID, cb.ID}, edgeIDs(in))

		out, err := s.FindEdges(ctx, b.ID, DirectionOut, RelImports)
		require.NoError(t, err)
		assert.Empty(t, out)

		both, err := s.FindEdges(ctx, b.ID, DirectionBoth)
		require.NoError(t, err)
		assert.Len(t, both, 3)
	})

	t.Run("NeighborsBounded", func(t *testing.T) {
		s := newStore(t)
		chain := []Node{fileNode("1.go"), fileNode("2.go"), fileNode("3.go"), fileNode("4.go"), fileNode("5.go")}
		require.NoError(t, s.UpsertNodes(ctx, chain))
		var edges []Edge
		for i := 0; i+1 < len(chain); i++ {
			edges = append(edges, edge(chain[i].FilePath, chain[i], chain[i+1], RelImports))
		}
		// cycle back to the start
		edges = append(edges, edge("5.go", chain[4], chain[0], RelImports))
		require.NoError(t, s.UpsertEdges(ctx, edges))

		got, err := s.Neighbors(ctx, chain[0].ID, DirectionOut, 10, 0)
		require.NoError(t, err)
		require.Len(t, got, 3, "default max depth is 3")
		assert.Equal(t, chain[1].ID, got[0].Node.ID)
		assert.Equal(t, 1, got[0].Depth)
		assert.Equal(t, 3, got[2].Depth)

		got, err = s.Neighbors(ctx, chain[0].ID, DirectionIn, 1, 3)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, chain[4].ID, got[0].Node.ID)

		got, err = s.Neighbors(ctx, chain[0].ID, DirectionBoth, 0, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NodesByNameAndKind", func(t *testing.T) {
		s := newStore(t)
		fa, _ := fileGraph("a.go", "Parse")
		fb, _ := fileGraph("b.go", "parse")
		_, err := s.ReplaceFile(ctx, fa)
		require.NoError(t, err)
		_, err = s.ReplaceFile(ctx, fb)
		require.NoError(t, err)

		exact, err := s.NodesByName(ctx, testProject, "Parse", false)
		require.NoError(t, err)
		require.Len(t, exact, 1)
		assert.Equal(t, "a.go", exact[0].FilePath)

		folded, err := s.NodesByName(ctx, testProject, "PARSE", true)
		require.NoError(t, err)
		assert.Len(t, folded, 2)

		files, err := s.NodesByKind(ctx, testProject, KindFile)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.go", "b.go"}, ids(files, func(n Node) string { return n.FilePath }))

		other, err := s.NodesByName(ctx, "other-project", "Parse", false)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("RefsAndSymbolEdges", func(t *testing.T) {
		s := newStore(t)
		fa, na := fileGraph("a.go", "Foo")
		fb, nb := fileGraph("b.go", "Bar")
		fb.Refs = []Ref{{
			ID:           RefID(testProject, "b.go", nb[1].ID, "Foo", RelCalls, 4, 0),
			ProjectID:    testProject,
			FilePath:     "b.go",
			FromID:       nb[1].ID,
			Name:         "Foo",
			Relationship: RelCalls,
			Line:         4,
		}}
		_, err := s.ReplaceFile(ctx, fa)
		require.NoError(t, err)
		_, err = s.ReplaceFile(ctx, fb)
		require.NoError(t, err)

		refs, err := s.RefsByName(ctx, testProject, []string{"Foo"})
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "b.go", refs[0].FilePath)

		linked := edge("b.go", nb[1], na[1], RelCalls)
		linked.Metadata = map[string]string{MetaSymbol: "Foo"}
		require.NoError(t, s.ReplaceEdges(ctx, testProject, nil, []Edge{linked}))

		sym, err := s.EdgesBySymbol(ctx, testProject, []string{"Foo"})
		require.NoError(t, err)
		require.Len(t, sym, 1)
		assert.Equal(t, linked.ID, sym[0].ID)

		require.NoError(t, s.ReplaceEdges(ctx, testProject, []string{linked.ID}, nil))
		sym, err = s.EdgesBySymbol(ctx, testProject, []string{"Foo"})
		require.NoError(t, err)
		assert.Empty(t, sym)

		_, err = s.DeleteByFile(ctx, testProject, "b.go")
		require.NoError(t, err)
		refs, err = s.RefsByFile(ctx, testProject, "b.go")
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("CrossProjectEdgeRejected", func(t *testing.T) {
		s := newStore(t)
		a := fileNode("a.go")
		b := fileNode("b.go")
		b.ProjectID = "other"
		b.ID = NodeID("other", "b.go", KindFile, "b.go", 1)
		require.NoError(t, s.UpsertNodes(ctx, []Node{a, b}))
		err := s.UpsertEdges(ctx, []Edge{edge("a.go", a, b, RelImports)})
		require.Error(t, err)
		assert.True(t, ckgerr.HasCode(err, ckgerr.InvalidArgument))
	})
}
