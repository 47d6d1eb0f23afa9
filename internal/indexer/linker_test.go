package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/graph"
)

const linkProject = "proj"

// linkFixture writes hand-built file graphs into a MemStore.
type linkFixture struct {
	t     *testing.T
	store *graph.MemStore
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	s := graph.NewMemStore()
	require.NoError(t, s.InitSchema(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return &linkFixture{t: t, store: s}
}

type def struct {
	name     string
	line     int
	exported bool
}

type use struct {
	from string // owning symbol name, "" for the file node
	name string
	rel  graph.Relationship
	line int
}

// put replaces path with a file node, the given definitions and refs, and
// returns the node ids keyed by name (the file node under "").
func (f *linkFixture) put(path string, lang graph.Language, defs []def, uses []use) map[string]string {
	f.t.Helper()
	file := graph.Node{
		ID: fileNodeID(linkProject, path), ProjectID: linkProject, Kind: graph.KindFile,
		Name: path, FilePath: path, Language: lang, StartLine: 1, EndLine: 100,
	}
	ids := map[string]string{"": file.ID}
	nodes := []graph.Node{file}
	for _, d := range defs {
		n := graph.Node{
			ID:        graph.NodeID(linkProject, path, graph.KindFunction, d.name, d.line),
			ProjectID: linkProject, Kind: graph.KindFunction, Name: d.name,
			FilePath: path, Language: lang, StartLine: d.line, EndLine: d.line + 2,
		}
		if d.exported {
			n.Metadata = map[string]string{graph.MetaExported: "true"}
		}
		ids[d.name] = n.ID
		nodes = append(nodes, n)
	}
	var refs []graph.Ref
	for i, u := range uses {
		from := ids[u.from]
		refs = append(refs, graph.Ref{
			ID:        graph.RefID(linkProject, path, from, u.name, u.rel, u.line, i),
			ProjectID: linkProject, FilePath: path, FromID: from,
			Name: u.name, Relationship: u.rel, Line: u.line,
		})
	}
	_, err := f.store.ReplaceFile(context.Background(), graph.FileGraph{
		ProjectID: linkProject, FilePath: path, Nodes: nodes, Refs: refs,
	})
	require.NoError(f.t, err)
	return ids
}

func (f *linkFixture) link(names ...string) []graph.Edge {
	f.t.Helper()
	l := &linker{store: f.store}
	_, err := l.link(context.Background(), linkProject, names)
	require.NoError(f.t, err)
	edges, err := f.store.EdgesBySymbol(context.Background(), linkProject, names)
	require.NoError(f.t, err)
	return edges
}

func TestLinker_SameFileWins(t *testing.T) {
	f := newLinkFixture(t)
	a := f.put("a.ts", graph.LangTypeScript, []def{{"helper", 1, false}, {"run", 5, true}},
		[]use{{from: "run", name: "helper", rel: graph.RelCalls, line: 6}})
	f.put("b.ts", graph.LangTypeScript, []def{{"helper", 1, true}}, nil)

	edges := f.link("helper")
	require.Len(t, edges, 1)
	assert.Equal(t, a["run"], edges[0].FromID)
	assert.Equal(t, a["helper"], edges[0].ToID)
	assert.Equal(t, 1.0, edges[0].Weight)
	assert.Equal(t, "a.ts", edges[0].FilePath)
	assert.Equal(t, "helper", edges[0].Meta(graph.MetaSymbol))
}

func TestLinker_ImportedFileBeforeProject(t *testing.T) {
	f := newLinkFixture(t)
	b := f.put("b.ts", graph.LangTypeScript, []def{{"parse", 1, true}}, nil)
	f.put("c.ts", graph.LangTypeScript, []def{{"parse", 1, true}}, nil)
	a := f.put("a.ts", graph.LangTypeScript, nil, []use{
		{name: "b.ts", rel: graph.RelImports, line: 1},
		{name: "parse", rel: graph.RelCalls, line: 3},
	})

	edges := f.link("parse", "b.ts")
	require.Len(t, edges, 2)
	byRel := map[graph.Relationship]graph.Edge{}
	for _, e := range edges {
		byRel[e.Relationship] = e
	}
	assert.Equal(t, b[""], byRel[graph.RelImports].ToID)
	assert.Equal(t, a[""], byRel[graph.RelImports].FromID)
	assert.Equal(t, b["parse"], byRel[graph.RelCalls].ToID)
}

func TestLinker_ProjectScopeSplitsWeight(t *testing.T) {
	f := newLinkFixture(t)
	b := f.put("b.js", graph.LangJavaScript, []def{{"render", 1, true}}, nil)
	c := f.put("c.js", graph.LangJavaScript, []def{{"render", 1, true}}, nil)
	f.put("d.js", graph.LangJavaScript, []def{{"render", 1, false}}, nil)
	f.put("a.js", graph.LangJavaScript, nil, []use{
		{name: "render", rel: graph.RelCalls, line: 2},
		{name: "render", rel: graph.RelCalls, line: 3},
	})

	edges := f.link("render")
	require.Len(t, edges, 2, "unexported candidates lose to exported ones")
	targets := map[string]float64{}
	for _, e := range edges {
		targets[e.ToID] = e.Weight
	}
	assert.Equal(t, map[string]float64{b["render"]: 1.0, c["render"]: 1.0}, targets,
		"two refs each split 1/2 over two candidates")
}

func TestLinker_GoPackageScope(t *testing.T) {
	f := newLinkFixture(t)
	util := f.put("pkg/util.go", graph.LangGo, []def{{"clamp", 3, false}}, nil)
	f.put("other/util.go", graph.LangGo, []def{{"clamp", 3, false}}, nil)
	main := f.put("pkg/main.go", graph.LangGo, []def{{"Run", 5, true}},
		[]use{{from: "Run", name: "clamp", rel: graph.RelCalls, line: 6}})

	edges := f.link("clamp")
	require.Len(t, edges, 1)
	assert.Equal(t, main["Run"], edges[0].FromID)
	assert.Equal(t, util["clamp"], edges[0].ToID)
}

func TestLinker_RelinkReplacesStaleEdges(t *testing.T) {
	f := newLinkFixture(t)
	f.put("b.js", graph.LangJavaScript, []def{{"foo", 1, true}}, nil)
	f.put("a.js", graph.LangJavaScript, nil, []use{{name: "foo", rel: graph.RelCalls, line: 1}})
	require.Len(t, f.link("foo"), 1)

	// foo moves to c.js.
	_, err := f.store.DeleteByFile(context.Background(), linkProject, "b.js")
	require.NoError(t, err)
	c := f.put("c.js", graph.LangJavaScript, []def{{"foo", 1, true}}, nil)

	edges := f.link("foo")
	require.Len(t, edges, 1)
	assert.Equal(t, c["foo"], edges[0].ToID)
}

func TestLinker_UnresolvedNameHasNoEdge(t *testing.T) {
	f := newLinkFixture(t)
	f.put("a.js", graph.LangJavaScript, nil, []use{
		{name: "console", rel: graph.RelReferences, line: 1},
		{name: "missing.js", rel: graph.RelImports, line: 1},
	})
	assert.Empty(t, f.link("console", "missing.js"))
}

func TestLinker_SkipsSelfReference(t *testing.T) {
	f := newLinkFixture(t)
	f.put("a.js", graph.LangJavaScript, []def{{"walk", 1, true}},
		[]use{{from: "walk", name: "walk", rel: graph.RelCalls, line: 2}})
	assert.Empty(t, f.link("walk"))
}
