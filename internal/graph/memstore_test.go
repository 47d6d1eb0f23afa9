package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

func TestMemStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		t.Helper()
		s := NewMemStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemStore_CanceledContext(t *testing.T) {
	s := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.UpsertNodes(ctx, []Node{fileNode("a.go")})
	require.Error(t, err)
	assert.True(t, ckgerr.HasCode(err, ckgerr.Timeout))
}

func TestMemStore_ReplaceFileRejectsForeignRecords(t *testing.T) {
	s := NewMemStore()
	fg, _ := fileGraph("a.go", "Foo")
	fg.Nodes = append(fg.Nodes, symbolNode("b.go", "Stray", 1))

	_, err := s.ReplaceFile(context.Background(), fg)
	require.Error(t, err)
	assert.True(t, ckgerr.HasCode(err, ckgerr.InvalidArgument))
}

func TestMemStore_MetadataIsCopied(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	n := symbolNode("a.go", "Foo", 1)
	require.NoError(t, s.UpsertNodes(ctx, []Node{n}))

	n.Metadata[MetaExported] = "false"
	got, err := s.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.Exported())
}

func TestNodeID_Deterministic(t *testing.T) {
	a := NodeID("p", "a.go", KindFunction, "Foo", 3)
	assert.Equal(t, a, NodeID("p", "a.go", KindFunction, "Foo", 3))
	assert.NotEqual(t, a, NodeID("p", "a.go", KindFunction, "Foo", 4))
	assert.NotEqual(t, a, NodeID("q", "a.go", KindFunction, "Foo", 3))
	assert.NotEqual(t, EdgeID("p", "x", "y", RelCalls), EdgeID("p", "x", "y", RelReferences))
}
