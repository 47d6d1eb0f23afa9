package symbolic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportClusters_NoEdges(t *testing.T) {
	f := newFixture(t)
	f.file("src/pkg/a.go")
	f.file("src/pkg/b.go")

	clusters, err := f.index().ImportClusters(context.Background(), testProject)
	require.NoError(t, err)
	assert.Empty(t, clusters, "singletons are not clusters")
}

func TestImportClusters_TwoGroups(t *testing.T) {
	f := newFixture(t)
	f.imports("src/alpha/a.go", "src/alpha/b.go")
	f.imports("src/alpha/b.go", "src/alpha/c.go")
	f.imports("src/beta/sub/one.go", "src/beta/sub/two.go")
	f.file("src/gamma/lonely.go")

	clusters, err := f.index().ImportClusters(context.Background(), testProject)
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	assert.Equal(t, "src/alpha/", clusters[0].Name)
	assert.Equal(t, []string{"src/alpha/a.go", "src/alpha/b.go", "src/alpha/c.go"}, clusters[0].Members)
	assert.Equal(t, "src/beta/sub/", clusters[1].Name)
	assert.Equal(t, []string{"src/beta/sub/one.go", "src/beta/sub/two.go"}, clusters[1].Members)
}

func TestImportClusters_Cohesion(t *testing.T) {
	f := newFixture(t)
	f.imports("app/a.ts", "app/b.ts")
	f.imports("app/b.ts", "app/c.ts")
	f.imports("app/a.ts", "app/c.ts")
	f.endpoint("app/a.ts", "react")

	clusters, err := f.index().ImportClusters(context.Background(), testProject)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 0.75, clusters[0].Cohesion, 1e-9, "3 internal imports, 1 external")
}

func TestLongestCommonPrefix(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"empty", nil, ""},
		{"single", []string{"a/b.go"}, "a/b.go"},
		{"shared dir", []string{"src/a/x.go", "src/a/y.go"}, "src/a/"},
		{"partial segment", []string{"src/abc/x.go", "src/abd/y.go"}, "src/"},
		{"no shared dir", []string{"a.go", "b.go"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, longestCommonPrefix(tt.paths))
		})
	}
}
