package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestPathFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.gen.go\n")

	f, err := newPathFilter(root, FilterOptions{
		Languages:       []string{"go", "TypeScript"},
		ExcludeDirs:     []string{"node_modules", ".git"},
		ExcludePatterns: []string{"*_mock.go", "testdata/**"},
	})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"main.go", true},
		{"pkg/server/server.go", true},
		{"web/app.ts", true},
		{"web/app.js", false}, // language filtered
		{"README.md", false},  // unsupported
		{"node_modules/x/index.ts", false},
		{"generated/api.go", false},  // gitignored directory
		{"pkg/types.gen.go", false},  // gitignored file
		{"pkg/store_mock.go", false}, // glob on base name
		{"pkg/testdata/case.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.include(tt.path))
		})
	}

	assert.True(t, f.skipDir("node_modules"))
	assert.True(t, f.skipDir("generated"))
	assert.False(t, f.skipDir("pkg"))
	assert.False(t, f.skipDir("."))
}

func TestPathFilter_InvalidPattern(t *testing.T) {
	_, err := newPathFilter(t.TempDir(), FilterOptions{ExcludePatterns: []string{"[unclosed"}})
	require.Error(t, err)
	assert.True(t, ckgerr.HasCode(err, ckgerr.InvalidArgument))
}

func TestPathFilter_Walk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.go", "package b\n")
	writeFile(t, root, "a/a.go", "package a\n")
	writeFile(t, root, "vendor/v/v.go", "package v\n")
	writeFile(t, root, "notes.txt", "hello\n")

	f, err := newPathFilter(root, FilterOptions{ExcludeDirs: []string{"vendor"}})
	require.NoError(t, err)
	files, err := f.walk(context.Background(), root, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/a.go", "b.go"}, files)

	sub, err := f.walk(context.Background(), root, filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a/a.go"}, sub, "paths stay relative to the root")
}
