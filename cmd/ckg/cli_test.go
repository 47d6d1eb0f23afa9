package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ckg/internal/graph"
)

// execute runs the root command with args after resetting every flag to its
// default, and returns what the command wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// jsProject writes a.js, which imports and calls helper from b.js.
func jsProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.js": "import { helper } from './b.js';\n\nexport function run() {\n  return helper(1);\n}\n",
		"b.js": "export function helper(x) {\n  return x + 1;\n}\n",
	})
	return dir
}

func TestRootCmd_Definition(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"index", "watch", "context", "defs", "refs", "impact", "unused",
		"cycles", "clusters", "status", "export", "diagram", "augment", "init", "serve-mcp",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}

	root := rootCmd.PersistentFlags().Lookup("root")
	require.NotNil(t, root)
	assert.Equal(t, ".", root.DefValue)
	format := rootCmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "human", format.DefValue)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "ckg version dev\n", out)
}

func TestIndexAndQueries(t *testing.T) {
	dir := jsProject(t)

	out, err := execute(t, "--root", dir, "--format", "json", "index", "--check")
	require.NoError(t, err)
	var report struct {
		Indexed int `json:"indexed"`
		Failed  int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Indexed)
	assert.Zero(t, report.Failed)

	out, err = execute(t, "--root", dir, "--format", "json", "defs", "helper")
	require.NoError(t, err)
	var defs []graph.Node
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "b.js", defs[0].FilePath)

	out, err = execute(t, "--root", dir, "refs", "helper")
	require.NoError(t, err)
	assert.Contains(t, out, "a.js")
	assert.Contains(t, out, "run")

	out, err = execute(t, "--root", dir, "defs", "nothingHere")
	require.NoError(t, err)
	assert.Contains(t, out, `No definitions of "nothingHere"`)

	out, err = execute(t, "--root", dir, "cycles")
	require.NoError(t, err)
	assert.Equal(t, "No import cycles.\n", out)

	out, err = execute(t, "--root", dir, "context", "helper", "--max-tokens", "200", "--no-semantic")
	require.NoError(t, err)
	assert.Contains(t, out, "// file: b.js")
}

func TestExportAndDiagram(t *testing.T) {
	dir := jsProject(t)

	out, err := execute(t, "--root", dir, "export")
	require.NoError(t, err)
	var exp struct {
		ProjectID string `json:"projectId"`
		Files     []struct {
			Path    string   `json:"path"`
			Imports []string `json:"imports"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &exp))
	assert.Equal(t, filepath.Base(dir), exp.ProjectID)
	require.Len(t, exp.Files, 2)
	assert.Equal(t, []string{"b.js"}, exp.Files[0].Imports)

	out, err = execute(t, "--root", dir, "--project", "demo", "diagram")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "-->")
}

func TestUnsupportedFormat(t *testing.T) {
	dir := jsProject(t)
	_, err := execute(t, "--root", dir, "--format", "xml", "clusters")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestMissingRoot(t *testing.T) {
	_, err := execute(t, "--root", filepath.Join(t.TempDir(), "missing"), "status")
	assert.ErrorContains(t, err, "cannot access root")
}

func TestAugment(t *testing.T) {
	dir := jsProject(t)

	out, err := execute(t, "--root", dir, "augment", "helper\\(")
	require.NoError(t, err)
	assert.Empty(t, out, "no data directory means no index")

	require.NoError(t, os.Mkdir(filepath.Join(dir, ".ckg"), 0o755))
	out, err = execute(t, "--root", dir, "augment", "helper\\(")
	require.NoError(t, err)
	assert.Contains(t, out, "`Function helper` in `b.js:1`")
	assert.Contains(t, out, "Dependents (1 files import `b.js`)")
	assert.Contains(t, out, "- `a.js`")

	out, err = execute(t, "--root", dir, "augment", "zz")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPatternIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"UserService", "Create"}, patternIdentifiers(`UserService\.Create\(`))
	assert.Equal(t, []string{"foo"}, patternIdentifiers("foo|foo|x"))
	assert.Empty(t, patternIdentifiers(".*"))
}

func TestIndexWithProgress(t *testing.T) {
	dir := jsProject(t)
	out, err := execute(t, "--root", dir, "--progress", "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed:    2")
}
