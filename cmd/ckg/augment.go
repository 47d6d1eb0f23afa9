package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/engine"
	"github.com/dusk-indust/ckg/internal/graph"
)

const (
	maxAugmentSymbols    = 10
	maxAugmentDependents = 8
)

var identRun = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)

var augmentCmd = &cobra.Command{
	Use:   "augment <pattern>",
	Short: "Print graph context for a search pattern (editor hook helper)",
	Long: `Look up the identifiers in a search pattern and print where they are
defined, what the defining file imports, what depends on it and which
cluster it belongs to. Prints nothing and exits 0 when the project has no
index or nothing matches.`,
	Args: cobra.ExactArgs(1),
	RunE: runAugment,
}

func init() {
	rootCmd.AddCommand(augmentCmd)
}

// runAugment is called from the PreToolUse hook script and must stay quiet
// on every failure.
func runAugment(cmd *cobra.Command, args []string) error {
	out, err := augment(cmd.Context(), args[0])
	if err != nil || out == "" {
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func augment(ctx context.Context, pattern string) (string, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(root, engine.DefaultDataDir)); err != nil {
		return "", nil // no index, exit silently
	}

	s, err := openSession(ctx)
	if err != nil {
		return "", err
	}
	defer s.Close()
	if err := s.refresh(ctx); err != nil {
		return "", err
	}

	var symbols []graph.Node
	for _, name := range patternIdentifiers(pattern) {
		defs, err := s.eng.FindDefinitions(ctx, s.project, name, "")
		if err != nil {
			return "", err
		}
		if len(defs) > 0 {
			symbols = defs
			break
		}
	}
	if len(symbols) == 0 {
		return "", nil
	}
	if len(symbols) > maxAugmentSymbols {
		symbols = symbols[:maxAugmentSymbols]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Graph Context for %q\n\n", pattern))

	sb.WriteString("**Symbols found:**\n")
	for _, sym := range symbols {
		sb.WriteString(fmt.Sprintf("- `%s %s` in `%s:%d`", sym.Kind, sym.Name, sym.FilePath, sym.StartLine))
		if sym.Exported() {
			sb.WriteString(" (exported)")
		}
		sb.WriteString("\n")
	}

	primaryFile := symbols[0].FilePath
	store := s.eng.Graph()
	fileID := graph.NodeID(s.project, primaryFile, graph.KindFile, primaryFile, 1)

	upstream, err := importedFiles(ctx, store, fileID, graph.DirectionOut)
	if err == nil && len(upstream) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Dependencies (imported by `%s`):**\n", primaryFile))
		for _, p := range upstream {
			sb.WriteString(fmt.Sprintf("- `%s`\n", p))
		}
	}

	downstream, err := importedFiles(ctx, store, fileID, graph.DirectionIn)
	if err == nil && len(downstream) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Dependents (%d files import `%s`):**\n", len(downstream), primaryFile))
		for i, p := range downstream {
			if i == maxAugmentDependents {
				sb.WriteString(fmt.Sprintf("- ... (%d more)\n", len(downstream)-maxAugmentDependents))
				break
			}
			sb.WriteString(fmt.Sprintf("- `%s`\n", p))
		}
	}

	clusters, err := s.eng.ImportClusters(ctx, s.project)
	if err == nil {
		for _, c := range clusters {
			for _, member := range c.Members {
				if member == primaryFile {
					sb.WriteString(fmt.Sprintf("\n**Cluster:** %s (cohesion: %.2f), %d files\n",
						c.Name, c.Cohesion, len(c.Members)))
					break
				}
			}
		}
	}

	return sb.String(), nil
}

// patternIdentifiers extracts identifier runs from a search pattern,
// longest first.
func patternIdentifiers(pattern string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range identRun.FindAllString(pattern, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// importedFiles returns the paths of files linked to fileID by imports
// edges in the given direction.
func importedFiles(ctx context.Context, store graph.Store, fileID string, dir graph.Direction) ([]string, error) {
	edges, err := store.FindEdges(ctx, fileID, dir, graph.RelImports)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range edges {
		other := e.ToID
		if dir == graph.DirectionIn {
			other = e.FromID
		}
		n, err := store.GetNode(ctx, other)
		if err != nil {
			return nil, err
		}
		if n == nil || n.Kind != graph.KindFile {
			continue
		}
		paths = append(paths, n.FilePath)
	}
	sort.Strings(paths)
	return paths, nil
}
