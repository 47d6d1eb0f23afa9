package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/graph"
	"github.com/dusk-indust/ckg/internal/retrieval"
	"github.com/dusk-indust/ckg/internal/symbolic"
)

var (
	contextMaxTokens  int
	contextHint       string
	contextNoSemantic bool
	contextNoCallers  bool
	defsHint          string
)

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Assemble relevant code for a query within a token budget",
	Long: `Combine definition and reference lookups with semantic search, rank the
candidates and print as many whole chunks as fit in --max-tokens.

Examples:
  ckg context "UserService.Create"
  ckg context "how are retries scheduled" --max-tokens 4000
  ckg context parseConfig --hint internal/config/config.go`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

var defsCmd = &cobra.Command{
	Use:   "defs <name>",
	Short: "Find where a symbol is defined",
	Args:  cobra.ExactArgs(1),
	RunE:  runDefs,
}

var refsCmd = &cobra.Command{
	Use:   "refs <name>",
	Short: "Find all references to a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefs,
}

var impactCmd = &cobra.Command{
	Use:   "impact <name>",
	Short: "Estimate the blast radius of changing a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runImpact,
}

var unusedCmd = &cobra.Command{
	Use:   "unused",
	Short: "List exported symbols nothing references",
	Args:  cobra.NoArgs,
	RunE:  runUnused,
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List import cycles",
	Args:  cobra.NoArgs,
	RunE:  runCycles,
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List groups of files connected by imports",
	Args:  cobra.NoArgs,
	RunE:  runClusters,
}

func init() {
	contextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 2000, "Token budget for the assembled context")
	contextCmd.Flags().StringVar(&contextHint, "hint", "", "File the query is asked from, used to break ties")
	contextCmd.Flags().BoolVar(&contextNoSemantic, "no-semantic", false, "Skip semantic search")
	contextCmd.Flags().BoolVar(&contextNoCallers, "no-callers", false, "Omit caller annotations")
	defsCmd.Flags().StringVar(&defsHint, "hint", "", "Rank definitions closer to this file first")
	rootCmd.AddCommand(contextCmd, defsCmd, refsCmd, impactCmd, unusedCmd, cyclesCmd, clustersCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		payload := s.eng.BuildContext(ctx, s.project, query, contextMaxTokens, retrieval.Options{
			HintFile:     contextHint,
			SkipSemantic: contextNoSemantic,
			SkipCallers:  contextNoCallers,
		})
		for _, r := range payload.Reasons {
			fmt.Fprintf(os.Stderr, "warning: %s\n", r)
		}
		return printResult(cmd, payload, func(w io.Writer) {
			if len(payload.Items) == 0 {
				fmt.Fprintf(w, "No context found for %q.\n", query)
				return
			}
			fmt.Fprintln(w, payload.Content)
			fmt.Fprintf(w, "\n// %d of %d candidates, %d/%d tokens\n",
				len(payload.Items), payload.Candidates, payload.TokenCount, payload.MaxTokens)
		})
	})
}

func runDefs(cmd *cobra.Command, args []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		defs, err := s.eng.FindDefinitions(ctx, s.project, args[0], defsHint)
		if err != nil {
			return err
		}
		if defs == nil {
			defs = []graph.Node{}
		}
		return printResult(cmd, defs, func(w io.Writer) {
			if len(defs) == 0 {
				fmt.Fprintf(w, "No definitions of %q.\n", args[0])
				return
			}
			for _, n := range defs {
				printNode(w, n)
			}
		})
	})
}

func runRefs(cmd *cobra.Command, args []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		refs, err := s.eng.FindReferences(ctx, s.project, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, refs, func(w io.Writer) {
			if len(refs) == 0 {
				fmt.Fprintf(w, "No references to %q.\n", args[0])
				return
			}
			for _, r := range refs {
				fmt.Fprintf(w, "%s:%d  %s %s  (%s)\n",
					r.From.FilePath, r.From.StartLine, r.From.Kind, r.From.Name, r.Edge.Relationship)
			}
		})
	})
}

func runImpact(cmd *cobra.Command, args []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		impact, err := s.eng.AnalyzeImpact(ctx, s.project, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, impact, func(w io.Writer) {
			fmt.Fprintf(w, "Symbol:         %s\n", impact.Symbol)
			fmt.Fprintf(w, "Definitions:    %d\n", len(impact.Definitions))
			fmt.Fprintf(w, "References:     %d\n", impact.ReferenceCount)
			fmt.Fprintf(w, "Files affected: %d\n", impact.FileSpread)
			for _, f := range impact.Files {
				fmt.Fprintf(w, "  - %s\n", f)
			}
			fmt.Fprintf(w, "Recommendation: %s\n", impact.Recommendation)
		})
	})
}

func runUnused(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		unused, err := s.eng.FindUnusedExports(ctx, s.project)
		if err != nil {
			return err
		}
		if unused == nil {
			unused = []graph.Node{}
		}
		return printResult(cmd, unused, func(w io.Writer) {
			if len(unused) == 0 {
				fmt.Fprintln(w, "No unused exports.")
				return
			}
			for _, n := range unused {
				printNode(w, n)
			}
			fmt.Fprintf(w, "\n%d unused exports\n", len(unused))
		})
	})
}

func runCycles(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		cycles, err := s.eng.FindCircularDependencies(ctx, s.project)
		if err != nil {
			return err
		}
		paths := make([][]string, 0, len(cycles))
		for _, c := range cycles {
			p := make([]string, len(c))
			for i, n := range c {
				p[i] = n.FilePath
			}
			paths = append(paths, p)
		}
		return printResult(cmd, paths, func(w io.Writer) {
			if len(paths) == 0 {
				fmt.Fprintln(w, "No import cycles.")
				return
			}
			for i, p := range paths {
				fmt.Fprintf(w, "Cycle %d: %s\n", i+1, strings.Join(p, " <-> "))
			}
		})
	})
}

func runClusters(cmd *cobra.Command, _ []string) error {
	return withIndex(cmd, func(ctx context.Context, s *session) error {
		clusters, err := s.eng.ImportClusters(ctx, s.project)
		if err != nil {
			return err
		}
		if clusters == nil {
			clusters = []symbolic.Cluster{}
		}
		return printResult(cmd, clusters, func(w io.Writer) {
			if len(clusters) == 0 {
				fmt.Fprintln(w, "No clusters.")
				return
			}
			for _, c := range clusters {
				name := c.Name
				if name == "" {
					name = "(root)"
				}
				fmt.Fprintf(w, "%s  cohesion %.2f, %d files\n", name, c.Cohesion, len(c.Members))
				for _, m := range c.Members {
					fmt.Fprintf(w, "  - %s\n", m)
				}
			}
		})
	})
}

func printNode(w io.Writer, n graph.Node) {
	fmt.Fprintf(w, "%s:%d  %s %s", n.FilePath, n.StartLine, n.Kind, n.Name)
	if sig := n.Meta(graph.MetaSignature); sig != "" {
		fmt.Fprintf(w, "  %s", sig)
	}
	if n.Exported() {
		fmt.Fprint(w, "  (exported)")
	}
	fmt.Fprintln(w)
}
