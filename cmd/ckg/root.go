package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/config"
	"github.com/dusk-indust/ckg/internal/engine"
	"github.com/dusk-indust/ckg/internal/indexer"
	"github.com/dusk-indust/ckg/internal/logging"
)

// version is set by goreleaser at build time.
var version = "dev"

// Global flags.
var (
	rootFlag     string
	projectFlag  string
	formatFlag   string
	logLevelFlag string
	progressFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "ckg",
	Short: "ckg - code knowledge graph",
	Long: `ckg indexes a repository into a code knowledge graph and a chunk store,
then answers definition, reference, impact and dependency questions and
assembles token-budgeted context for LLM agents.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("ckg version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", ".", "Repository root to index")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project ID (default: name of the root directory)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", string(FormatHuman), "Output format (json, human)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&progressFlag, "progress", false, "Print per-file indexing progress to stderr")
}

// session is one opened engine bound to the project under --root.
type session struct {
	eng     *engine.Engine
	root    string
	project string
	log     *slog.Logger
	logFile io.Closer

	progress     *indexer.ProgressReporter
	progressDone chan struct{}
}

// openSession loads ckg.yml from the root, opens the stores and the engine.
// Relative store paths resolve against the root.
func openSession(ctx context.Context) (*session, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot access root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	resolveStorePaths(cfg, root)

	s := &session{root: root, project: projectFlag}
	if s.project == "" {
		s.project = filepath.Base(root)
	}

	opts := logging.Options{Level: cfg.Log.Level, Format: logging.Format(cfg.Log.Format)}
	if cfg.Log.File != "" {
		logger, f, err := logging.NewFile(cfg.Log.File, opts)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		s.log, s.logFile = logger, f
	} else {
		s.log = logging.New(opts)
	}

	eopts := engine.Options{Logger: s.log}
	if progressFlag {
		s.progress = indexer.NewProgressReporter(256)
		s.progressDone = make(chan struct{})
		go s.printProgress(os.Stderr)
		eopts.OnProgress = s.progress.Emit
	}

	s.eng, err = engine.Open(ctx, cfg, eopts)
	if err != nil {
		s.stopProgress()
		s.closeLog()
		return nil, err
	}
	return s, nil
}

func (s *session) printProgress(w io.Writer) {
	defer close(s.progressDone)
	for ev := range s.progress.Subscribe() {
		fmt.Fprintln(w, indexer.FormatProgress(ev))
	}
}

// stopProgress closes the reporter once nothing can emit and waits for the
// printer to drain.
func (s *session) stopProgress() {
	if s.progress == nil {
		return
	}
	s.progress.Close()
	<-s.progressDone
	s.progress = nil
}

// resolveStorePaths anchors the default on-disk stores in <root>/.ckg.
func resolveStorePaths(cfg *config.Config, root string) {
	dataDir := filepath.Join(root, engine.DefaultDataDir)
	if cfg.Store.Graph == "kuzu" {
		switch {
		case cfg.Store.GraphPath == "":
			cfg.Store.GraphPath = filepath.Join(dataDir, "graph.kuzu")
		case cfg.Store.GraphPath != ":memory:" && !filepath.IsAbs(cfg.Store.GraphPath):
			cfg.Store.GraphPath = filepath.Join(root, cfg.Store.GraphPath)
		}
	}
	if cfg.Store.Chunks == "sqlite" {
		switch {
		case cfg.Store.ChunkDSN == "":
			cfg.Store.ChunkDSN = filepath.Join(dataDir, "chunks.db")
		case cfg.Store.ChunkDSN != ":memory:" && !filepath.IsAbs(cfg.Store.ChunkDSN):
			cfg.Store.ChunkDSN = filepath.Join(root, cfg.Store.ChunkDSN)
		}
	}
}

// refresh brings the index up to date before a query.
func (s *session) refresh(ctx context.Context) error {
	report, err := s.eng.BuildIndex(ctx, s.project, s.root, true)
	if err != nil {
		return fmt.Errorf("index %s: %w", s.root, err)
	}
	s.log.Debug("index refreshed", "project", s.project,
		"indexed", report.Indexed, "unchanged", report.Unchanged, "deleted", report.Deleted)
	return nil
}

func (s *session) Close() {
	if err := s.eng.Close(); err != nil {
		s.log.Warn("close engine", "err", err)
	}
	s.stopProgress()
	s.closeLog()
}

func (s *session) closeLog() {
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

// withIndex opens a session, refreshes the index and runs fn.
func withIndex(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.refresh(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}
