package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/ckg/internal/engine"
	"github.com/dusk-indust/ckg/internal/skilldata"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// ckgMCPEntry is the MCP server configuration for the ckg binary.
var ckgMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "ckg",
  "args": ["serve-mcp"]
}`)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Install ckg.yml, the editor hook and the MCP server entry",
	Long: `Write a starter ckg.yml, install the augment hook script under
.claude/hooks/, create the .ckg/ data directory and register "ckg serve-mcp"
in .mcp.json. Existing files are kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInit(cmd.OutOrStdout(), rootFlag, initForce)
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

// runInit installs the config template, hook scripts and MCP configuration
// into the target project directory.
func runInit(out io.Writer, projectRoot string, force bool) error {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	data, err := skilldata.TemplatesFS.ReadFile(skilldata.ConfigTemplate)
	if err != nil {
		return fmt.Errorf("reading embedded %s: %w", skilldata.ConfigTemplate, err)
	}
	if err := installFile(out, abs, filepath.Join(abs, "ckg.yml"), data, 0o644, force); err != nil {
		return err
	}

	hookDir := filepath.Join(abs, ".claude", "hooks")
	err = fs.WalkDir(skilldata.HooksFS, "hooks", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := skilldata.HooksFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", path, err)
		}
		return installFile(out, abs, filepath.Join(hookDir, d.Name()), data, 0o755, force)
	})
	if err != nil {
		return fmt.Errorf("copying hook scripts: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(abs, engine.DefaultDataDir), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := mergeMCPConfig(out, filepath.Join(abs, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSetup complete. Run 'ckg index' to build the graph.")
	return nil
}

func installFile(out io.Writer, base, dest string, data []byte, mode os.FileMode, force bool) error {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(out, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(base, dest))
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Fprintf(out, "  created %s\n", dotRelative(base, dest))
	return nil
}

// mergeMCPConfig creates or merges the ckg entry into .mcp.json.
func mergeMCPConfig(out io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["ckg"]; exists && !force {
		fmt.Fprintf(out, "  skipped .mcp.json ckg entry (exists, use --force to overwrite)\n")
		return nil
	}

	cfg.MCPServers["ckg"] = ckgMCPEntry

	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(out, "  %s .mcp.json with ckg MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
