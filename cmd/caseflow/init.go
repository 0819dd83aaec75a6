package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// caseflowMCPEntry is the MCP server configuration for the caseflow binary.
var caseflowMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "caseflow",
  "args": ["serve-mcp"]
}`)

const starterConfig = `# caseflow client configuration. Environment variables (CASEFLOW_*) and
# command-line flags override these values.
baseUrl: http://localhost:5000/api
requestTimeout: 120s
pollInterval: 2s
pollTimeout: 300s
strictValidation: false
resumeConcurrency: 4
recentCapacity: 10
stateBackend: file
logLevel: info
logFormat: text
`

func newInitCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter caseflow.yml and register the MCP server in .mcp.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), dir, force)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "project directory to initialise")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files and entries")
	return cmd
}

func runInit(w io.Writer, dir string, force bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}

	cfgPath := filepath.Join(abs, "caseflow.yml")
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Fprintln(w, "  skipped ./caseflow.yml (exists, use --force to overwrite)")
	} else {
		if err := os.WriteFile(cfgPath, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", cfgPath, err)
		}
		fmt.Fprintln(w, "  created ./caseflow.yml")
	}

	return mergeMCPConfig(w, filepath.Join(abs, ".mcp.json"), force)
}

// mergeMCPConfig creates or merges the caseflow entry into .mcp.json.
func mergeMCPConfig(w io.Writer, mcpPath string, force bool) error {
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

	if _, exists := cfg.MCPServers["caseflow"]; exists && !force {
		fmt.Fprintln(w, "  skipped .mcp.json caseflow entry (exists, use --force to overwrite)")
		return nil
	}

	cfg.MCPServers["caseflow"] = caseflowMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(w, "  %s .mcp.json with caseflow MCP server\n", action)
	return nil
}
