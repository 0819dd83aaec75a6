package main

import (
	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/mcptools"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
)

func newServeMCPCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run as an MCP server exposing the case tools",
		Long:  "serve-mcp exposes run_case, resume_case, get_case, case_status and recent_cases over MCP. It speaks stdio by default and streamable HTTP when --http is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}

			svc := mcptools.NewCaseService(a.pipeline, orchestrator.NewResumer(a.pipeline), a.client, a.store)
			server := mcptools.NewCaseMCPServer(svc)

			if addr != "" {
				a.log.WithField("addr", addr).Info("serving MCP over HTTP")
				return mcptools.RunHTTP(cmd.Context(), server, addr)
			}
			return mcptools.RunStdio(cmd.Context(), server)
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "serve streamable HTTP on this address instead of stdio (e.g. :8765)")
	return cmd
}
