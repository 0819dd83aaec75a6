package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/export"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <case-id>",
		Short: "Print a JSON report of a case's stages, files and issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			c, err := a.client.GetCase(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.store.Commit(c)

			out, err := json.MarshalIndent(export.ExportCase(c), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal JSON: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
}

func newDiagramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagram [case-id]",
		Short: "Print the case lifecycle as a Mermaid state diagram",
		Long:  "Diagram prints the lifecycle as a Mermaid stateDiagram-v2. Given a case id, the stages the case has completed and its current status are highlighted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			var c *caseapi.Case
			if len(args) == 1 {
				c, err = a.client.GetCase(cmd.Context(), args[0])
				if err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), export.GenerateMermaid(c))
			return nil
		},
	}
}
