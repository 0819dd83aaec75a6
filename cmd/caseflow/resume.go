package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
)

func newResumeCmd() *cobra.Command {
	var (
		allFailed bool
		watch     bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "resume [case-id]",
		Short: "Resume a failed case from its first incomplete stage",
		Long:  "Resume re-runs the stages of a case in error status, starting at validation when extraction finished and at extraction otherwise. Files are never re-uploaded. With --all-failed every failed case on the service is resumed concurrently.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			resumer := orchestrator.NewResumer(a.pipeline)

			if !allFailed {
				if len(args) != 1 {
					return fmt.Errorf("usage: caseflow resume <case-id> | --all-failed")
				}
				done := followProgress(out, a.pipeline.Progress())
				stop := func() {}
				if watch {
					stop = followStore(out, a.store)
				}
				c, err := resumer.Resume(cmd.Context(), args[0])
				stop()
				done()
				if err != nil {
					printFailure(out, err)
					return err
				}
				fmt.Fprintf(out, "%s %s\n", c.ID, colorStatus(c.Status))
				return nil
			}

			list, err := a.client.ListCases(cmd.Context(), caseapi.ListOptions{Status: caseapi.StatusError, Limit: limit})
			if err != nil {
				return fmt.Errorf("list failed cases: %w", err)
			}
			ids := orchestrator.FailedCaseIDs(list.Cases)
			if len(ids) == 0 {
				fmt.Fprintln(out, "No failed cases.")
				return nil
			}

			outcomes := resumer.ResumeAll(cmd.Context(), ids)
			renderOutcomes(out, outcomes)

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d cases could not be resumed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&allFailed, "all-failed", false, "resume every case in error status")
	cmd.Flags().BoolVar(&watch, "watch", false, "print client state changes while resuming one case")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of failed cases to resume with --all-failed")
	return cmd
}
