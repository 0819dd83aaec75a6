package main

import (
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <case-id>",
		Short: "Show the service's computed totals for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			r, err := a.client.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.store.Touch(r.Summary())
			renderReport(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count cases on the service by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			st, err := a.client.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			renderStatistics(cmd.OutOrStdout(), st)
			return nil
		},
	}
}
