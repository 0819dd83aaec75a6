package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/status"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <case-id>",
		Short: "Fetch a case and print it as JSON",
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

			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal JSON: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [case-id]",
		Short: "Show per-stage progress of a case (default: the current case)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			id := a.store.CurrentID()
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return fmt.Errorf("no current case; pass a case id")
			}

			c, err := a.client.GetCase(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.store.Commit(c)
			renderStatus(cmd.OutOrStdout(), status.Describe(c), c)
			return nil
		},
	}
}

func newRecentCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently touched cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			if refresh {
				a.store.Reset()
			}
			if err := a.store.Warm(cmd.Context(), a.client); err != nil {
				a.log.WithError(err).Warn("could not load recent cases from the service")
			}

			recent := a.store.Recent()
			if len(recent) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recent cases.")
				return nil
			}
			renderRecent(cmd.OutOrStdout(), recent, a.store.CurrentID())
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the list from the service")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <case-id> <key=value>...",
		Short: "Apply field edits to a case",
		Long:  "Update sends a partial edit of top-level case fields. Values are parsed as JSON when possible (numbers, booleans, objects) and sent as strings otherwise.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			fields, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			c, err := a.client.UpdateCase(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			a.store.Commit(c)

			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s\n", c.ID, strings.Join(sortedKeys(fields), ", "))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case on the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.client.DeleteCase(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.store.Forget(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <case-id>",
		Short: "List the generated files of a completed case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			pkg, err := a.client.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderPackage(cmd.OutOrStdout(), pkg)
			return nil
		},
	}
}
