package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
	"github.com/dusk-indust/caseflow/internal/state"
)

func newWaitCmd() *cobra.Command {
	var (
		forStatuses []string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait <case-id>",
		Short: "Follow a case until it reaches a terminal status",
		Long:  "Wait polls a case whose stage is still running on the service, for example after a run stopped on a poll timeout, and prints each status change. It stops at completed or error unless --for names other statuses.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}

			targets := orchestrator.Targets(caseapi.StatusCompleted, caseapi.StatusError)
			if len(forStatuses) > 0 {
				statuses, err := parseStatuses(forStatuses)
				if err != nil {
					return err
				}
				targets = orchestrator.Targets(statuses...)
			}

			pc := a.pipeline.Config()
			poller := orchestrator.NewPoller(a.client,
				orchestrator.WithPollInterval(pc.PollInterval),
				orchestrator.WithPollTimeout(pc.PollTimeout),
			)

			out := cmd.OutOrStdout()
			var last caseapi.Status
			for ev := range poller.Watch(cmd.Context(), args[0], targets, orchestrator.PollOptions{Timeout: timeout}) {
				if ev.Done {
					if ev.Err != nil {
						printFailure(out, ev.Err)
						return ev.Err
					}
					fmt.Fprintf(out, "%s %s\n", ev.Case.ID, colorStatus(ev.Case.Status))
					return nil
				}
				a.store.Commit(ev.Case)
				if ev.Case.Status != last {
					fmt.Fprintf(out, "  %s\n", colorStatus(ev.Case.Status))
					last = ev.Case.Status
				}
			}
			return cmd.Context().Err()
		},
	}

	cmd.Flags().StringSliceVar(&forStatuses, "for", nil, "statuses to wait for (default: completed,error)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: pipeline.poll_timeout)")
	return cmd
}

// parseStatuses converts flag values to known statuses.
func parseStatuses(values []string) ([]caseapi.Status, error) {
	out := make([]caseapi.Status, 0, len(values))
	for _, v := range values {
		s := caseapi.Status(strings.ToLower(strings.TrimSpace(v)))
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// followStore prints a line whenever the visible store state changes, until
// the returned func is called.
func followStore(w io.Writer, store *state.Store) func() {
	snaps, cancel := store.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last string
		for snap := range snaps {
			line := snapshotLine(snap)
			if line == last {
				continue
			}
			fmt.Fprintln(w, line)
			last = line
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func snapshotLine(s state.Snapshot) string {
	var busy []string
	if s.Flags.Uploading {
		busy = append(busy, "uploading")
	}
	if s.Flags.Extracting {
		busy = append(busy, "extracting")
	}
	if s.Flags.Validating {
		busy = append(busy, "validating")
	}
	if s.Flags.Generating {
		busy = append(busy, "generating")
	}
	flags := "idle"
	if len(busy) > 0 {
		flags = strings.Join(busy, ",")
	}

	id, status := "-", "-"
	if s.CurrentID != "" {
		id = s.CurrentID
	}
	if s.Current != nil {
		status = colorStatus(s.Current.Status)
	}

	line := fmt.Sprintf("  [state] case=%s status=%s busy=%s", id, status, flags)
	if s.Err != "" {
		line += " error=" + s.Err
	}
	return line
}
