package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	var (
		meta   caseapi.CreateRequest
		strict bool
		watch  bool
		forms  []string
	)

	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Create a case from documents and run it through generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}

			files, err := openFiles(args)
			if err != nil {
				return err
			}
			defer closeFiles(files)

			pipeline := a.pipeline
			if strict || len(forms) > 0 || meta.CarrierName != "" {
				pc := a.pipeline.Config()
				pc.StrictValidation = pc.StrictValidation || strict
				if len(forms) > 0 {
					pc.Forms = forms
				}
				if meta.CarrierName != "" {
					pc.CarrierName = meta.CarrierName
				}
				pipeline = orchestrator.NewPipeline(a.client, a.store,
					orchestrator.WithConfig(pc),
					orchestrator.WithLogger(a.log),
				)
				defer pipeline.Close()
			}

			out := cmd.OutOrStdout()
			done := followProgress(out, pipeline.Progress())
			defer done()
			stop := func() {}
			if watch {
				stop = followStore(out, a.store)
			}
			defer stop()

			names := make([]string, len(files))
			for i, f := range files {
				names[i] = f.Name
			}

			c, err := pipeline.Run(cmd.Context(), files, meta, orchestrator.RunOptions{
				OnUploadProgress: func(m map[int]int) {
					fmt.Fprintf(out, "\r  uploading %s", formatUpload(names, m))
				},
			})
			stop()
			done()
			if err != nil {
				printFailure(out, err)
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, orchestrator.FormatCaseHeader(caseapi.Summarize(c).Label, c.ID))
			fmt.Fprintf(out, "  status: %s\n", colorStatus(c.Status))
			fmt.Fprintf(out, "  generated files: %d\n", len(c.GeneratedFiles))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&meta.ClientName, "client", "", "client name")
	f.StringVar(&meta.BrokerName, "broker", "", "broker name")
	f.StringVar(&meta.BrokerEmail, "broker-email", "", "broker email")
	f.StringVar(&meta.CarrierName, "carrier", "", "carrier name (also passed to generation)")
	f.StringVar(&meta.Notes, "notes", "", "free-form notes")
	f.BoolVar(&strict, "strict", false, "run validation in strict mode")
	f.BoolVar(&watch, "watch", false, "print client state changes as the run progresses")
	f.StringSliceVar(&forms, "forms", nil, "forms to generate (default: all)")
	return cmd
}

func openFiles(paths []string) ([]caseapi.File, error) {
	files := make([]caseapi.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeFiles(files)
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		files = append(files, caseapi.File{Name: filepath.Base(p), Reader: f})
	}
	return files, nil
}

func closeFiles(files []caseapi.File) {
	for _, f := range files {
		if c, ok := f.Reader.(io.Closer); ok {
			c.Close()
		}
	}
}

// followProgress prints stage events until the returned func is called.
func followProgress(w io.Writer, events <-chan orchestrator.ProgressEvent) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintln(w, orchestrator.FormatProgress(ev))
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

// formatUpload renders per-file upload percentages in file order.
func formatUpload(names []string, progress map[int]int) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s %3d%%", n, progress[i])
	}
	return strings.Join(parts, "  ")
}
