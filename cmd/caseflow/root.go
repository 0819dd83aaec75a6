package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/config"
	"github.com/dusk-indust/caseflow/internal/logging"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
	"github.com/dusk-indust/caseflow/internal/state"
)

// rootFlags are the persistent flags shared by every subcommand. Non-empty
// values override the config file and environment.
type rootFlags struct {
	configDir    string
	baseURL      string
	stateBackend string
	logLevel     string
	sets         []string
}

// app bundles the wired components a subcommand works with.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	client   *caseapi.HTTPClient
	store    *state.Store
	pipeline *orchestrator.Pipeline
	closers  []func() error
}

func (a *app) close() {
	a.pipeline.Close()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

type contextKey string

const appKey contextKey = "app"

func appFrom(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "caseflow",
		Short:         "Drive document cases through the remote processing pipeline",
		Long:          "caseflow creates cases from local documents and runs them through upload, extraction, validation and generation on the case service, resuming failed cases from the first incomplete stage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsInit(cmd) {
				return nil
			}
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a, err := appFrom(cmd.Context()); err == nil {
				a.close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config-dir", ".", "directory containing caseflow.yml")
	pf.StringVar(&flags.baseURL, "base-url", "", "case service API root (e.g. http://localhost:5000/api)")
	pf.StringVar(&flags.stateBackend, "state-backend", "", "client state backend: file, kuzu or memory")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringArrayVar(&flags.sets, "set", nil, "override a config key (key=value), repeatable")

	root.AddCommand(
		newRunCmd(),
		newResumeCmd(),
		newGetCmd(),
		newStatusCmd(),
		newReportCmd(),
		newStatsCmd(),
		newWaitCmd(),
		newRecentCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newDownloadCmd(),
		newExportCmd(),
		newDiagramCmd(),
		newServeMCPCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// skipsInit reports whether cmd runs without a configured application.
func skipsInit(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "init", "caseflow":
		return true
	}
	return false
}

func newApp(ctx context.Context, flags rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configDir)
	if err != nil {
		return nil, err
	}
	for _, kv := range flags.sets {
		key, value, ok := cutAssignment(kv)
		if !ok {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		if err := cfg.Set(key, value); err != nil {
			return nil, err
		}
	}
	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}
	if flags.stateBackend != "" {
		cfg.StateBackend = flags.stateBackend
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	persister, closePersister, err := openPersister(cfg)
	if err != nil {
		return nil, err
	}

	store := state.New(
		state.WithCapacity(cfg.RecentCapacity),
		state.WithPersister(persister),
		state.WithLogger(log),
	)
	if err := store.Restore(ctx); err != nil {
		log.WithError(err).Warn("could not restore client state")
	}

	client := caseapi.NewHTTPClient(cfg.BaseURL,
		caseapi.WithTimeout(cfg.RequestTimeoutDuration()),
		caseapi.WithLogger(log),
	)

	pipeline := orchestrator.NewPipeline(client, store,
		orchestrator.WithConfig(cfg.Pipeline()),
		orchestrator.WithLogger(log),
	)

	a := &app{
		cfg:      cfg,
		log:      log,
		client:   client,
		store:    store,
		pipeline: pipeline,
	}
	if closePersister != nil {
		a.closers = append(a.closers, closePersister)
	}
	return a, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
