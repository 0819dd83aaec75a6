//go:build cgo

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dusk-indust/caseflow/internal/config"
	"github.com/dusk-indust/caseflow/internal/persist"
)

// openPersister returns the client state backend selected by cfg and an
// optional close func.
func openPersister(cfg *config.Config) (persist.Persister, func() error, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return persist.NewMemStore(), nil, nil
	case config.BackendKuzu:
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create state dir: %w", err)
		}
		ks, err := persist.NewKuzuFileStore(filepath.Join(cfg.StateDir, "state.kuzu"))
		if err != nil {
			return nil, nil, fmt.Errorf("open kuzu state: %w", err)
		}
		return ks, ks.Close, nil
	default:
		return persist.NewFileStore(cfg.StateDir), nil, nil
	}
}
