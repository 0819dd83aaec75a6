//go:build !cgo

package main

import (
	"fmt"

	"github.com/dusk-indust/caseflow/internal/config"
	"github.com/dusk-indust/caseflow/internal/persist"
)

// openPersister returns the client state backend selected by cfg. The kuzu
// backend needs a cgo build.
func openPersister(cfg *config.Config) (persist.Persister, func() error, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return persist.NewMemStore(), nil, nil
	case config.BackendKuzu:
		return nil, nil, fmt.Errorf("state backend %q requires a cgo build", cfg.StateBackend)
	default:
		return persist.NewFileStore(cfg.StateDir), nil, nil
	}
}
