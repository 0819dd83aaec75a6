package persist

import (
	"context"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// State is the client state that survives a process restart: the current case
// id and the recency list. In-flight flags and fetched case bodies are rebuilt
// from the server instead.
type State struct {
	CurrentCaseID string                `yaml:"current_case_id,omitempty"`
	Recent        []caseapi.CaseSummary `yaml:"recent"`
}

// Persister is the interface for snapshot backends.
// Implementations: FileStore (default), KuzuStore (cgo), MemStore (testing).
type Persister interface {
	// Load returns the last saved state, or a zero State if nothing was saved.
	Load(ctx context.Context) (State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, st State) error
}

func cloneState(st State) State {
	out := State{CurrentCaseID: st.CurrentCaseID}
	if st.Recent != nil {
		out.Recent = append([]caseapi.CaseSummary(nil), st.Recent...)
	}
	return out
}
