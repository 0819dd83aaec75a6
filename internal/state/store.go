package state

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/persist"
)

// DefaultCapacity is the recency list cap.
const DefaultCapacity = 10

// subscriberBuffer is the per-observer channel buffer. A full buffer drops
// the snapshot for that observer only.
const subscriberBuffer = 16

// Flags are the per-stage in-flight markers.
type Flags struct {
	Uploading  bool `json:"uploading"`
	Extracting bool `json:"extracting"`
	Validating bool `json:"validating"`
	Generating bool `json:"generating"`
}

// Any reports whether any stage is in flight.
func (f Flags) Any() bool {
	return f.Uploading || f.Extracting || f.Validating || f.Generating
}

// Snapshot is a read-only copy of the store. Mutating it has no effect on the
// store.
type Snapshot struct {
	Current   *caseapi.Case         `json:"current,omitempty"`
	CurrentID string                `json:"current_id,omitempty"`
	Flags     Flags                 `json:"flags"`
	Err       string                `json:"error,omitempty"`
	Recent    []caseapi.CaseSummary `json:"recent"`
}

// Lister is the subset of caseapi.Client used to warm the recency list.
type Lister interface {
	ListCases(ctx context.Context, opts caseapi.ListOptions) (*caseapi.ListResponse, error)
}

// Store is the observable state container shared by the pipeline and the
// resumer. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	current   *caseapi.Case
	currentID string
	inflight  map[caseapi.Stage]int
	errMsg    string
	recent    []caseapi.CaseSummary

	capacity  int
	persister persist.Persister
	log       logrus.FieldLogger

	subs    map[int]chan Snapshot
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the recency list cap. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithPersister saves the current id and recency list after every change.
func WithPersister(p persist.Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithLogger sets the logger used to report persistence failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Store{
		capacity: DefaultCapacity,
		log:      discard,
		inflight: make(map[caseapi.Stage]int),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the recency list cap.
func (s *Store) Capacity() int {
	return s.capacity
}

// --- Stage lifecycle ---

// BeginStage marks stage as in flight and clears the error slot. Calls nest:
// the flag stays set until every BeginStage has a matching EndStage, so
// concurrent runs of different cases do not clear each other's flags.
func (s *Store) BeginStage(stage caseapi.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[stage]++
	s.errMsg = ""
	s.notifyLocked()
}

// EndStage clears the in-flight flag of stage.
func (s *Store) EndStage(stage caseapi.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[stage] > 0 {
		s.inflight[stage]--
	}
	s.notifyLocked()
}

// Fail records err in the error slot. A nil err is ignored.
func (s *Store) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = err.Error()
	s.notifyLocked()
}

// ClearError empties the error slot.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
	s.notifyLocked()
}

func (s *Store) flagsLocked() Flags {
	return Flags{
		Uploading:  s.inflight[caseapi.StageUpload] > 0,
		Extracting: s.inflight[caseapi.StageExtract] > 0,
		Validating: s.inflight[caseapi.StageValidate] > 0,
		Generating: s.inflight[caseapi.StageGenerate] > 0,
	}
}

// --- Case mutations ---

// Commit makes c the current case and moves its summary to the front of the
// recency list. The store keeps its own copy of c.
func (s *Store) Commit(c *caseapi.Case) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c.Clone()
	s.currentID = c.ID
	s.touchLocked(caseapi.Summarize(c))
	s.saveLocked()
	s.notifyLocked()
}

// Touch upserts sum at the front of the recency list without changing the
// current case.
func (s *Store) Touch(sum caseapi.CaseSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(sum)
	s.saveLocked()
	s.notifyLocked()
}

// Forget drops id from the recency list and clears the current case if it
// matches. Used after a server-side delete.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	if s.currentID == id {
		s.current = nil
		s.currentID = ""
	}
	s.saveLocked()
	s.notifyLocked()
}

func (s *Store) touchLocked(sum caseapi.CaseSummary) {
	s.removeLocked(sum.ID)
	s.recent = append([]caseapi.CaseSummary{sum}, s.recent...)
	if len(s.recent) > s.capacity {
		s.recent = s.recent[:s.capacity]
	}
}

func (s *Store) removeLocked(id string) {
	for i, r := range s.recent {
		if r.ID == id {
			s.recent = append(s.recent[:i], s.recent[i+1:]...)
			return
		}
	}
}

// --- Reads ---

// Current returns a copy of the current case, or nil.
func (s *Store) Current() *caseapi.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// CurrentID returns the current case id. After Restore it is set even though
// the case body has not been fetched yet.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Flags returns the in-flight flags.
func (s *Store) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagsLocked()
}

// Err returns the error slot.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Recent returns a copy of the recency list, most recent first.
func (s *Store) Recent() []caseapi.CaseSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]caseapi.CaseSummary(nil), s.recent...)
}

// Snapshot returns a deep copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Current:   s.current.Clone(),
		CurrentID: s.currentID,
		Flags:     s.flagsLocked(),
		Err:       s.errMsg,
		Recent:    append([]caseapi.CaseSummary(nil), s.recent...),
	}
}

// --- Observers ---

// Subscribe returns a channel that receives a snapshot after every change,
// and a cancel func that unregisters and closes it. Slow observers miss
// snapshots rather than block the store.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// --- Lifecycle ---

// Reset clears everything except observers and persisted state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.currentID = ""
	s.inflight = make(map[caseapi.Stage]int)
	s.errMsg = ""
	s.recent = nil
	s.notifyLocked()
}

// Restore loads the current id and recency list from the persister. Entries
// beyond capacity are dropped.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	st, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("state: restore: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = st.CurrentCaseID
	if s.current != nil && s.current.ID != st.CurrentCaseID {
		s.current = nil
	}
	s.recent = st.Recent
	if len(s.recent) > s.capacity {
		s.recent = s.recent[:s.capacity]
	}
	s.notifyLocked()
	return nil
}

// Warm fills an empty recency list from the service's case list. It is a
// no-op when the list already has entries.
func (s *Store) Warm(ctx context.Context, lister Lister) error {
	s.mu.Lock()
	empty := len(s.recent) == 0
	s.mu.Unlock()
	if !empty {
		return nil
	}

	resp, err := lister.ListCases(ctx, caseapi.ListOptions{Limit: s.capacity})
	if err != nil {
		return fmt.Errorf("state: warm: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) > 0 {
		return nil
	}
	for i := len(resp.Cases) - 1; i >= 0; i-- {
		s.touchLocked(resp.Cases[i])
	}
	s.saveLocked()
	s.notifyLocked()
	return nil
}

// Save writes the persisted subset immediately.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	st := s.persistedLocked()
	s.mu.Unlock()
	if err := s.persister.Save(ctx, st); err != nil {
		return fmt.Errorf("state: save: %w", err)
	}
	return nil
}

func (s *Store) persistedLocked() persist.State {
	return persist.State{
		CurrentCaseID: s.currentID,
		Recent:        append([]caseapi.CaseSummary(nil), s.recent...),
	}
}

// saveLocked persists after a change. Failures are logged, not returned.
func (s *Store) saveLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(context.Background(), s.persistedLocked()); err != nil {
		s.log.WithError(err).Warn("state: persist snapshot failed")
	}
}
