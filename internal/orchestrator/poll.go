package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// Clock abstracts time for the poller.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fetcher is the subset of caseapi.Client the poller needs.
type Fetcher interface {
	GetCase(ctx context.Context, id string) (*caseapi.Case, error)
}

// StatusSet is a set of target statuses.
type StatusSet map[caseapi.Status]struct{}

// Targets builds a StatusSet.
func Targets(statuses ...caseapi.Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether s is in the set.
func (set StatusSet) Contains(s caseapi.Status) bool {
	_, ok := set[s]
	return ok
}

// Slice returns the members in pipeline order.
func (set StatusSet) Slice() []caseapi.Status {
	out := make([]caseapi.Status, 0, len(set))
	for _, s := range caseapi.AllStatuses() {
		if set.Contains(s) {
			out = append(out, s)
		}
	}
	var unknown []caseapi.Status
	for s := range set {
		if !s.Valid() {
			unknown = append(unknown, s)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return append(out, unknown...)
}

// PollOptions override the poller defaults for one poll.
type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration

	// OnProgress is called with every fetched case before it is evaluated.
	OnProgress func(*caseapi.Case)
}

// Poller waits for a case to reach a target status. It holds no per-poll
// state, so one Poller serves any number of concurrent polls.
type Poller struct {
	fetcher  Fetcher
	clock    Clock
	interval time.Duration
	timeout  time.Duration
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithClock replaces the wall clock.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithPollInterval sets the default interval.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollTimeout sets the default timeout.
func WithPollTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPoller creates a Poller fetching through f.
func NewPoller(f Fetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  f,
		clock:    realClock{},
		interval: DefaultPollInterval,
		timeout:  DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll fetches the case until its status is in targets.
//
// A first fetch that already satisfies targets returns without waiting. A
// case in error status fails with *StageRejectedError unless error is itself
// a target. The elapsed time is checked after every fetch and every wait, and
// a wait never extends past the deadline; once the timeout is reached Poll
// fails with *PollTimeoutError. Fetch errors are returned unchanged and never
// retried.
func (p *Poller) Poll(ctx context.Context, caseID string, targets StatusSet, opts PollOptions) (*caseapi.Case, error) {
	interval := p.interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}
	timeout := p.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	start := p.clock.Now()
	fetches := 0
	for {
		c, err := p.fetcher.GetCase(ctx, caseID)
		if err != nil {
			return nil, err
		}
		fetches++

		if opts.OnProgress != nil {
			opts.OnProgress(c)
		}

		if targets.Contains(c.Status) {
			return c, nil
		}
		if c.Status == caseapi.StatusError {
			return nil, &StageRejectedError{CaseID: caseID, Context: c.ErrorContext()}
		}

		elapsed := p.clock.Now().Sub(start)
		if elapsed >= timeout {
			return nil, pollTimeout(caseID, targets, c.Status, elapsed, fetches)
		}

		wait := interval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("orchestrator: poll case %s: %w", caseID, ctx.Err())
		case <-p.clock.After(wait):
		}

		if elapsed := p.clock.Now().Sub(start); elapsed >= timeout {
			return nil, pollTimeout(caseID, targets, c.Status, elapsed, fetches)
		}
	}
}

func pollTimeout(caseID string, targets StatusSet, last caseapi.Status, elapsed time.Duration, fetches int) *PollTimeoutError {
	return &PollTimeoutError{
		CaseID:     caseID,
		Targets:    targets.Slice(),
		LastStatus: last,
		Elapsed:    elapsed,
		Fetches:    fetches,
	}
}

// PollEvent is delivered by Watch. Intermediate events carry a fetched case;
// the final event has Done set and carries the outcome.
type PollEvent struct {
	Case *caseapi.Case
	Done bool
	Err  error
}

// Watch runs Poll in a goroutine and streams every fetched case followed by a
// final event, then closes the channel. Cancel ctx to stop early; the final
// event then carries the context error unless the reader has gone away.
func (p *Poller) Watch(ctx context.Context, caseID string, targets StatusSet, opts PollOptions) <-chan PollEvent {
	ch := make(chan PollEvent, 1)
	go func() {
		defer close(ch)

		user := opts.OnProgress
		opts.OnProgress = func(c *caseapi.Case) {
			if user != nil {
				user(c)
			}
			select {
			case ch <- PollEvent{Case: c}:
			case <-ctx.Done():
			}
		}

		c, err := p.Poll(ctx, caseID, targets, opts)
		select {
		case ch <- PollEvent{Case: c, Done: true, Err: err}:
		case <-ctx.Done():
		}
	}()
	return ch
}
