package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

func TestPoll_FirstFetchSatisfiedDoesNotWait(t *testing.T) {
	q := newCaseQueue().add(withStatus("c1", caseapi.StatusExtracted))
	spy := &spyClient{getCase: q.get}
	clock := newFakeClock()
	p := NewPoller(spy, WithClock(clock))

	c, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusExtracted, caseapi.StatusError), PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusExtracted, c.Status)
	assert.Equal(t, 1, spy.count("get"))
	assert.Zero(t, clock.Waits(), "no wait tick when the first fetch already matches")
}

func TestPoll_TimeoutAfterFiveFetches(t *testing.T) {
	q := newCaseQueue().add(withStatus("c1", caseapi.StatusExtracting))
	spy := &spyClient{getCase: q.get}
	clock := newFakeClock()
	start := clock.Now()
	p := NewPoller(spy, WithClock(clock))

	progressCalls := 0
	_, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusExtracted, caseapi.StatusError), PollOptions{
		Interval:   time.Second,
		Timeout:    5 * time.Second,
		OnProgress: func(*caseapi.Case) { progressCalls++ },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollingTimeout)
	assert.NotErrorIs(t, err, ErrStageRejected)

	var pte *PollTimeoutError
	require.ErrorAs(t, err, &pte)
	assert.Equal(t, 5, pte.Fetches)
	assert.Equal(t, 5*time.Second, pte.Elapsed)
	assert.Equal(t, caseapi.StatusExtracting, pte.LastStatus)
	assert.Equal(t, []caseapi.Status{caseapi.StatusExtracted, caseapi.StatusError}, pte.Targets)

	assert.Equal(t, 5, spy.count("get"))
	assert.Equal(t, 5, progressCalls)
	assert.Equal(t, 5*time.Second, clock.Now().Sub(start))
}

func TestPoll_SlowFetchesTimeOutWithoutExtraWait(t *testing.T) {
	q := newCaseQueue().add(withStatus("c1", caseapi.StatusExtracting))
	clock := newFakeClock()
	start := clock.Now()
	spy := &spyClient{getCase: func(ctx context.Context, id string) (*caseapi.Case, error) {
		clock.advance(3 * time.Second)
		return q.get(ctx, id)
	}}
	p := NewPoller(spy, WithClock(clock))

	_, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusExtracted), PollOptions{
		Interval: time.Second,
		Timeout:  5 * time.Second,
	})
	require.Error(t, err)

	var pte *PollTimeoutError
	require.ErrorAs(t, err, &pte)
	assert.Equal(t, 2, pte.Fetches)
	assert.Equal(t, 7*time.Second, pte.Elapsed, "the deadline is checked as soon as the fetch returns")
	assert.Equal(t, []time.Duration{time.Second}, clock.waited())
	assert.Equal(t, 7*time.Second, clock.Now().Sub(start))
}

func TestPoll_WaitIsClampedToDeadline(t *testing.T) {
	q := newCaseQueue().add(withStatus("c1", caseapi.StatusGenerating))
	clock := newFakeClock()
	p := NewPoller(&spyClient{getCase: q.get}, WithClock(clock))

	_, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusCompleted), PollOptions{
		Interval: 4 * time.Second,
		Timeout:  5 * time.Second,
	})

	var pte *PollTimeoutError
	require.ErrorAs(t, err, &pte)
	assert.Equal(t, 2, pte.Fetches)
	assert.Equal(t, 5*time.Second, pte.Elapsed)
	assert.Equal(t, []time.Duration{4 * time.Second, time.Second}, clock.waited())
}

func TestPoll_LateFetchReachingTargetStillSucceeds(t *testing.T) {
	q := newCaseQueue().add(
		withStatus("c1", caseapi.StatusExtracting),
		withStatus("c1", caseapi.StatusExtracted),
	)
	clock := newFakeClock()
	spy := &spyClient{getCase: func(ctx context.Context, id string) (*caseapi.Case, error) {
		clock.advance(2 * time.Second)
		return q.get(ctx, id)
	}}
	p := NewPoller(spy, WithClock(clock))

	c, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusExtracted), PollOptions{
		Interval: time.Second,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusExtracted, c.Status)
}

func TestPoll_ReachesTargetAfterWaits(t *testing.T) {
	q := newCaseQueue().add(
		withStatus("c1", caseapi.StatusGenerating),
		withStatus("c1", caseapi.StatusGenerating),
		withStatus("c1", caseapi.StatusCompleted),
	)
	spy := &spyClient{getCase: q.get}
	clock := newFakeClock()
	p := NewPoller(spy, WithClock(clock), WithPollInterval(2*time.Second))

	var seen []caseapi.Status
	c, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusCompleted, caseapi.StatusError), PollOptions{
		OnProgress: func(c *caseapi.Case) { seen = append(seen, c.Status) },
	})
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusCompleted, c.Status)
	assert.Equal(t, []caseapi.Status{caseapi.StatusGenerating, caseapi.StatusGenerating, caseapi.StatusCompleted}, seen)
	assert.Equal(t, 2, clock.Waits())
}

func TestPoll_ErrorStatusRejectsImmediately(t *testing.T) {
	failed := withStatus("c1", caseapi.StatusError)
	failed.ExtractionMetadata = map[string]any{"error": "unreadable scan"}
	q := newCaseQueue().add(failed)
	spy := &spyClient{getCase: q.get}
	clock := newFakeClock()
	p := NewPoller(spy, WithClock(clock))

	called := false
	_, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusExtracted), PollOptions{
		OnProgress: func(*caseapi.Case) { called = true },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageRejected)

	var sre *StageRejectedError
	require.ErrorAs(t, err, &sre)
	assert.Equal(t, "unreadable scan", sre.Context)
	assert.Contains(t, err.Error(), "unreadable scan")
	assert.True(t, called, "progress fires even for a failing fetch")
	assert.Zero(t, clock.Waits())
}

func TestPoll_ErrorAsTargetResolves(t *testing.T) {
	q := newCaseQueue().add(withStatus("c1", caseapi.StatusError))
	p := NewPoller(&spyClient{getCase: q.get}, WithClock(newFakeClock()))

	c, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusCompleted, caseapi.StatusError), PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusError, c.Status)
}

func TestPoll_FetchErrorIsNotRetried(t *testing.T) {
	boom := &caseapi.TransportError{Op: "get", StatusCode: 503, Message: "unavailable"}
	spy := &spyClient{getCase: func(context.Context, string) (*caseapi.Case, error) {
		return nil, boom
	}}
	clock := newFakeClock()
	p := NewPoller(spy, WithClock(clock))

	_, err := p.Poll(context.Background(), "c1", Targets(caseapi.StatusExtracted), PollOptions{})
	require.Error(t, err)
	assert.Same(t, boom, err)
	assert.Equal(t, 1, spy.count("get"))
	assert.Zero(t, clock.Waits())
}

func TestPoll_ContextCancelledWhileWaiting(t *testing.T) {
	q := newCaseQueue().add(withStatus("c1", caseapi.StatusExtracting))
	p := NewPoller(&spyClient{getCase: q.get})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := p.Poll(ctx, "c1", Targets(caseapi.StatusExtracted), PollOptions{
			Interval:   time.Hour,
			Timeout:    2 * time.Hour,
			OnProgress: func(*caseapi.Case) { cancel() },
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poll ignored context cancellation")
	}
}

func TestPoll_ConcurrentPollsDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	spy := &spyClient{getCase: func(ctx context.Context, id string) (*caseapi.Case, error) {
		if id == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return withStatus(id, caseapi.StatusExtracted), nil
	}}
	p := NewPoller(spy)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Poll(context.Background(), "slow", Targets(caseapi.StatusExtracted), PollOptions{})
	}()

	fast := make(chan error, 1)
	go func() {
		_, err := p.Poll(context.Background(), "fast", Targets(caseapi.StatusExtracted), PollOptions{})
		fast <- err
	}()

	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll for one case blocked a poll for another")
	}

	close(release)
	wg.Wait()
}

func TestWatch_StreamsCasesThenOutcome(t *testing.T) {
	q := newCaseQueue().add(
		withStatus("c1", caseapi.StatusExtracting),
		withStatus("c1", caseapi.StatusExtracted),
	)
	p := NewPoller(&spyClient{getCase: q.get}, WithClock(newFakeClock()))

	var events []PollEvent
	for ev := range p.Watch(context.Background(), "c1", Targets(caseapi.StatusExtracted), PollOptions{}) {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, caseapi.StatusExtracting, events[0].Case.Status)
	assert.False(t, events[0].Done)
	assert.Equal(t, caseapi.StatusExtracted, events[1].Case.Status)
	assert.True(t, events[2].Done)
	require.NoError(t, events[2].Err)
	assert.Equal(t, caseapi.StatusExtracted, events[2].Case.Status)
}

func TestWatch_FinalEventCarriesError(t *testing.T) {
	spy := &spyClient{getCase: func(context.Context, string) (*caseapi.Case, error) {
		return nil, errors.New("dial tcp: refused")
	}}
	p := NewPoller(spy, WithClock(newFakeClock()))

	var last PollEvent
	for ev := range p.Watch(context.Background(), "c1", Targets(caseapi.StatusExtracted), PollOptions{}) {
		last = ev
	}
	assert.True(t, last.Done)
	assert.EqualError(t, last.Err, "dial tcp: refused")
}

func TestStatusSet_Slice(t *testing.T) {
	set := Targets(caseapi.StatusError, caseapi.StatusCompleted, caseapi.StatusExtracted)
	assert.Equal(t, []caseapi.Status{caseapi.StatusExtracted, caseapi.StatusCompleted, caseapi.StatusError}, set.Slice())
	assert.True(t, set.Contains(caseapi.StatusError))
	assert.False(t, set.Contains(caseapi.StatusDraft))
}
