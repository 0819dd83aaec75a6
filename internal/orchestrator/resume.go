package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/status"
)

// Resumer continues cases that ended in error from the first stage whose
// artifact is missing. It never re-uploads: files are not kept client-side.
type Resumer struct {
	p *Pipeline
}

// NewResumer creates a Resumer sharing p's client, store and configuration.
func NewResumer(p *Pipeline) *Resumer {
	return &Resumer{p: p}
}

// ResumeOutcome is the result of one case in ResumeAll.
type ResumeOutcome struct {
	CaseID string
	Case   *caseapi.Case
	Err    error
}

// Resume resumes caseID. When the store's current case has that id and is
// already in error status it is used as-is and no fetch is made. Otherwise
// the case is fetched once, since a stored case left mid-stage (for example
// after a poll timeout) may have moved on server-side.
func (r *Resumer) Resume(ctx context.Context, caseID string) (*caseapi.Case, error) {
	c := r.p.store.Current()
	if c == nil || c.ID != caseID || c.Status != caseapi.StatusError {
		fetched, err := r.p.client.GetCase(ctx, caseID)
		if err != nil {
			err = fmt.Errorf("orchestrator: resume case %s: %w", caseID, err)
			r.p.store.Fail(err)
			return nil, err
		}
		r.p.store.Commit(fetched)
		c = fetched
	}
	return r.ResumeCase(ctx, c)
}

// ResumeCase resumes an already fetched case.
//
// The case must be in error status. An extraction timestamp resumes at
// validation; otherwise uploaded files resume at extraction; otherwise the
// call fails with ErrNothingToRetry.
func (r *Resumer) ResumeCase(ctx context.Context, c *caseapi.Case) (*caseapi.Case, error) {
	if c.Status != caseapi.StatusError {
		err := fmt.Errorf("orchestrator: %w: case %s has status %s", ErrNotRetryable, c.ID, c.Status)
		r.p.store.Fail(err)
		return nil, err
	}

	first, ok := status.ResumePoint(c)
	if !ok {
		err := fmt.Errorf("orchestrator: %w: case %s has no uploaded files", ErrNothingToRetry, c.ID)
		r.p.store.Fail(err)
		return nil, err
	}

	r.p.log.WithFields(logrus.Fields{
		"case_id": c.ID,
		"stage":   first,
	}).Info("resuming case")

	tr := r.p.newTracker(c.ID, nil)
	tr.last = c.Status
	return r.p.runFrom(ctx, c.ID, first, tr)
}

// ResumeAll resumes independent cases concurrently, at most
// Config.ResumeConcurrency at a time. One case failing does not stop the
// others. Outcomes are returned in input order.
func (r *Resumer) ResumeAll(ctx context.Context, caseIDs []string) []ResumeOutcome {
	out := make([]ResumeOutcome, len(caseIDs))

	var g errgroup.Group
	g.SetLimit(r.p.cfg.ResumeConcurrency)
	for i, id := range caseIDs {
		g.Go(func() error {
			c, err := r.resumeFetched(ctx, id)
			out[i] = ResumeOutcome{CaseID: id, Case: c, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// resumeFetched always fetches, since concurrent runs make the store's
// current case a moving target.
func (r *Resumer) resumeFetched(ctx context.Context, caseID string) (*caseapi.Case, error) {
	c, err := r.p.client.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resume case %s: %w", caseID, err)
	}
	r.p.store.Commit(c)
	return r.ResumeCase(ctx, c)
}

// FailedCaseIDs returns the ids of summaries in error status, in list order.
func FailedCaseIDs(summaries []caseapi.CaseSummary) []string {
	var ids []string
	for _, s := range summaries {
		if s.Status == caseapi.StatusError {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
