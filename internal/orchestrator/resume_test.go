package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/state"
)

func resumeService(q *caseQueue) *spyClient {
	return &spyClient{
		getCase:  q.get,
		extract:  okExtract,
		validate: okValidate,
		generate: okGenerate,
	}
}

func TestResume_FromExtractionUsesStoredCase(t *testing.T) {
	q := newCaseQueue().add(
		extractedCase("case-1", caseapi.StatusExtracted),
		extractedCase("case-1", caseapi.StatusValidated),
		extractedCase("case-1", caseapi.StatusCompleted),
	)
	spy := resumeService(q)
	store := state.New()
	store.Commit(uploadedCase("case-1", caseapi.StatusError))

	p := newTestPipeline(spy, store, newFakeClock())
	c, err := NewResumer(p).Resume(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusCompleted, c.Status)

	assert.Equal(t, []string{
		"extract", "get",
		"validate", "get",
		"generate", "get",
	}, spy.Calls(), "no fetch up front and never an upload")
	assert.Empty(t, store.Err())
}

func TestResume_RefetchesStoredCaseLeftMidStage(t *testing.T) {
	q := newCaseQueue().add(
		uploadedCase("case-1", caseapi.StatusUploaded),
		uploadedCase("case-1", caseapi.StatusExtracting),
		uploadedCase("case-1", caseapi.StatusError),
		extractedCase("case-1", caseapi.StatusExtracted),
		extractedCase("case-1", caseapi.StatusValidated),
		extractedCase("case-1", caseapi.StatusCompleted),
	)
	spy := resumeService(q)
	spy.upload = okProgressUpload
	spy.createCase = okCreate("case-1")
	store := state.New()
	p := NewPipeline(spy, store,
		WithConfig(Config{PollInterval: time.Second, PollTimeout: time.Second}),
		WithLogger(quietLogger()),
		WithPipelineClock(newFakeClock()),
	)

	_, err := p.Run(context.Background(), twoFiles(), caseapi.CreateRequest{}, RunOptions{})
	require.ErrorIs(t, err, ErrPollingTimeout)
	require.Equal(t, caseapi.StatusExtracting, store.Current().Status)

	before := spy.count("get")
	c, err := NewResumer(p).Resume(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusCompleted, c.Status)

	calls := spy.Calls()
	assert.Equal(t, "get", calls[len(calls)-7], "the stale stored case is fetched before the retry check")
	assert.Equal(t, []string{
		"extract", "get",
		"validate", "get",
		"generate", "get",
	}, calls[len(calls)-6:])
	assert.Equal(t, before+4, spy.count("get"))
	assert.Equal(t, 1, spy.count("upload"))
}

func TestResume_FromValidationFetchesUnknownCase(t *testing.T) {
	q := newCaseQueue().add(
		extractedCase("case-2", caseapi.StatusError),
		extractedCase("case-2", caseapi.StatusValidated),
		extractedCase("case-2", caseapi.StatusCompleted),
	)
	spy := resumeService(q)
	store := state.New()
	store.Commit(uploadedCase("other", caseapi.StatusCompleted))

	p := newTestPipeline(spy, store, newFakeClock())
	c, err := NewResumer(p).Resume(context.Background(), "case-2")
	require.NoError(t, err)
	assert.Equal(t, caseapi.StatusCompleted, c.Status)

	assert.Equal(t, []string{
		"get",
		"validate", "get",
		"generate", "get",
	}, spy.Calls())
	assert.Zero(t, spy.count("extract"))
	assert.Equal(t, "case-2", store.CurrentID())
}

func TestResumeCase_NothingToRetry(t *testing.T) {
	spy := &spyClient{}
	store := state.New()
	p := newTestPipeline(spy, store, newFakeClock())

	_, err := NewResumer(p).ResumeCase(context.Background(), withStatus("case-3", caseapi.StatusError))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNothingToRetry)
	assert.Empty(t, spy.Calls(), "no remote call when there is nothing to retry")
	assert.Contains(t, store.Err(), "nothing to retry")
}

func TestResumeCase_NotRetryable(t *testing.T) {
	for _, st := range []caseapi.Status{caseapi.StatusCompleted, caseapi.StatusExtracting, caseapi.StatusDraft} {
		t.Run(string(st), func(t *testing.T) {
			spy := &spyClient{}
			p := newTestPipeline(spy, nil, newFakeClock())

			_, err := NewResumer(p).ResumeCase(context.Background(), extractedCase("case-4", st))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotRetryable)
			assert.NotErrorIs(t, err, ErrNothingToRetry)
			assert.Empty(t, spy.Calls())
		})
	}
}

func TestResume_FetchFailure(t *testing.T) {
	spy := resumeService(newCaseQueue())
	store := state.New()
	p := newTestPipeline(spy, store, newFakeClock())

	_, err := NewResumer(p).Resume(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, caseapi.ErrNotFound)
	assert.Equal(t, []string{"get"}, spy.Calls())
	assert.Contains(t, store.Err(), "missing")
}

func TestResume_ValidationGateStillApplies(t *testing.T) {
	q := newCaseQueue().add(
		extractedCase("case-5", caseapi.StatusError),
		extractedCase("case-5", caseapi.StatusValidated),
	)
	spy := resumeService(q)
	spy.validate = func(context.Context, string, caseapi.ValidateRequest) (*caseapi.ValidationResult, error) {
		return &caseapi.ValidationResult{
			CanProceedToGeneration: false,
			Errors:                 []caseapi.ValidationIssue{{FieldPath: "fein", Blocking: true}},
		}, nil
	}

	p := newTestPipeline(spy, nil, newFakeClock())
	_, err := NewResumer(p).Resume(context.Background(), "case-5")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationBlocked)
	assert.Zero(t, spy.count("generate"))
}

func TestResume_ExtractionRejectedAgain(t *testing.T) {
	failed := uploadedCase("case-6", caseapi.StatusError)
	failed.ExtractionMetadata = map[string]any{"error": "unreadable scan"}
	q := newCaseQueue().add(failed)
	spy := resumeService(q)

	p := newTestPipeline(spy, nil, newFakeClock())
	_, err := NewResumer(p).Resume(context.Background(), "case-6")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageRejected)
	assert.Contains(t, err.Error(), "unreadable scan")
}

func TestResumeAll_IndependentOutcomesInInputOrder(t *testing.T) {
	q := newCaseQueue().add(
		uploadedCase("ok", caseapi.StatusError),
		extractedCase("ok", caseapi.StatusExtracted),
		extractedCase("ok", caseapi.StatusValidated),
		extractedCase("ok", caseapi.StatusCompleted),

		withStatus("empty", caseapi.StatusError),
		extractedCase("done", caseapi.StatusCompleted),
	)
	spy := resumeService(q)
	store := state.New()
	p := NewPipeline(spy, store,
		WithConfig(Config{ResumeConcurrency: 2}),
		WithLogger(quietLogger()),
		WithPipelineClock(newFakeClock()),
	)

	ids := []string{"ok", "empty", "missing", "done"}
	outcomes := NewResumer(p).ResumeAll(context.Background(), ids)
	require.Len(t, outcomes, 4)

	for i, id := range ids {
		assert.Equal(t, id, outcomes[i].CaseID)
	}

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, caseapi.StatusCompleted, outcomes[0].Case.Status)
	assert.ErrorIs(t, outcomes[1].Err, ErrNothingToRetry)
	assert.ErrorIs(t, outcomes[2].Err, caseapi.ErrNotFound)
	assert.ErrorIs(t, outcomes[3].Err, ErrNotRetryable)

	assert.Zero(t, spy.count("upload"))
	assert.Equal(t, 1, spy.count("extract"))
	assert.Equal(t, 1, spy.count("generate"))

	recent := map[string]bool{}
	for _, s := range store.Recent() {
		recent[s.ID] = true
	}
	assert.True(t, recent["ok"])
	assert.True(t, recent["empty"])
	assert.True(t, recent["done"])
	assert.False(t, recent["missing"])
}

func TestFailedCaseIDs(t *testing.T) {
	summaries := []caseapi.CaseSummary{
		{ID: "a", Status: caseapi.StatusError},
		{ID: "b", Status: caseapi.StatusCompleted},
		{ID: "c", Status: caseapi.StatusError},
		{ID: "d", Status: caseapi.StatusExtracting},
	}
	assert.Equal(t, []string{"a", "c"}, FailedCaseIDs(summaries))
	assert.Nil(t, FailedCaseIDs(nil))
}
