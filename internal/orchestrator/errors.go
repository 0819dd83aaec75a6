package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	ErrCreationFailed    = errors.New("case creation failed")
	ErrInvalidUpload     = errors.New("invalid upload batch")
	ErrNoFilesAccepted   = errors.New("service accepted no files")
	ErrStageRejected     = errors.New("stage rejected by service")
	ErrPollingTimeout    = errors.New("polling timed out")
	ErrValidationBlocked = errors.New("validation blocks generation")
	ErrNotRetryable      = errors.New("case is not retryable")
	ErrNothingToRetry    = errors.New("nothing to retry")
)

// StageError attributes a failure to a stage and case.
type StageError struct {
	Stage  caseapi.Stage
	CaseID string
	Err    error
}

func (e *StageError) Error() string {
	if e.CaseID == "" {
		return fmt.Sprintf("orchestrator: %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("orchestrator: %s case %s: %v", e.Stage, e.CaseID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageRejectedError reports that the case entered the error status. Context
// is the failure text the service attached to the case, if any.
type StageRejectedError struct {
	CaseID  string
	Context string
}

func (e *StageRejectedError) Error() string {
	if e.Context == "" {
		return "case entered error status"
	}
	return "case entered error status: " + e.Context
}

func (e *StageRejectedError) Is(target error) bool {
	return target == ErrStageRejected
}

// PollTimeoutError reports that a poll gave up before the case reached a
// target status. The server-side stage may still complete.
type PollTimeoutError struct {
	CaseID     string
	Targets    []caseapi.Status
	LastStatus caseapi.Status
	Elapsed    time.Duration
	Fetches    int
}

func (e *PollTimeoutError) Error() string {
	targets := make([]string, len(e.Targets))
	for i, t := range e.Targets {
		targets[i] = string(t)
	}
	return fmt.Sprintf("polling timed out after %s waiting for %s (last status %s, %d fetches)",
		e.Elapsed, strings.Join(targets, "|"), e.LastStatus, e.Fetches)
}

func (e *PollTimeoutError) Is(target error) bool {
	return target == ErrPollingTimeout
}

// ValidationBlockedError reports a validation that completed but disallows
// generation.
type ValidationBlockedError struct {
	CaseID string
	Result *caseapi.ValidationResult
	Issues []caseapi.ValidationIssue
}

func (e *ValidationBlockedError) Error() string {
	blocking := 0
	for _, is := range e.Issues {
		if is.Blocking || is.Severity == caseapi.SeverityError {
			blocking++
		}
	}
	return fmt.Sprintf("validation blocks generation (%d issues, %d blocking)", len(e.Issues), blocking)
}

func (e *ValidationBlockedError) Is(target error) bool {
	return target == ErrValidationBlocked
}
