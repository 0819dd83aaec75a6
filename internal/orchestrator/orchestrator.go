package orchestrator

import (
	"context"

	"github.com/dusk-indust/caseflow/internal/caseapi"
)

// RunOptions carries the per-run callbacks. Both are optional and are called
// synchronously from the goroutine executing the run.
type RunOptions struct {
	// OnUploadProgress receives the per-file percentage map on every
	// transport progress tick.
	OnUploadProgress func(map[int]int)

	// OnStatusChange receives each newly observed case status.
	OnStatusChange func(caseapi.Status)
}

// ProgressEvent is emitted on the Progress channel during a run or resume.
type ProgressEvent struct {
	CaseID     string
	Stage      caseapi.Stage
	Status     ProgressStatus
	CaseStatus caseapi.Status // set on status-change events
	Message    string
}

// ProgressStatus is the state of a stage within a run.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// Orchestrator drives a case through the remote pipeline.
type Orchestrator interface {
	// Run creates a case, uploads files and runs extract, validate and
	// generate in order, returning the final case.
	Run(ctx context.Context, files []caseapi.File, meta caseapi.CreateRequest, opts RunOptions) (*caseapi.Case, error)

	// Progress returns a channel that emits progress events.
	Progress() <-chan ProgressEvent
}
