package mcptools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/export"
	"github.com/dusk-indust/caseflow/internal/orchestrator"
	"github.com/dusk-indust/caseflow/internal/state"
	"github.com/dusk-indust/caseflow/internal/status"
)

// Resumer resumes a failed case by id.
type Resumer interface {
	Resume(ctx context.Context, caseID string) (*caseapi.Case, error)
}

// CaseService handles MCP tool calls. Pipeline failures are reported in the
// tool output; only malformed input is returned as a tool error.
type CaseService struct {
	pipeline orchestrator.Orchestrator
	resumer  Resumer
	client   caseapi.Client
	store    *state.Store
}

// NewCaseService creates a CaseService.
func NewCaseService(pipeline orchestrator.Orchestrator, resumer Resumer, client caseapi.Client, store *state.Store) *CaseService {
	return &CaseService{
		pipeline: pipeline,
		resumer:  resumer,
		client:   client,
		store:    store,
	}
}

// RunCase uploads the given files as a new case and runs it through
// generation.
func (s *CaseService) RunCase(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunCaseInput,
) (*mcp.CallToolResult, RunCaseOutput, error) {
	if len(input.Files) == 0 {
		return nil, RunCaseOutput{}, fmt.Errorf("files is required")
	}

	files := make([]caseapi.File, 0, len(input.Files))
	for _, path := range input.Files {
		f, err := os.Open(path)
		if err != nil {
			closeAll(files)
			return nil, RunCaseOutput{}, fmt.Errorf("cannot open %s: %w", path, err)
		}
		files = append(files, caseapi.File{Name: filepath.Base(path), Reader: f})
	}
	defer closeAll(files)

	meta := caseapi.CreateRequest{
		ClientName:  input.ClientName,
		BrokerName:  input.BrokerName,
		BrokerEmail: input.BrokerEmail,
		CarrierName: input.CarrierName,
		Notes:       input.Notes,
	}
	c, err := s.pipeline.Run(ctx, files, meta, orchestrator.RunOptions{})
	return nil, outcome(c, err), nil
}

// ResumeCase resumes a case in error status from its first incomplete stage.
func (s *CaseService) ResumeCase(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResumeCaseInput,
) (*mcp.CallToolResult, RunCaseOutput, error) {
	if input.CaseID == "" {
		return nil, RunCaseOutput{}, fmt.Errorf("caseId is required")
	}
	c, err := s.resumer.Resume(ctx, input.CaseID)
	out := outcome(c, err)
	if out.CaseID == "" {
		out.CaseID = input.CaseID
	}
	return nil, out, nil
}

// GetCase fetches a case and returns its export document.
func (s *CaseService) GetCase(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetCaseInput,
) (*mcp.CallToolResult, export.CaseExport, error) {
	c, err := s.fetch(ctx, input.CaseID)
	if err != nil {
		return nil, export.CaseExport{}, err
	}
	return nil, *export.ExportCase(c), nil
}

// CaseStatus reports which stages of a case are complete and where a retry
// would start.
func (s *CaseService) CaseStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CaseStatusInput,
) (*mcp.CallToolResult, CaseStatusOutput, error) {
	c, err := s.fetch(ctx, input.CaseID)
	if err != nil {
		return nil, CaseStatusOutput{}, err
	}

	cs := status.Describe(c)
	out := CaseStatusOutput{
		CaseID:       cs.ID,
		Status:       string(cs.Status),
		NextStage:    string(cs.NextStage),
		ErrorContext: cs.ErrorContext,
	}
	for _, si := range cs.Stages {
		out.Stages = append(out.Stages, StageOutput{
			Stage:    string(si.Stage),
			Name:     si.Name,
			Complete: si.Complete,
		})
	}
	if cs.Failed {
		if stage, ok := status.ResumePoint(c); ok {
			out.ResumeFrom = string(stage)
		}
	}
	return nil, out, nil
}

// RecentCases lists the recency cache, most recent first.
func (s *CaseService) RecentCases(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ RecentCasesInput,
) (*mcp.CallToolResult, RecentCasesOutput, error) {
	out := RecentCasesOutput{Cases: []RecentCase{}}
	for _, sum := range s.store.Recent() {
		rc := RecentCase{
			ID:       sum.ID,
			Label:    sum.Label,
			Status:   string(sum.Status),
			Errors:   sum.ErrorCount,
			Warnings: sum.WarningCount,
		}
		if !sum.UpdatedAt.IsZero() {
			rc.UpdatedAt = sum.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out.Cases = append(out.Cases, rc)
	}
	return nil, out, nil
}

// CaseReport returns the service's computed totals for a case. The case is
// moved to the front of the recency list; the current case is unchanged.
func (s *CaseService) CaseReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CaseReportInput,
) (*mcp.CallToolResult, CaseReportOutput, error) {
	if input.CaseID == "" {
		return nil, CaseReportOutput{}, fmt.Errorf("caseId is required")
	}
	r, err := s.client.Report(ctx, input.CaseID)
	if err != nil {
		return nil, CaseReportOutput{}, fmt.Errorf("report case %s: %w", input.CaseID, err)
	}
	s.store.Touch(r.Summary())
	return nil, CaseReportOutput{
		CaseID:         r.ID,
		Status:         string(r.Status),
		ApplicantName:  r.ApplicantName,
		TotalLocations: r.TotalLocations,
		TotalLosses:    r.TotalLosses,
		TotalTIV:       r.TotalTIV,
		Completeness:   r.Completeness,
		IsValid:        r.IsValid,
		Errors:         r.ErrorCount,
		Warnings:       r.WarningCount,
	}, nil
}

// CaseStatistics returns case counts by status across the service.
func (s *CaseService) CaseStatistics(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ CaseStatisticsInput,
) (*mcp.CallToolResult, CaseStatisticsOutput, error) {
	st, err := s.client.Statistics(ctx)
	if err != nil {
		return nil, CaseStatisticsOutput{}, fmt.Errorf("statistics: %w", err)
	}
	out := CaseStatisticsOutput{
		Total:    st.Total,
		ByStatus: make(map[string]int, len(st.ByStatus)),
	}
	for k, v := range st.ByStatus {
		out.ByStatus[string(k)] = v
	}
	if !st.Timestamp.IsZero() {
		out.Timestamp = st.Timestamp.UTC().Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *CaseService) fetch(ctx context.Context, caseID string) (*caseapi.Case, error) {
	if caseID == "" {
		return nil, fmt.Errorf("caseId is required")
	}
	c, err := s.client.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", caseID, err)
	}
	s.store.Commit(c)
	return c, nil
}

// outcome maps a run or resume result onto the tool output.
func outcome(c *caseapi.Case, err error) RunCaseOutput {
	if err == nil {
		return RunCaseOutput{CaseID: c.ID, Status: string(c.Status), Result: "completed"}
	}

	out := RunCaseOutput{Result: "failed", Message: err.Error()}
	var se *orchestrator.StageError
	if errors.As(err, &se) {
		out.CaseID = se.CaseID
		out.Stage = string(se.Stage)
	}
	var vbe *orchestrator.ValidationBlockedError
	if errors.As(err, &vbe) {
		out.Result = "blocked"
		out.Issues = vbe.Issues
	}
	return out
}

func closeAll(files []caseapi.File) {
	for _, f := range files {
		if c, ok := f.Reader.(*os.File); ok {
			c.Close()
		}
	}
}
