package mcptools

import "github.com/dusk-indust/caseflow/internal/caseapi"

// --- MCP Tool Types ---
// The MCP Go SDK derives each tool's JSON schema from these structs.

// RunCaseInput is the input for the run_case MCP tool.
type RunCaseInput struct {
	Files       []string `json:"files" jsonschema:"paths of the documents to upload (pdf, xlsx, xls, docx, doc; at most 10)"`
	ClientName  string   `json:"clientName,omitempty" jsonschema:"client the case is for"`
	BrokerName  string   `json:"brokerName,omitempty" jsonschema:"submitting broker"`
	BrokerEmail string   `json:"brokerEmail,omitempty" jsonschema:"submitting broker's email"`
	CarrierName string   `json:"carrierName,omitempty" jsonschema:"target carrier"`
	Notes       string   `json:"notes,omitempty" jsonschema:"free-form notes stored on the case"`
}

// RunCaseOutput is the result of the run_case and resume_case MCP tools.
type RunCaseOutput struct {
	CaseID  string                    `json:"caseId,omitempty"`
	Status  string                    `json:"status,omitempty"`
	Result  string                    `json:"result"` // "completed", "blocked" or "failed"
	Stage   string                    `json:"stage,omitempty"`
	Message string                    `json:"message,omitempty"`
	Issues  []caseapi.ValidationIssue `json:"issues,omitempty"`
}

// ResumeCaseInput is the input for the resume_case MCP tool.
type ResumeCaseInput struct {
	CaseID string `json:"caseId" jsonschema:"id of a case in error status"`
}

// GetCaseInput is the input for the get_case MCP tool.
type GetCaseInput struct {
	CaseID string `json:"caseId" jsonschema:"case id"`
}

// CaseStatusInput is the input for the case_status MCP tool.
type CaseStatusInput struct {
	CaseID string `json:"caseId" jsonschema:"case id"`
}

// CaseStatusOutput is the result of the case_status MCP tool.
type CaseStatusOutput struct {
	CaseID       string        `json:"caseId"`
	Status       string        `json:"status"`
	Stages       []StageOutput `json:"stages"`
	NextStage    string        `json:"nextStage,omitempty"`
	ResumeFrom   string        `json:"resumeFrom,omitempty"`
	ErrorContext string        `json:"errorContext,omitempty"`
}

// StageOutput is one stage of a CaseStatusOutput.
type StageOutput struct {
	Stage    string `json:"stage"`
	Name     string `json:"name"`
	Complete bool   `json:"complete"`
}

// RecentCasesInput is the input for the recent_cases MCP tool.
type RecentCasesInput struct{}

// RecentCasesOutput is the result of the recent_cases MCP tool.
type RecentCasesOutput struct {
	Cases []RecentCase `json:"cases"`
}

// RecentCase is a brief overview of one recently touched case.
type RecentCase struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Status    string `json:"status"`
	Errors    int    `json:"errors"`
	Warnings  int    `json:"warnings"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// CaseReportInput is the input for the case_report MCP tool.
type CaseReportInput struct {
	CaseID string `json:"caseId" jsonschema:"case id"`
}

// CaseReportOutput is the result of the case_report MCP tool.
type CaseReportOutput struct {
	CaseID         string  `json:"caseId"`
	Status         string  `json:"status"`
	ApplicantName  string  `json:"applicantName,omitempty"`
	TotalLocations int     `json:"totalLocations"`
	TotalLosses    int     `json:"totalLosses"`
	TotalTIV       float64 `json:"totalTiv"`
	Completeness   float64 `json:"completeness"`
	IsValid        bool    `json:"isValid"`
	Errors         int     `json:"errors"`
	Warnings       int     `json:"warnings"`
}

// CaseStatisticsInput is the input for the case_statistics MCP tool.
type CaseStatisticsInput struct{}

// CaseStatisticsOutput is the result of the case_statistics MCP tool.
type CaseStatisticsOutput struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	Timestamp string         `json:"timestamp,omitempty"`
}
