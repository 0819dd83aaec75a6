package export

import (
	"time"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/status"
)

// CaseExport is the top-level JSON export structure.
type CaseExport struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`
	Status       string        `json:"status"`
	ExportedAt   string        `json:"exportedAt"`
	NextStage    string        `json:"nextStage,omitempty"`
	ErrorContext string        `json:"errorContext,omitempty"`
	Stages       []StageExport `json:"stages"`
	Uploads      []FileExport  `json:"uploads,omitempty"`
	Generated    []FileExport  `json:"generated,omitempty"`
	Issues       []IssueExport `json:"issues,omitempty"`
}

// StageExport describes one pipeline stage.
type StageExport struct {
	Stage       string `json:"stage"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// FileExport describes one stored file.
type FileExport struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
	URL         string `json:"url,omitempty"`
}

// IssueExport describes a single validation finding.
type IssueExport struct {
	FieldPath string `json:"fieldPath"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Blocking  bool   `json:"blocking,omitempty"`
	Fix       string `json:"suggestedFix,omitempty"`
}

// ExportCase builds a CaseExport from a fetched case.
func ExportCase(c *caseapi.Case) *CaseExport {
	cs := status.Describe(c)

	export := &CaseExport{
		ID:           c.ID,
		Label:        caseapi.Summarize(c).Label,
		Status:       string(c.Status),
		ExportedAt:   time.Now().UTC().Format(time.RFC3339),
		NextStage:    string(cs.NextStage),
		ErrorContext: cs.ErrorContext,
	}

	for _, si := range cs.Stages {
		s := "pending"
		switch {
		case si.Complete:
			s = "complete"
		case cs.Failed && si.Stage == cs.NextStage:
			s = "failed"
		}
		se := StageExport{
			Stage:  string(si.Stage),
			Name:   si.Name,
			Status: s,
		}
		if si.CompletedAt != nil {
			se.CompletedAt = si.CompletedAt.UTC().Format(time.RFC3339)
		}
		export.Stages = append(export.Stages, se)
	}

	export.Uploads = exportFiles(c.UploadedFiles)
	export.Generated = exportFiles(c.GeneratedFiles)

	for _, group := range [][]caseapi.ValidationIssue{c.ValidationErrors, c.ValidationWarnings} {
		for _, is := range group {
			export.Issues = append(export.Issues, IssueExport{
				FieldPath: is.FieldPath,
				Severity:  string(is.Severity),
				Message:   is.Message,
				Blocking:  is.Blocking,
				Fix:       is.SuggestedFix,
			})
		}
	}

	return export
}

func exportFiles(files []caseapi.FileDescriptor) []FileExport {
	var out []FileExport
	for _, f := range files {
		name := f.OriginalFilename
		if name == "" {
			name = f.Filename
		}
		out = append(out, FileExport{
			Filename:    name,
			ContentType: f.ContentType,
			SizeBytes:   f.SizeBytes,
			URL:         f.URL,
		})
	}
	return out
}
