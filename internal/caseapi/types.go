package caseapi

import (
	"encoding/json"
	"io"
	"time"
)

// --- Enums ---

// Status is the lifecycle state of a case as reported by the remote service.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusUploaded   Status = "uploaded"
	StatusExtracting Status = "extracting"
	StatusExtracted  Status = "extracted"
	StatusValidating Status = "validating"
	StatusValidated  Status = "validated"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// pipelineOrder lists the non-error statuses in the order a case moves through
// them. StatusError sits outside the order and is absorbing.
var pipelineOrder = []Status{
	StatusDraft,
	StatusUploaded,
	StatusExtracting,
	StatusExtracted,
	StatusValidating,
	StatusValidated,
	StatusGenerating,
	StatusCompleted,
}

// AllStatuses returns every status in pipeline order followed by StatusError.
func AllStatuses() []Status {
	out := make([]Status, 0, len(pipelineOrder)+1)
	out = append(out, pipelineOrder...)
	return append(out, StatusError)
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	return s == StatusError || s.position() >= 0
}

// IsTerminal returns true for completed and error.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// transient statuses are the "-ing" states a coarse poll may never observe.
func (s Status) transient() bool {
	switch s {
	case StatusExtracting, StatusValidating, StatusGenerating:
		return true
	}
	return false
}

func (s Status) position() int {
	for i, p := range pipelineOrder {
		if p == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether a case may move from one status to another.
//
// Forward moves are allowed only when every status skipped over is transient,
// so uploaded -> extracted is fine (extracting was not observed) but
// draft -> generating is not. Error is reachable from any non-terminal status.
// Leaving error is a retry re-entry and only lands on a stage the retry path
// can run. Completed has no outgoing edges.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == StatusCompleted {
		return false
	}
	if to == StatusError {
		return true
	}
	if from == StatusError {
		return to.position() >= StatusExtracting.position()
	}

	fi, ti := from.position(), to.position()
	if ti <= fi {
		return false
	}
	for _, skipped := range pipelineOrder[fi+1 : ti] {
		if !skipped.transient() {
			return false
		}
	}
	return true
}

// Stage identifies one remote pipeline step.
type Stage string

const (
	StageCreate   Stage = "create"
	StageUpload   Stage = "upload"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageGenerate Stage = "generate"
)

func (s Stage) String() string {
	return string(s)
}

// Severity is the level of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// --- Core Types ---

// FileDescriptor describes a file stored by the remote service.
type FileDescriptor struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename,omitempty"`
	StoragePath      string `json:"storage_path,omitempty"`
	URL              string `json:"url,omitempty"`
	SizeBytes        int64  `json:"size_bytes,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
	UploadedAt       string `json:"uploaded_at,omitempty"`
	FormType         string `json:"form_type,omitempty"`
}

// ValidationIssue is a single structured validation finding.
type ValidationIssue struct {
	FieldPath    string   `json:"field_path"`
	Severity     Severity `json:"severity"`
	Category     string   `json:"category,omitempty"`
	Message      string   `json:"message"`
	Blocking     bool     `json:"blocking"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	RuleID       string   `json:"rule_id,omitempty"`
}

// Applicant carries the subset of the insured business the client reads.
type Applicant struct {
	BusinessName string `json:"business_name"`
}

// Case is the aggregate managed by the orchestrator. Only Status and the
// artifact fields (UploadedFiles and the stage timestamps) drive control flow;
// everything else is payload.
type Case struct {
	ID                 string            `json:"id"`
	Status             Status            `json:"status"`
	ClientName         string            `json:"client_name,omitempty"`
	Applicant          *Applicant        `json:"applicant,omitempty"`
	Locations          []json.RawMessage `json:"locations,omitempty"`
	LossHistory        []json.RawMessage `json:"loss_history,omitempty"`
	UploadedFiles      []FileDescriptor  `json:"uploaded_files"`
	GeneratedFiles     []FileDescriptor  `json:"generated_files,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	ExtractedAt        *time.Time        `json:"extracted_at,omitempty"`
	ValidatedAt        *time.Time        `json:"validated_at,omitempty"`
	GeneratedAt        *time.Time        `json:"generated_at,omitempty"`
	ValidationErrors   []ValidationIssue `json:"validation_errors"`
	ValidationWarnings []ValidationIssue `json:"validation_warnings"`
	IsValid            bool              `json:"is_valid"`
	ExtractionMetadata map[string]any    `json:"extraction_metadata,omitempty"`
	BrokerName         string            `json:"broker_name,omitempty"`
	BrokerEmail        string            `json:"broker_email,omitempty"`
	CarrierName        string            `json:"carrier_name,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
}

// HasUploads reports whether the upload stage has completed at least once.
func (c *Case) HasUploads() bool {
	return len(c.UploadedFiles) > 0
}

// ErrorContext returns the failure text the server attached to the case, or
// an empty string if it attached none.
func (c *Case) ErrorContext() string {
	for _, m := range []map[string]any{c.Metadata, c.ExtractionMetadata} {
		if s, ok := m["error"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Clone returns a deep copy of c. Raw payload slices share no backing arrays
// with the original.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	dst := *c
	if c.Applicant != nil {
		a := *c.Applicant
		dst.Applicant = &a
	}
	dst.Locations = cloneRaw(c.Locations)
	dst.LossHistory = cloneRaw(c.LossHistory)
	if c.UploadedFiles != nil {
		dst.UploadedFiles = append([]FileDescriptor(nil), c.UploadedFiles...)
	}
	if c.GeneratedFiles != nil {
		dst.GeneratedFiles = append([]FileDescriptor(nil), c.GeneratedFiles...)
	}
	dst.ExtractedAt = cloneTime(c.ExtractedAt)
	dst.ValidatedAt = cloneTime(c.ValidatedAt)
	dst.GeneratedAt = cloneTime(c.GeneratedAt)
	if c.ValidationErrors != nil {
		dst.ValidationErrors = append([]ValidationIssue(nil), c.ValidationErrors...)
	}
	if c.ValidationWarnings != nil {
		dst.ValidationWarnings = append([]ValidationIssue(nil), c.ValidationWarnings...)
	}
	dst.ExtractionMetadata = cloneMap(c.ExtractionMetadata)
	dst.Metadata = cloneMap(c.Metadata)
	return &dst
}

func cloneRaw(src []json.RawMessage) []json.RawMessage {
	if src == nil {
		return nil
	}
	dst := make([]json.RawMessage, len(src))
	for i, r := range src {
		dst[i] = append(json.RawMessage(nil), r...)
	}
	return dst
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// cloneMap copies the top level only; nested values are treated as immutable.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CaseSummary is the list/recency projection of a case. It is never used for
// orchestration decisions.
type CaseSummary struct {
	ID            string    `json:"id" yaml:"id"`
	Status        Status    `json:"status" yaml:"status"`
	Label         string    `json:"label" yaml:"label"`
	LocationCount int       `json:"location_count" yaml:"location_count"`
	ErrorCount    int       `json:"error_count" yaml:"error_count"`
	WarningCount  int       `json:"warning_count" yaml:"warning_count"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// Summarize projects a case into its summary.
func Summarize(c *Case) CaseSummary {
	return CaseSummary{
		ID:            c.ID,
		Status:        c.Status,
		Label:         label(c.ClientName, c.Applicant, c.ID),
		LocationCount: len(c.Locations),
		ErrorCount:    len(c.ValidationErrors),
		WarningCount:  len(c.ValidationWarnings),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func label(clientName string, applicant *Applicant, id string) string {
	if clientName != "" {
		return clientName
	}
	if applicant != nil && applicant.BusinessName != "" {
		return applicant.BusinessName
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- Request / Response Types ---

// CreateRequest is the optional metadata sent when creating a case.
type CreateRequest struct {
	ClientName  string `json:"client_name,omitempty"`
	BrokerName  string `json:"broker_name,omitempty"`
	BrokerEmail string `json:"broker_email,omitempty"`
	CarrierName string `json:"carrier_name,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// CreateResponse is returned by the create call. The service names the id
// either case_id or submission_id.
type CreateResponse struct {
	CaseID       string    `json:"case_id"`
	SubmissionID string    `json:"submission_id"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// ID returns whichever identifier the service populated.
func (r *CreateResponse) ID() string {
	if r.CaseID != "" {
		return r.CaseID
	}
	return r.SubmissionID
}

// File is one item of an upload batch.
type File struct {
	Name   string
	Reader io.Reader
}

// UploadError reports a file the service refused.
type UploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResult is the response to an upload batch.
type UploadResult struct {
	UploadedFiles     []FileDescriptor `json:"uploaded_files"`
	SuccessfulUploads int              `json:"successful_uploads"`
	FailedUploads     int              `json:"failed_uploads"`
	TotalFiles        int              `json:"total_files,omitempty"`
	Errors            []UploadError    `json:"errors,omitempty"`
}

// ExtractResult is the response to an extraction trigger. The orchestrator
// does not branch on it.
type ExtractResult struct {
	Status     Status         `json:"status,omitempty"`
	Confidence *float64       `json:"extraction_confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ValidateRequest carries validation options.
type ValidateRequest struct {
	StrictMode bool `json:"strict_mode"`
}

// ValidationResult is the response to a validation trigger.
// CanProceedToGeneration gates the generate stage.
type ValidationResult struct {
	ValidationID           string            `json:"validation_id,omitempty"`
	IsValid                bool              `json:"is_valid"`
	IsComplete             bool              `json:"is_complete"`
	CompletenessPercentage int               `json:"completeness_percentage"`
	CanProceedToGeneration bool              `json:"can_proceed_to_generation"`
	TotalErrors            int               `json:"total_errors"`
	TotalWarnings          int               `json:"total_warnings"`
	BlockingErrors         int               `json:"blocking_errors"`
	Errors                 []ValidationIssue `json:"errors,omitempty"`
	Warnings               []ValidationIssue `json:"warnings,omitempty"`
}

// Issues returns errors followed by warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	out := make([]ValidationIssue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// GenerateRequest carries generation options.
type GenerateRequest struct {
	Forms       []string `json:"forms,omitempty"`
	CarrierName string   `json:"carrier_name,omitempty"`
}

// GenerateResult is the response to a generation trigger.
type GenerateResult struct {
	SuccessfulForms int              `json:"successful_forms"`
	FailedForms     int              `json:"failed_forms"`
	GeneratedFiles  []FileDescriptor `json:"generated_files,omitempty"`
}

// ListOptions filters and pages the case list.
type ListOptions struct {
	Status Status
	Limit  int
	Offset int
}

// ListResponse is the paginated case list.
type ListResponse struct {
	Cases []CaseSummary
	Total int
	Limit int
}

// DownloadPackage lists the generated files for a completed case.
type DownloadPackage struct {
	CaseID      string           `json:"submission_id"`
	Status      Status           `json:"status"`
	TotalFiles  int              `json:"total_files"`
	Files       []FileDescriptor `json:"files"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Statistics counts cases on the service. ByStatus omits statuses with no
// cases.
type Statistics struct {
	Total     int            `json:"total"`
	ByStatus  map[Status]int `json:"by_status"`
	Timestamp time.Time      `json:"timestamp"`
}

// CaseReport is the service's computed digest of one case: totals that are
// derived server-side from the extracted payload.
type CaseReport struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	ApplicantName  string    `json:"applicant_name"`
	TotalLocations int       `json:"total_locations"`
	TotalLosses    int       `json:"total_losses"`
	TotalTIV       float64   `json:"total_tiv"`
	Completeness   float64   `json:"completeness"`
	IsValid        bool      `json:"is_valid"`
	ErrorCount     int       `json:"validation_errors_count"`
	WarningCount   int       `json:"validation_warnings_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Summary projects the report into a recency-list summary.
func (r *CaseReport) Summary() CaseSummary {
	var applicant *Applicant
	if r.ApplicantName != "" {
		applicant = &Applicant{BusinessName: r.ApplicantName}
	}
	return CaseSummary{
		ID:            r.ID,
		Status:        r.Status,
		Label:         label("", applicant, r.ID),
		LocationCount: r.TotalLocations,
		ErrorCount:    r.ErrorCount,
		WarningCount:  r.WarningCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
