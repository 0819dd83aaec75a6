package caseapi

import "context"

// ProgressFunc receives the overall transfer percentage (0-100) of an upload.
type ProgressFunc func(percent int)

// Client is the interface for the remote case service. Implementations map
// responses onto typed values and carry no orchestration logic.
type Client interface {
	// CreateCase creates a case in draft status.
	CreateCase(ctx context.Context, req CreateRequest) (*CreateResponse, error)

	// GetCase fetches the full case document.
	GetCase(ctx context.Context, id string) (*Case, error)

	// UpdateCase applies partial field edits. Edits never change status.
	UpdateCase(ctx context.Context, id string, fields map[string]any) (*Case, error)

	// DeleteCase removes a case on the server.
	DeleteCase(ctx context.Context, id string) error

	// Upload sends a batch of files as one multipart request. onProgress may be nil.
	Upload(ctx context.Context, id string, files []File, onProgress ProgressFunc) (*UploadResult, error)

	// Extract triggers extraction. Completion is observed by polling.
	Extract(ctx context.Context, id string) (*ExtractResult, error)

	// Validate triggers validation and returns the gate for generation.
	Validate(ctx context.Context, id string, req ValidateRequest) (*ValidationResult, error)

	// Generate triggers form generation. Completion is observed by polling.
	Generate(ctx context.Context, id string, req GenerateRequest) (*GenerateResult, error)

	// ListCases returns case summaries, used to warm the recency list.
	ListCases(ctx context.Context, opts ListOptions) (*ListResponse, error)

	// Download returns the generated file package of a case.
	Download(ctx context.Context, id string) (*DownloadPackage, error)

	// Report returns the service's computed digest of a case.
	Report(ctx context.Context, id string) (*CaseReport, error)

	// Statistics returns case counts by status.
	Statistics(ctx context.Context) (*Statistics, error)
}
