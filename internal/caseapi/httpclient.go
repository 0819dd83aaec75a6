package caseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// DefaultRequestTimeout bounds every call unless overridden.
const DefaultRequestTimeout = 120 * time.Second

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// HTTPClient implements Client over the service's JSON/HTTP API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *HTTPClient) {
		c.log = l
	}
}

// NewHTTPClient creates a client rooted at baseURL, e.g. "http://host/api".
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		log: discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateCase creates a case via POST /cases.
func (c *HTTPClient) CreateCase(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	var resp CreateResponse
	if err := c.doJSON(ctx, "create", http.MethodPost, "/cases", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID() == "" {
		return nil, fmt.Errorf("caseapi: create: response carries no case id")
	}
	return &resp, nil
}

// GetCase fetches a case via GET /cases/{id}.
func (c *HTTPClient) GetCase(ctx context.Context, id string) (*Case, error) {
	var cs Case
	if err := c.doJSON(ctx, "get", http.MethodGet, casePath(id), nil, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// UpdateCase applies partial edits via PATCH /cases/{id}.
func (c *HTTPClient) UpdateCase(ctx context.Context, id string, fields map[string]any) (*Case, error) {
	var body []byte
	if err := c.doJSON(ctx, "update", http.MethodPatch, casePath(id), fields, &rawBody{&body}); err != nil {
		return nil, err
	}
	cs, err := decodeUpdatedCase(body)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// DeleteCase deletes a case via DELETE /cases/{id}.
func (c *HTTPClient) DeleteCase(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete", http.MethodDelete, casePath(id), nil, nil)
}

// Upload sends files as a multipart batch via POST /cases/{id}/upload. The
// body is encoded up front so progress can be reported against its length.
func (c *HTTPClient) Upload(ctx context.Context, id string, files []File, onProgress ProgressFunc) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("caseapi: upload: create part %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("caseapi: upload: read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("caseapi: upload: close multipart: %w", err)
	}

	total := int64(buf.Len())
	body := newProgressReader(&buf, total, onProgress)

	var result UploadResult
	err := c.do(ctx, "upload", http.MethodPost, casePath(id)+"/upload", body, total, mw.FormDataContentType(), &result)
	if err != nil {
		return nil, err
	}
	body.finish()
	return &result, nil
}

// Extract triggers extraction via POST /cases/{id}/extract.
func (c *HTTPClient) Extract(ctx context.Context, id string) (*ExtractResult, error) {
	var result ExtractResult
	if err := c.doJSON(ctx, "extract", http.MethodPost, casePath(id)+"/extract", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate triggers validation via POST /cases/{id}/validate.
func (c *HTTPClient) Validate(ctx context.Context, id string, req ValidateRequest) (*ValidationResult, error) {
	var result ValidationResult
	if err := c.doJSON(ctx, "validate", http.MethodPost, casePath(id)+"/validate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate triggers generation via POST /cases/{id}/generate.
func (c *HTTPClient) Generate(ctx context.Context, id string, req GenerateRequest) (*GenerateResult, error) {
	var result GenerateResult
	if err := c.doJSON(ctx, "generate", http.MethodPost, casePath(id)+"/generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListCases lists case summaries via GET /cases.
func (c *HTTPClient) ListCases(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/cases"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var doc listDoc
	if err := c.doJSON(ctx, "list", http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc.response(), nil
}

// Download fetches the generated package via GET /cases/{id}/download.
func (c *HTTPClient) Download(ctx context.Context, id string) (*DownloadPackage, error) {
	var env struct {
		Package *DownloadPackage `json:"package"`
	}
	if err := c.doJSON(ctx, "download", http.MethodGet, casePath(id)+"/download", nil, &env); err != nil {
		return nil, err
	}
	if env.Package == nil {
		return nil, fmt.Errorf("caseapi: download: response carries no package")
	}
	return env.Package, nil
}

// Report fetches the case digest via GET /cases/{id}/summary.
func (c *HTTPClient) Report(ctx context.Context, id string) (*CaseReport, error) {
	var report CaseReport
	if err := c.doJSON(ctx, "report", http.MethodGet, casePath(id)+"/summary", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Statistics fetches case counts via GET /cases/statistics.
func (c *HTTPClient) Statistics(ctx context.Context) (*Statistics, error) {
	var doc statisticsDoc
	if err := c.doJSON(ctx, "statistics", http.MethodGet, "/cases/statistics", nil, &doc); err != nil {
		return nil, err
	}
	return doc.statistics(), nil
}

func casePath(id string) string {
	return "/cases/" + url.PathEscape(id)
}

// rawBody captures a response body verbatim instead of decoding it.
type rawBody struct {
	dst *[]byte
}

// decodeUpdatedCase accepts either a bare case document or one wrapped as
// {"message": ..., "submission": {...}}.
func decodeUpdatedCase(body []byte) (*Case, error) {
	var env struct {
		Submission *Case `json:"submission"`
		Case       *Case `json:"case"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Case != nil {
			return env.Case, nil
		}
		if env.Submission != nil {
			return env.Submission, nil
		}
	}
	var cs Case
	if err := json.Unmarshal(body, &cs); err != nil {
		return nil, fmt.Errorf("caseapi: decode update: %w", err)
	}
	return &cs, nil
}

// doJSON marshals payload (if non-nil) as the request body and decodes the
// response into out.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, payload any, out any) error {
	var (
		body   io.Reader
		length int64
		ctype  string
	)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("caseapi: %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
		length = int64(len(data))
		ctype = "application/json"
	}
	return c.do(ctx, op, method, path, body, length, ctype, out)
}

// do performs one HTTP exchange. Network failures and non-2xx responses are
// returned as *TransportError; nothing is retried here.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body io.Reader, length int64, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("caseapi: %s: create request: %w", op, err)
	}
	if body != nil {
		req.ContentLength = length
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	log := c.log.WithFields(logrus.Fields{
		"op":         op,
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Debug("case service request failed")
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("case service request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &TransportError{Op: op, StatusCode: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
			te.Message = env.Message
		} else {
			te.Message = strings.TrimSpace(string(respBody))
		}
		return te
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *rawBody:
		*dst.dst = respBody
		return nil
	default:
		if len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(unwrapResult(respBody), out); err != nil {
			return fmt.Errorf("caseapi: %s: decode response: %w", op, err)
		}
		return nil
	}
}
