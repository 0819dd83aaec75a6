//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

const naiveLayout = "2006-01-02T15:04:05.000000"

// serverCase is the service-side document, rendered with naive timestamps the
// way the service emits them.
type serverCase struct {
	ID                 string           `json:"id"`
	Status             string           `json:"status"`
	ClientName         string           `json:"client_name,omitempty"`
	UploadedFiles      []map[string]any `json:"uploaded_files"`
	GeneratedFiles     []map[string]any `json:"generated_files"`
	CreatedAt          string           `json:"created_at"`
	UpdatedAt          string           `json:"updated_at"`
	ExtractedAt        *string          `json:"extracted_at"`
	ValidatedAt        *string          `json:"validated_at"`
	GeneratedAt        *string          `json:"generated_at"`
	ValidationErrors   []map[string]any `json:"validation_errors"`
	ValidationWarnings []map[string]any `json:"validation_warnings"`
	ExtractionMetadata map[string]any   `json:"extraction_metadata,omitempty"`

	// settle runs on the fetch that finishes an asynchronous stage.
	settle      func(*serverCase)
	settleAfter int
}

// fakeService is an in-memory stand-in for the remote case service.
type fakeService struct {
	t *testing.T

	mu    sync.Mutex
	cases map[string]*serverCase
	order []string
	calls map[string]int

	// failExtractions makes the next n extractions end in error.
	failExtractions int
	// blockValidation makes validation disallow generation.
	blockValidation bool
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	fs := &fakeService{
		t:     t,
		cases: make(map[string]*serverCase),
		calls: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/cases", fs.create)
	mux.HandleFunc("GET /api/cases", fs.list)
	mux.HandleFunc("GET /api/cases/{id}", fs.get)
	mux.HandleFunc("DELETE /api/cases/{id}", fs.delete)
	mux.HandleFunc("POST /api/cases/{id}/upload", fs.upload)
	mux.HandleFunc("POST /api/cases/{id}/extract", fs.extract)
	mux.HandleFunc("POST /api/cases/{id}/validate", fs.validate)
	mux.HandleFunc("POST /api/cases/{id}/generate", fs.generate)
	mux.HandleFunc("GET /api/cases/{id}/download", fs.download)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeService) count(op string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.calls[op]
}

func now() string {
	return time.Now().UTC().Format(naiveLayout)
}

func nowPtr() *string {
	s := now()
	return &s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":       "NotFound",
		"message":     "Submission not found",
		"status_code": 404,
	})
}

// lookup returns the case for the request, recording op. Callers hold mu.
func (fs *fakeService) lookup(w http.ResponseWriter, r *http.Request, op string) *serverCase {
	fs.calls[op]++
	c, ok := fs.cases[r.PathValue("id")]
	if !ok {
		notFound(w)
		return nil
	}
	return c
}

func (fs *fakeService) create(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.calls["create"]++

	var req struct {
		ClientName string `json:"client_name"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	c := &serverCase{
		ID:                 uuid.NewString(),
		Status:             "draft",
		ClientName:         req.ClientName,
		UploadedFiles:      []map[string]any{},
		GeneratedFiles:     []map[string]any{},
		CreatedAt:          now(),
		UpdatedAt:          now(),
		ValidationErrors:   []map[string]any{},
		ValidationWarnings: []map[string]any{},
	}
	fs.cases[c.ID] = c
	fs.order = append(fs.order, c.ID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"submission_id": c.ID,
		"status":        c.Status,
		"created_at":    c.CreatedAt,
	})
}

func (fs *fakeService) get(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := fs.lookup(w, r, "get")
	if c == nil {
		return
	}
	if c.settle != nil {
		if c.settleAfter <= 0 {
			c.settle(c)
			c.settle = nil
			c.UpdatedAt = now()
		} else {
			c.settleAfter--
		}
	}
	writeJSON(w, http.StatusOK, c)
}

func (fs *fakeService) delete(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if c := fs.lookup(w, r, "delete"); c != nil {
		delete(fs.cases, c.ID)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Submission deleted"})
	}
}

func (fs *fakeService) upload(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := fs.lookup(w, r, "upload")
	if c == nil {
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	var uploaded []map[string]any
	for _, fh := range r.MultipartForm.File["files"] {
		fd := map[string]any{
			"filename":          uuid.NewString() + "_" + fh.Filename,
			"original_filename": fh.Filename,
			"size_bytes":        fh.Size,
			"uploaded_at":       now(),
		}
		uploaded = append(uploaded, fd)
	}
	c.UploadedFiles = append(c.UploadedFiles, uploaded...)
	c.Status = "uploaded"
	c.UpdatedAt = now()

	writeJSON(w, http.StatusOK, map[string]any{
		"message":            fmt.Sprintf("Uploaded %d files", len(uploaded)),
		"uploaded_files":     uploaded,
		"successful_uploads": len(uploaded),
		"failed_uploads":     0,
		"total_files":        len(uploaded),
	})
}

func (fs *fakeService) extract(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := fs.lookup(w, r, "extract")
	if c == nil {
		return
	}

	fail := fs.failExtractions > 0
	if fail {
		fs.failExtractions--
	}
	c.Status = "extracting"
	c.settleAfter = 1
	c.settle = func(c *serverCase) {
		if fail {
			c.Status = "error"
			c.ExtractionMetadata = map[string]any{"error": "OCR failed on page 3"}
			return
		}
		c.Status = "extracted"
		c.ExtractedAt = nowPtr()
		c.ExtractionMetadata = map[string]any{"pages": 4}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Extraction started",
		"result":  map[string]any{"status": "extracting"},
	})
}

func (fs *fakeService) validate(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := fs.lookup(w, r, "validate")
	if c == nil {
		return
	}

	var errs []map[string]any
	if fs.blockValidation {
		errs = append(errs, map[string]any{
			"field_path": "applicant.fein",
			"severity":   "error",
			"message":    "FEIN is required",
			"blocking":   true,
		})
	}
	c.ValidationErrors = append([]map[string]any{}, errs...)
	c.Status = "validated"
	c.ValidatedAt = nowPtr()
	c.UpdatedAt = now()

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Validation complete",
		"result": map[string]any{
			"is_valid":                  !fs.blockValidation,
			"can_proceed_to_generation": !fs.blockValidation,
			"total_errors":              len(errs),
			"blocking_errors":           len(errs),
			"errors":                    errs,
		},
	})
}

func (fs *fakeService) generate(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := fs.lookup(w, r, "generate")
	if c == nil {
		return
	}

	c.Status = "generating"
	c.settleAfter = 1
	c.settle = func(c *serverCase) {
		c.Status = "completed"
		c.GeneratedAt = nowPtr()
		c.GeneratedFiles = []map[string]any{
			{"filename": "ACORD_125.pdf", "form_type": "125", "content_type": "application/pdf"},
			{"filename": "ACORD_140.pdf", "form_type": "140", "content_type": "application/pdf"},
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Generation started",
		"result":  map[string]any{"successful_forms": 2, "failed_forms": 0},
	})
}

func (fs *fakeService) list(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.calls["list"]++

	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	out := []map[string]any{}
	for i := len(fs.order) - 1; i >= 0 && len(out) < limit; i-- {
		c, ok := fs.cases[fs.order[i]]
		if !ok || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, map[string]any{
			"id":                      c.ID,
			"status":                  c.Status,
			"client_name":             c.ClientName,
			"validation_errors_count": len(c.ValidationErrors),
			"created_at":              c.CreatedAt,
			"updated_at":              c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": out, "total": len(out), "limit": limit})
}

func (fs *fakeService) download(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c := fs.lookup(w, r, "download")
	if c == nil {
		return
	}
	if c.Status != "completed" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Submission is not completed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"package": map[string]any{
			"submission_id": c.ID,
			"status":        c.Status,
			"total_files":   len(c.GeneratedFiles),
			"files":         c.GeneratedFiles,
			"completed_at":  c.GeneratedAt,
		},
	})
}
