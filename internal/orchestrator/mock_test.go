package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/state"
)

// spyClient implements caseapi.Client. Each method records its name and
// delegates to the matching function field; an unset field fails the call.
type spyClient struct {
	mu    sync.Mutex
	calls []string

	createCase func(ctx context.Context, req caseapi.CreateRequest) (*caseapi.CreateResponse, error)
	getCase    func(ctx context.Context, id string) (*caseapi.Case, error)
	upload     func(ctx context.Context, id string, files []caseapi.File, onProgress caseapi.ProgressFunc) (*caseapi.UploadResult, error)
	extract    func(ctx context.Context, id string) (*caseapi.ExtractResult, error)
	validate   func(ctx context.Context, id string, req caseapi.ValidateRequest) (*caseapi.ValidationResult, error)
	generate   func(ctx context.Context, id string, req caseapi.GenerateRequest) (*caseapi.GenerateResult, error)
}

var _ caseapi.Client = (*spyClient)(nil)

func (s *spyClient) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

// Calls returns the recorded method names in call order.
func (s *spyClient) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyClient) count(op string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func unexpected(op string) error {
	return fmt.Errorf("unexpected call: %s", op)
}

func (s *spyClient) CreateCase(ctx context.Context, req caseapi.CreateRequest) (*caseapi.CreateResponse, error) {
	s.record("create")
	if s.createCase == nil {
		return nil, unexpected("create")
	}
	return s.createCase(ctx, req)
}

func (s *spyClient) GetCase(ctx context.Context, id string) (*caseapi.Case, error) {
	s.record("get")
	if s.getCase == nil {
		return nil, unexpected("get")
	}
	return s.getCase(ctx, id)
}

func (s *spyClient) UpdateCase(context.Context, string, map[string]any) (*caseapi.Case, error) {
	s.record("update")
	return nil, unexpected("update")
}

func (s *spyClient) DeleteCase(context.Context, string) error {
	s.record("delete")
	return unexpected("delete")
}

func (s *spyClient) Upload(ctx context.Context, id string, files []caseapi.File, onProgress caseapi.ProgressFunc) (*caseapi.UploadResult, error) {
	s.record("upload")
	if s.upload == nil {
		return nil, unexpected("upload")
	}
	return s.upload(ctx, id, files, onProgress)
}

func (s *spyClient) Extract(ctx context.Context, id string) (*caseapi.ExtractResult, error) {
	s.record("extract")
	if s.extract == nil {
		return nil, unexpected("extract")
	}
	return s.extract(ctx, id)
}

func (s *spyClient) Validate(ctx context.Context, id string, req caseapi.ValidateRequest) (*caseapi.ValidationResult, error) {
	s.record("validate")
	if s.validate == nil {
		return nil, unexpected("validate")
	}
	return s.validate(ctx, id, req)
}

func (s *spyClient) Generate(ctx context.Context, id string, req caseapi.GenerateRequest) (*caseapi.GenerateResult, error) {
	s.record("generate")
	if s.generate == nil {
		return nil, unexpected("generate")
	}
	return s.generate(ctx, id, req)
}

func (s *spyClient) ListCases(context.Context, caseapi.ListOptions) (*caseapi.ListResponse, error) {
	s.record("list")
	return nil, unexpected("list")
}

func (s *spyClient) Download(context.Context, string) (*caseapi.DownloadPackage, error) {
	s.record("download")
	return nil, unexpected("download")
}

func (s *spyClient) Report(context.Context, string) (*caseapi.CaseReport, error) {
	s.record("report")
	return nil, unexpected("report")
}

func (s *spyClient) Statistics(context.Context) (*caseapi.Statistics, error) {
	s.record("statistics")
	return nil, unexpected("statistics")
}

// caseQueue serves GetCase from a per-id script. Each fetch pops the next
// case; the last one repeats.
type caseQueue struct {
	mu      sync.Mutex
	scripts map[string][]*caseapi.Case
}

func newCaseQueue() *caseQueue {
	return &caseQueue{scripts: make(map[string][]*caseapi.Case)}
}

func (q *caseQueue) add(cases ...*caseapi.Case) *caseQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range cases {
		q.scripts[c.ID] = append(q.scripts[c.ID], c)
	}
	return q
}

func (q *caseQueue) get(_ context.Context, id string) (*caseapi.Case, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	script := q.scripts[id]
	if len(script) == 0 {
		return nil, &caseapi.TransportError{Op: "get", StatusCode: 404, Message: "not found"}
	}
	c := script[0]
	if len(script) > 1 {
		q.scripts[id] = script[1:]
	}
	return c.Clone(), nil
}

// fakeClock advances instantly on every After call.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// advance moves the clock without counting a wait, as a slow fetch would.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) waited() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func (c *fakeClock) Waits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

// --- Case fixtures ---

var fixedTime = time.Date(2025, 10, 14, 11, 56, 0, 0, time.UTC)

func withStatus(id string, st caseapi.Status) *caseapi.Case {
	return &caseapi.Case{ID: id, Status: st, CreatedAt: fixedTime, UpdatedAt: fixedTime}
}

func uploadedCase(id string, st caseapi.Status) *caseapi.Case {
	c := withStatus(id, st)
	c.UploadedFiles = []caseapi.FileDescriptor{{Filename: "f1.pdf"}, {Filename: "f2.xlsx"}}
	return c
}

func extractedCase(id string, st caseapi.Status) *caseapi.Case {
	c := uploadedCase(id, st)
	ts := fixedTime.Add(time.Minute)
	c.ExtractedAt = &ts
	return c
}

func twoFiles() []caseapi.File {
	return []caseapi.File{
		{Name: "acord125.pdf", Reader: strings.NewReader("pdf")},
		{Name: "sov.xlsx", Reader: strings.NewReader("xlsx")},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestPipeline(client caseapi.Client, store *state.Store, clock Clock) *Pipeline {
	return NewPipeline(client, store,
		WithConfig(Config{PollInterval: time.Second, PollTimeout: 5 * time.Second}),
		WithLogger(quietLogger()),
		WithPipelineClock(clock),
	)
}

func okProgressUpload(_ context.Context, _ string, files []caseapi.File, onProgress caseapi.ProgressFunc) (*caseapi.UploadResult, error) {
	for _, pct := range []int{0, 50, 100} {
		if onProgress != nil {
			onProgress(pct)
		}
	}
	return &caseapi.UploadResult{SuccessfulUploads: len(files)}, nil
}

func okCreate(id string) func(context.Context, caseapi.CreateRequest) (*caseapi.CreateResponse, error) {
	return func(context.Context, caseapi.CreateRequest) (*caseapi.CreateResponse, error) {
		return &caseapi.CreateResponse{CaseID: id, Status: caseapi.StatusDraft, CreatedAt: fixedTime}, nil
	}
}

func okExtract(context.Context, string) (*caseapi.ExtractResult, error) {
	return &caseapi.ExtractResult{Status: caseapi.StatusExtracting}, nil
}

func okValidate(context.Context, string, caseapi.ValidateRequest) (*caseapi.ValidationResult, error) {
	return &caseapi.ValidationResult{IsValid: true, CanProceedToGeneration: true}, nil
}

func okGenerate(context.Context, string, caseapi.GenerateRequest) (*caseapi.GenerateResult, error) {
	return &caseapi.GenerateResult{SuccessfulForms: 2}, nil
}
