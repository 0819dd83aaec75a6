package orchestrator

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/dusk-indust/caseflow/internal/caseapi"
	"github.com/dusk-indust/caseflow/internal/state"
	"github.com/dusk-indust/caseflow/internal/status"
)

// Compile-time interface check.
var _ Orchestrator = (*Pipeline)(nil)

// Pipeline implements Orchestrator. It sequences the remote stage calls for
// one case at a time per Run, waits out asynchronous stages with a Poller and
// commits every fetched case to the Store. Independent Runs may execute
// concurrently on one Pipeline.
type Pipeline struct {
	cfg      Config
	client   caseapi.Client
	store    *state.Store
	poller   *Poller
	progress *ProgressReporter
	log      logrus.FieldLogger
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	cfg   Config
	log   logrus.FieldLogger
	clock Clock
}

// WithConfig sets the run configuration.
func WithConfig(cfg Config) Option {
	return func(o *pipelineOptions) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *pipelineOptions) {
		o.log = l
	}
}

// WithPipelineClock replaces the clock used by the poller.
func WithPipelineClock(c Clock) Option {
	return func(o *pipelineOptions) {
		o.clock = c
	}
}

// NewPipeline creates a Pipeline wired with a Poller and a ProgressReporter.
// A nil store gets a fresh in-memory one.
func NewPipeline(client caseapi.Client, store *state.Store, opts ...Option) *Pipeline {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	o := pipelineOptions{log: discard, clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg.withDefaults()

	if store == nil {
		store = state.New()
	}

	return &Pipeline{
		cfg:    cfg,
		client: client,
		store:  store,
		poller: NewPoller(client,
			WithClock(o.clock),
			WithPollInterval(cfg.PollInterval),
			WithPollTimeout(cfg.PollTimeout),
		),
		progress: NewProgressReporter(),
		log:      o.log,
	}
}

// Store returns the state store the pipeline commits to.
func (p *Pipeline) Store() *state.Store {
	return p.store
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Progress returns a channel that emits progress events.
func (p *Pipeline) Progress() <-chan ProgressEvent {
	return p.progress.Subscribe()
}

// Close shuts down the progress reporter.
func (p *Pipeline) Close() {
	p.progress.Close()
}

// ---------------------------------------------------------------------------
// Orchestrator interface
// ---------------------------------------------------------------------------

// Run creates a case from meta, uploads files and runs extract, validate and
// generate. The first failure aborts the run; nothing is retried. A
// validation result that disallows generation stops the run with
// *ValidationBlockedError before generate is called.
func (p *Pipeline) Run(ctx context.Context, files []caseapi.File, meta caseapi.CreateRequest, opts RunOptions) (*caseapi.Case, error) {
	if err := p.checkBatch(files); err != nil {
		p.store.Fail(err)
		return nil, err
	}

	c, err := p.create(ctx, meta)
	if err != nil {
		return nil, err
	}

	tr := p.newTracker(c.ID, opts.OnStatusChange)
	tr.observe(caseapi.StageCreate, c.Status)

	c, err = p.upload(ctx, c.ID, files, opts.OnUploadProgress, tr)
	if err != nil {
		return nil, err
	}

	return p.runFrom(ctx, c.ID, caseapi.StageExtract, tr)
}

// runFrom executes the stages from first through generation. It is shared by
// Run and the Resumer so both apply the same poll and gate semantics.
func (p *Pipeline) runFrom(ctx context.Context, caseID string, first caseapi.Stage, tr *tracker) (*caseapi.Case, error) {
	stages := status.StagesFrom(first)
	if len(stages) == 0 {
		return nil, fmt.Errorf("orchestrator: cannot run from stage %q", first)
	}

	var (
		c   *caseapi.Case
		err error
	)
	for _, stage := range stages {
		switch stage {
		case caseapi.StageExtract:
			c, err = p.extract(ctx, caseID, tr)
		case caseapi.StageValidate:
			c, err = p.validate(ctx, caseID, tr)
		case caseapi.StageGenerate:
			c, err = p.generate(ctx, caseID, tr)
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

func (p *Pipeline) create(ctx context.Context, meta caseapi.CreateRequest) (c *caseapi.Case, err error) {
	end := p.beginStage(caseapi.StageCreate, "")
	defer func() { end(err) }()

	resp, err := p.client.CreateCase(ctx, meta)
	if err != nil {
		return nil, &StageError{Stage: caseapi.StageCreate, Err: fmt.Errorf("%w: %w", ErrCreationFailed, err)}
	}

	st := resp.Status
	if st == "" {
		st = caseapi.StatusDraft
	}
	c = &caseapi.Case{
		ID:          resp.ID(),
		Status:      st,
		ClientName:  meta.ClientName,
		BrokerName:  meta.BrokerName,
		BrokerEmail: meta.BrokerEmail,
		CarrierName: meta.CarrierName,
		Notes:       meta.Notes,
		CreatedAt:   resp.CreatedAt,
		UpdatedAt:   resp.CreatedAt,
	}
	p.store.Commit(c)
	p.log.WithField("case_id", c.ID).Info("case created")
	return c, nil
}

func (p *Pipeline) upload(ctx context.Context, caseID string, files []caseapi.File, onProgress func(map[int]int), tr *tracker) (c *caseapi.Case, err error) {
	end := p.beginStage(caseapi.StageUpload, caseID)
	defer func() { end(err) }()

	agg := NewUploadAggregator()
	agg.Begin(len(files))
	res, err := p.client.Upload(ctx, caseID, files, func(pct int) {
		snap := agg.Update(pct)
		if onProgress != nil {
			onProgress(snap)
		}
	})
	agg.Finish()
	if err != nil {
		return nil, p.stageErr(caseapi.StageUpload, caseID, err)
	}

	log := p.log.WithFields(logrus.Fields{"case_id": caseID, "stage": caseapi.StageUpload})
	for _, ue := range res.Errors {
		log.WithField("file", ue.Filename).Warn("file rejected: " + ue.Error)
	}

	c, err = p.reload(ctx, caseID, caseapi.StageUpload, tr)
	if err != nil {
		return nil, err
	}
	if !c.HasUploads() {
		return nil, p.stageErr(caseapi.StageUpload, caseID,
			fmt.Errorf("%w (%d of %d failed)", ErrNoFilesAccepted, res.FailedUploads, len(files)))
	}
	return c, nil
}

func (p *Pipeline) extract(ctx context.Context, caseID string, tr *tracker) (c *caseapi.Case, err error) {
	end := p.beginStage(caseapi.StageExtract, caseID)
	defer func() { end(err) }()

	tr.observe(caseapi.StageExtract, caseapi.StatusExtracting)
	if _, err := p.client.Extract(ctx, caseID); err != nil {
		return nil, p.stageErr(caseapi.StageExtract, caseID, err)
	}

	c, err = p.poll(ctx, caseID, caseapi.StageExtract, Targets(caseapi.StatusExtracted, caseapi.StatusError), tr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Pipeline) validate(ctx context.Context, caseID string, tr *tracker) (c *caseapi.Case, err error) {
	end := p.beginStage(caseapi.StageValidate, caseID)
	defer func() { end(err) }()

	res, err := p.client.Validate(ctx, caseID, caseapi.ValidateRequest{StrictMode: p.cfg.StrictValidation})
	if err != nil {
		return nil, p.stageErr(caseapi.StageValidate, caseID, err)
	}

	c, err = p.reload(ctx, caseID, caseapi.StageValidate, tr)
	if err != nil {
		return nil, err
	}
	if c.Status == caseapi.StatusError {
		return nil, p.stageErr(caseapi.StageValidate, caseID, &StageRejectedError{CaseID: caseID, Context: c.ErrorContext()})
	}

	if !res.CanProceedToGeneration {
		issues := res.Issues()
		if len(issues) == 0 {
			issues = append(append(issues, c.ValidationErrors...), c.ValidationWarnings...)
		}
		return nil, p.stageErr(caseapi.StageValidate, caseID, &ValidationBlockedError{
			CaseID: caseID,
			Result: res,
			Issues: issues,
		})
	}
	return c, nil
}

func (p *Pipeline) generate(ctx context.Context, caseID string, tr *tracker) (c *caseapi.Case, err error) {
	end := p.beginStage(caseapi.StageGenerate, caseID)
	defer func() { end(err) }()

	req := caseapi.GenerateRequest{Forms: p.cfg.Forms, CarrierName: p.cfg.CarrierName}
	if _, err := p.client.Generate(ctx, caseID, req); err != nil {
		return nil, p.stageErr(caseapi.StageGenerate, caseID, err)
	}

	c, err = p.poll(ctx, caseID, caseapi.StageGenerate, Targets(caseapi.StatusCompleted, caseapi.StatusError), tr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// beginStage marks the stage in flight and returns the matching end func,
// which clears the flag and records a failure in the store.
func (p *Pipeline) beginStage(stage caseapi.Stage, caseID string) func(error) {
	p.store.BeginStage(stage)
	p.progress.Emit(ProgressEvent{CaseID: caseID, Stage: stage, Status: ProgressWorking})

	log := p.log.WithField("stage", stage)
	if caseID != "" {
		log = log.WithField("case_id", caseID)
	}
	log.Debug("stage started")

	return func(err error) {
		if err != nil {
			p.store.Fail(err)
			p.progress.Emit(ProgressEvent{CaseID: caseID, Stage: stage, Status: ProgressFailed, Message: err.Error()})
			log.WithError(err).Warn("stage failed")
		} else {
			p.progress.Emit(ProgressEvent{CaseID: caseID, Stage: stage, Status: ProgressComplete})
			log.Debug("stage complete")
		}
		p.store.EndStage(stage)
	}
}

// reload fetches the case once and commits it.
func (p *Pipeline) reload(ctx context.Context, caseID string, stage caseapi.Stage, tr *tracker) (*caseapi.Case, error) {
	c, err := p.client.GetCase(ctx, caseID)
	if err != nil {
		return nil, p.stageErr(stage, caseID, err)
	}
	p.store.Commit(c)
	tr.observe(stage, c.Status)
	return c, nil
}

// poll waits for targets, committing every fetched case. A case that lands
// in error fails the stage even though error is a target.
func (p *Pipeline) poll(ctx context.Context, caseID string, stage caseapi.Stage, targets StatusSet, tr *tracker) (*caseapi.Case, error) {
	c, err := p.poller.Poll(ctx, caseID, targets, PollOptions{
		OnProgress: func(c *caseapi.Case) {
			p.store.Commit(c)
			tr.observe(stage, c.Status)
		},
	})
	if err != nil {
		return nil, p.stageErr(stage, caseID, err)
	}
	if c.Status == caseapi.StatusError {
		return nil, p.stageErr(stage, caseID, &StageRejectedError{CaseID: caseID, Context: c.ErrorContext()})
	}
	return c, nil
}

func (p *Pipeline) stageErr(stage caseapi.Stage, caseID string, err error) error {
	return &StageError{Stage: stage, CaseID: caseID, Err: err}
}

// checkBatch enforces the service's upload limits before a case is created.
func (p *Pipeline) checkBatch(files []caseapi.File) error {
	if len(files) == 0 {
		return fmt.Errorf("orchestrator: %w: no files", ErrInvalidUpload)
	}
	if len(files) > p.cfg.MaxUploadFiles {
		return fmt.Errorf("orchestrator: %w: %d files exceeds the limit of %d", ErrInvalidUpload, len(files), p.cfg.MaxUploadFiles)
	}
	for _, f := range files {
		if !p.cfg.allowsExtension(f.Name) {
			return fmt.Errorf("orchestrator: %w: %s has unsupported type %q", ErrInvalidUpload, f.Name, filepath.Ext(f.Name))
		}
		if f.Reader == nil {
			return fmt.Errorf("orchestrator: %w: %s has no content", ErrInvalidUpload, f.Name)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Status tracking
// ---------------------------------------------------------------------------

// tracker reports each newly observed status of one case and logs edges the
// lifecycle does not allow. The service stays authoritative: unexpected
// edges are reported, never rejected.
type tracker struct {
	p        *Pipeline
	caseID   string
	last     caseapi.Status
	onChange func(caseapi.Status)
}

func (p *Pipeline) newTracker(caseID string, onChange func(caseapi.Status)) *tracker {
	return &tracker{p: p, caseID: caseID, onChange: onChange}
}

func (t *tracker) observe(stage caseapi.Stage, s caseapi.Status) {
	if s == "" || s == t.last {
		return
	}
	if t.last != "" && !caseapi.CanTransition(t.last, s) {
		t.p.log.WithFields(logrus.Fields{
			"case_id": t.caseID,
			"from":    t.last,
			"to":      s,
		}).Warn("unexpected status transition")
	}
	t.last = s
	if t.onChange != nil {
		t.onChange(s)
	}
	t.p.progress.Emit(ProgressEvent{CaseID: t.caseID, Stage: stage, Status: ProgressWorking, CaseStatus: s})
}
