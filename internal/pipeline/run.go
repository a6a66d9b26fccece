// Package pipeline orchestrates fee form submission runs: fetch the form, build a payload,
// solve the challenge, submit, validate, extract and persist.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/fee-agent/internal/artifacts"
	"github.com/jonathan/fee-agent/internal/challenge"
	"github.com/jonathan/fee-agent/internal/db"
	"github.com/jonathan/fee-agent/internal/fetch"
	"github.com/jonathan/fee-agent/internal/form"
	"github.com/jonathan/fee-agent/internal/observability"
	"github.com/jonathan/fee-agent/internal/payload"
	"github.com/jonathan/fee-agent/internal/response"
	"github.com/jonathan/fee-agent/internal/schemas"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// Progress categories.
const (
	CategoryTransition = "transition"
	CategoryOutcome    = "outcome"
)

// Recorder mirrors finished runs to durable storage.
type Recorder interface {
	RecordRun(ctx context.Context, rec *db.RunRecord) (uuid.UUID, error)
}

// Archiver copies the files of a finished run to object storage.
type Archiver interface {
	Archive(ctx context.Context, batchID uuid.UUID, runID string, files map[string][]byte) error
}

// Options holds configuration for the orchestrator
type Options struct {
	FormURL   string
	SubmitURL string
	// ChallengeTimeout is the elapsed time a failed first solve must exceed to be retried.
	ChallengeTimeout time.Duration
	MinScore         float64
	OutputDir        string
	// Clean empties a run directory before the run writes to it.
	Clean bool

	UserAgent   string
	HTTPTimeout time.Duration
	Transport   http.RoundTripper

	Solver   challenge.Solver
	Builder  payload.Builder
	Recorder Recorder
	Archiver Archiver

	Logging    observability.LoggerOptions
	Logger     *zap.Logger
	Clock      func() time.Time
	OnProgress ProgressCallback
}

// Orchestrator drives runs through the submission state machine. It holds no per-run state
// and may execute several runs concurrently.
type Orchestrator struct {
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// NewOrchestrator validates opts and returns an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.FormURL == "":
		return nil, errors.New("form URL is required")
	case opts.SubmitURL == "":
		return nil, errors.New("submit URL is required")
	case opts.OutputDir == "":
		return nil, errors.New("output directory is required")
	case opts.Solver == nil:
		return nil, errors.New("challenge solver is required")
	case opts.Builder == nil:
		return nil, errors.New("payload builder is required")
	}
	if opts.MinScore == 0 {
		opts.MinScore = challenge.DefaultMinScore
	}
	if opts.Logging.Level == "" {
		opts.Logging = observability.DefaultLoggerOptions()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{opts: opts, log: logger, now: now}, nil
}

// runContext is the state owned by one Run invocation.
type runContext struct {
	id      string
	batchID uuid.UUID
	store   *artifacts.Store
	session *fetch.Session
	log     *zap.Logger

	state       State
	started     time.Time
	transitions []Transition

	attempts   int
	verdict    response.Verdict
	statusCode int
	fees       *response.Fees
}

// Run executes one run under runID and always returns an Outcome. Failures and panics are
// converted to a FAILED outcome; nothing escapes.
func (o *Orchestrator) Run(ctx context.Context, runID string) *Outcome {
	return o.run(ctx, uuid.New(), runID)
}

func (o *Orchestrator) run(ctx context.Context, batchID uuid.UUID, runID string) (out *Outcome) {
	rc := &runContext{
		id:      runID,
		batchID: batchID,
		state:   StateInit,
		started: o.now(),
		log:     o.log.With(zap.String("run_id", runID)),
	}

	store, err := artifacts.Open(o.opts.OutputDir, runID)
	if err != nil {
		rc.log.Error("failed to open run directory", zap.Error(err))
		return o.finish(ctx, rc, fail(ArtifactError, StateInit, err))
	}
	rc.store = store
	if o.opts.Clean {
		if err := store.Reset(); err != nil {
			rc.log.Warn("failed to clear run directory", zap.Error(err))
		}
	}

	runLogger, closeLog, err := observability.NewRunLogger(o.opts.Logging, store.Dir(), runID)
	if err != nil {
		rc.log.Warn("failed to create run log, using process logger", zap.Error(err))
	} else {
		rc.log = runLogger
		store.Track(artifacts.DebugLog)
		defer func() { _ = closeLog() }()
	}

	defer func() {
		if r := recover(); r != nil {
			rc.log.Error("run panicked", zap.Any("panic", r), zap.String("stage", string(rc.state)))
			out = o.finish(ctx, rc, fail(kindForState(rc.state), rc.state, fmt.Errorf("panic: %v", r)))
		}
	}()

	rc.log.Info("run started", zap.String("form_url", o.opts.FormURL))
	return o.finish(ctx, rc, o.execute(ctx, rc))
}

func (o *Orchestrator) execute(ctx context.Context, rc *runContext) error {
	session, err := fetch.NewSession(&fetch.Options{
		Timeout:   o.opts.HTTPTimeout,
		UserAgent: o.opts.UserAgent,
		Referer:   o.opts.FormURL,
		Transport: o.opts.Transport,
	}, rc.log)
	if err != nil {
		return fail(FetchError, StateInit, err)
	}
	rc.session = session

	// INIT → FORM_FETCHED
	snapshot, err := o.fetchForm(ctx, rc, artifacts.FormHTML)
	if err != nil {
		return fail(FetchError, StateInit, err)
	}
	o.advance(rc, StateFormFetched)

	// FORM_FETCHED → PAYLOAD_BUILT
	fields, err := o.opts.Builder.Build(rc.id)
	if err != nil {
		return fail(PayloadError, StateFormFetched, err)
	}
	o.persistJSON(rc, artifacts.PayloadJSON, fields)
	o.advance(rc, StatePayloadBuilt)

	// PAYLOAD_BUILT → SOLVING → SOLVED
	token, snapshot, err := o.solve(ctx, rc, snapshot)
	if err != nil {
		return err
	}
	o.advance(rc, StateSolved)

	// SOLVED → SUBMITTED
	formData := payload.Merge(snapshot.HiddenFields, fields, challenge.TokenField, token)
	resp, err := o.submit(ctx, rc, formData)
	if err != nil {
		return fail(SubmitError, StateSolved, err)
	}
	o.advance(rc, StateSubmitted)

	// SUBMITTED → VALIDATED
	rc.verdict = response.Classify(resp.Body)
	rc.log.Info("response classified", zap.String("verdict", string(rc.verdict)))
	if rc.verdict.Rejected() {
		return fail(RejectedError, StateSubmitted, fmt.Errorf("submission rejected: %s", rc.verdict))
	}
	o.advance(rc, StateValidated)

	// VALIDATED → EXTRACTED
	fees, err := response.ExtractFees(resp.Body, rc.log)
	if err != nil {
		o.persistText(rc, artifacts.FailedParseHTML, resp.Body)
		return fail(EmptyExtractionError, StateValidated, err)
	}
	rc.fees = fees
	o.persistFees(rc, fees)
	if fees.Empty() {
		o.persistText(rc, artifacts.FailedParseHTML, resp.Body)
		return fail(EmptyExtractionError, StateValidated, errors.New("no fee records found in response"))
	}
	o.advance(rc, StateExtracted)

	// EXTRACTED → DONE
	o.advance(rc, StateDone)
	return nil
}

func (o *Orchestrator) fetchForm(ctx context.Context, rc *runContext, name string) (*form.Snapshot, error) {
	snapshot, err := form.Fetch(ctx, rc.session, o.opts.FormURL, rc.log)
	if err != nil {
		return nil, err
	}
	o.persistText(rc, name, snapshot.HTML)
	o.persistJSON(rc, artifacts.HiddenFieldsJSON, snapshot.HiddenFields)
	return snapshot, nil
}

// solve obtains a token, retrying once with a fresh form snapshot when the first attempt
// failed slowly. It returns the snapshot whose hidden fields belong with the token.
func (o *Orchestrator) solve(ctx context.Context, rc *runContext, snapshot *form.Snapshot) (string, *form.Snapshot, error) {
	cfg, err := form.ExtractChallengeConfig(snapshot.HTML)
	if err != nil {
		return "", nil, fail(ConfigError, StatePayloadBuilt, err)
	}
	if cfg.Action == "" {
		rc.log.Warn("challenge action is empty", zap.String("src", cfg.Src))
	}
	o.advance(rc, StateSolving)

	for attempt := 1; ; attempt++ {
		rc.attempts = attempt
		req := challenge.Request{
			SiteKey:  cfg.SiteKey,
			Action:   cfg.Action,
			PageURL:  o.opts.FormURL,
			MinScore: o.opts.MinScore,
		}
		rc.log.Info("solving challenge",
			zap.Int("attempt", attempt),
			zap.String("sitekey", cfg.SiteKey),
			zap.String("action", cfg.Action))

		start := o.now()
		token, err := o.opts.Solver.Solve(ctx, req)
		elapsed := o.now().Sub(start)
		if err == nil {
			rc.log.Info("challenge solved",
				zap.Int("attempt", attempt),
				zap.Int64("elapsed_ms", elapsed.Milliseconds()))
			return token, snapshot, nil
		}

		rc.log.Warn("challenge solve failed",
			zap.Int("attempt", attempt),
			zap.Int64("elapsed_ms", elapsed.Milliseconds()),
			zap.Error(err))
		if ctx.Err() != nil || !challenge.ShouldRetry(attempt, elapsed, o.opts.ChallengeTimeout) {
			return "", nil, fail(ChallengeError, StateSolving, err)
		}

		rc.log.Info("retrying challenge with a fresh form", zap.Int("next_attempt", attempt+1))
		snapshot, err = o.fetchForm(ctx, rc, artifacts.FormRetryHTML)
		if err != nil {
			return "", nil, fail(FetchError, StateSolving, err)
		}
		cfg, err = form.ExtractChallengeConfig(snapshot.HTML)
		if err != nil {
			return "", nil, fail(ConfigError, StateSolving, err)
		}
	}
}

// requestInfo is the request_info.json document.
type requestInfo struct {
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	RequestHeaders map[string]string `json:"request_headers"`
	Cookies        map[string]string `json:"cookies"`
	BodyFormData   map[string]string `json:"body_form_data"`
}

// responseInfo is the response_info.json document.
type responseInfo struct {
	StatusCode      int               `json:"status_code"`
	ResponseHeaders map[string]string `json:"response_headers"`
}

func (o *Orchestrator) submit(ctx context.Context, rc *runContext, formData map[string]string) (*fetch.Response, error) {
	o.persistJSON(rc, artifacts.FormDataJSON, formData)

	info := requestInfo{
		URL:            o.opts.SubmitURL,
		Method:         http.MethodPost,
		RequestHeaders: rc.session.Headers(),
		Cookies:        rc.session.Cookies(o.opts.SubmitURL),
		BodyFormData:   formData,
	}
	if data, err := json.MarshalIndent(info, "", "  "); err == nil {
		if err := schemas.ValidateRequestInfo(data); err != nil {
			rc.log.Warn("request info does not match schema", zap.Error(err))
		}
		o.persist(rc, artifacts.RequestInfoJSON, data)
	}

	resp, err := rc.session.PostForm(ctx, o.opts.SubmitURL, formData)
	if err != nil {
		return nil, err
	}
	rc.statusCode = resp.StatusCode

	o.persistText(rc, artifacts.ResponseHTML, resp.Body)
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	o.persistJSON(rc, artifacts.ResponseInfoJSON, responseInfo{StatusCode: resp.StatusCode, ResponseHeaders: headers})
	return resp, nil
}

// persistFees writes each record set that has rows.
func (o *Orchestrator) persistFees(rc *runContext, fees *response.Fees) {
	if len(fees.Summary) > 0 {
		o.check(rc, artifacts.SummaryCSV, rc.store.PersistCSV(artifacts.SummaryCSV, response.SummaryHeader, fees.SummaryRows()))
	}
	if len(fees.Detail) > 0 {
		o.check(rc, artifacts.DetailedCSV, rc.store.PersistCSV(artifacts.DetailedCSV, response.DetailHeader, fees.DetailRows()))
	}
}

func (o *Orchestrator) persist(rc *runContext, name string, data []byte) {
	o.check(rc, name, rc.store.Persist(name, data))
}

func (o *Orchestrator) persistText(rc *runContext, name, content string) {
	o.check(rc, name, rc.store.PersistText(name, content))
}

func (o *Orchestrator) persistJSON(rc *runContext, name string, v any) {
	o.check(rc, name, rc.store.PersistJSON(name, v))
}

// check logs a failed artifact write. Artifact failures never end a run.
func (o *Orchestrator) check(rc *runContext, name string, err error) {
	if err != nil {
		rc.log.Warn("failed to persist artifact", zap.String("artifact", name), zap.Error(err))
		return
	}
	rc.log.Debug("artifact saved", zap.String("artifact", name))
}

func (o *Orchestrator) advance(rc *runContext, state State) {
	at := o.now()
	rc.state = state
	rc.transitions = append(rc.transitions, Transition{
		State:     state,
		At:        at,
		ElapsedMS: at.Sub(rc.started).Milliseconds(),
	})
	rc.log.Info("stage reached", zap.String("stage", string(state)))
	o.emitProgress(string(state), CategoryTransition, fmt.Sprintf("run %s reached %s", rc.id, state), rc.id, nil)
}

// emitProgress calls the progress callback if configured
func (o *Orchestrator) emitProgress(step, category, message, runID string, content any) {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(ProgressEvent{
			Step:     step,
			Category: category,
			Message:  message,
			RunID:    runID,
			Content:  content,
		})
	}
}

// finish builds the Outcome, writes outcome.json and mirrors the run when a recorder is set.
func (o *Orchestrator) finish(ctx context.Context, rc *runContext, err error) *Outcome {
	finished := o.now()
	out := &Outcome{
		RunID:             rc.id,
		BatchID:           rc.batchID.String(),
		Status:            StatusSuccess,
		Stage:             rc.state,
		Verdict:           rc.verdict,
		StatusCode:        rc.statusCode,
		ChallengeAttempts: rc.attempts,
		StartedAt:         rc.started,
		FinishedAt:        finished,
		DurationMS:        finished.Sub(rc.started).Milliseconds(),
		Transitions:       rc.transitions,
		Artifacts:         []string{},
	}
	if rc.fees != nil {
		out.SummaryCount = len(rc.fees.Summary)
		out.DetailCount = len(rc.fees.Detail)
	}

	if err != nil {
		runErr := asRunError(err, rc.state)
		if ctx.Err() != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
			runErr.Cause = fmt.Errorf("%w (%v)", runErr.Cause, ctx.Err())
		}
		out.Status = StatusFailed
		out.Kind = runErr.Kind
		out.Stage = runErr.Stage
		out.Error = runErr.Error()
		rc.log.Error("run failed",
			zap.String("kind", string(out.Kind)),
			zap.String("stage", string(out.Stage)),
			zap.Int64("elapsed_ms", out.DurationMS),
			zap.Error(runErr))
	} else {
		out.Fees = rc.fees
		rc.log.Info("run succeeded",
			zap.Int("summary_records", out.SummaryCount),
			zap.Int("detail_records", out.DetailCount),
			zap.Int64("elapsed_ms", out.DurationMS))
	}

	if rc.store != nil {
		out.Dir = rc.store.Dir()
		o.writeOutcome(rc, out)
		o.mirror(ctx, rc, out)
	}

	o.emitProgress(string(out.Status), CategoryOutcome, fmt.Sprintf("run %s %s", rc.id, out.Status), rc.id, out)
	return out
}

func (o *Orchestrator) writeOutcome(rc *runContext, out *Outcome) {
	names := rc.store.Names()
	out.Artifacts = append(out.Artifacts, names...)
	if !rc.store.Has(artifacts.OutcomeJSON) {
		out.Artifacts = append(out.Artifacts, artifacts.OutcomeJSON)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		rc.log.Warn("failed to encode outcome", zap.Error(err))
		return
	}
	if err := schemas.ValidateOutcome(data); err != nil {
		rc.log.Warn("outcome does not match schema", zap.Error(err))
	}
	o.persist(rc, artifacts.OutcomeJSON, data)
}

// mirror copies the finished run to the recorder and the archiver. Both are best effort and
// run even when the run's context was cancelled.
func (o *Orchestrator) mirror(ctx context.Context, rc *runContext, out *Outcome) {
	if o.opts.Recorder == nil && o.opts.Archiver == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	// Flush so the copied debug log holds everything up to this point.
	_ = rc.log.Sync()

	files := make(map[string][]byte)
	for _, name := range rc.store.Names() {
		data, err := rc.store.Load(name)
		if err != nil {
			rc.log.Warn("failed to load artifact for mirror", zap.String("artifact", name), zap.Error(err))
			continue
		}
		files[name] = data
	}

	if o.opts.Recorder != nil {
		rec := &db.RunRecord{
			BatchID:     rc.batchID,
			RunID:       out.RunID,
			Status:      string(out.Status),
			Kind:        string(out.Kind),
			Stage:       string(out.Stage),
			Error:       out.Error,
			StartedAt:   out.StartedAt,
			CompletedAt: out.FinishedAt,
			Outcome:     files[artifacts.OutcomeJSON],
			Artifacts:   files,
		}
		if id, err := o.opts.Recorder.RecordRun(ctx, rec); err != nil {
			rc.log.Warn("failed to mirror run to database", zap.Error(err))
		} else {
			rc.log.Info("run mirrored to database", zap.Stringer("row_id", id))
		}
	}

	if o.opts.Archiver != nil {
		if err := o.opts.Archiver.Archive(ctx, rc.batchID, out.RunID, files); err != nil {
			rc.log.Warn("failed to archive run", zap.Error(err))
		} else {
			rc.log.Info("run archived", zap.Int("files", len(files)))
		}
	}
}
