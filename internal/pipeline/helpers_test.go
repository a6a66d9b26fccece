package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/jonathan/fee-agent/internal/challenge"
	"github.com/jonathan/fee-agent/internal/db"
	"github.com/jonathan/fee-agent/internal/observability"
	"github.com/jonathan/fee-agent/internal/payload"
)

const formTemplate = `<html><head>
<script src="https://www.google.com/recaptcha/api.js"></script>
<script src="/js/recaptchav3.js?sitekey=site-key-1&action=submitFees"></script>
</head><body>
<form id="FeeRequestForm" action="/submit" method="post">
  <input type="hidden" name="_csrf" value="csrf-%d">
  <input type="hidden" name="vehicleType" value="from-form">
  <input type="text" name="zipCode" value="">
</form>
</body></html>`

const formWithoutLoader = `<html><body><form id="FeeRequestForm"><input type="hidden" name="_csrf" value="x"></form></body></html>`

const feePage = `<html><body>
<fieldset><legend> Fees </legend>
  <dl><dt>Registration Fee</dt><dd>$50.00</dd><dt>Use Tax</dt><dd>$120.00</dd></dl>
</fieldset>
<table class="table table--secondary"><tbody>
  <tr><td>Vehicle License Fee</td><td>$65.00</td></tr>
</tbody></table>
</body></html>`

var fixedStart = time.Date(2025, time.March, 10, 15, 4, 5, 0, time.UTC)

// fakeSite serves the fee form and records submissions.
type fakeSite struct {
	srv *httptest.Server

	mu         sync.Mutex
	formGets   int
	formBody   string
	submitBody string
	submitted  []url.Values
	cookies    []string
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{submitBody: feePage}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /form", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.formGets++
		n := site.formGets
		body := site.formBody
		site.mu.Unlock()

		if body == "" {
			body = fmt.Sprintf(formTemplate, n)
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: fmt.Sprintf("session-%d", n), Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("POST /submit", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		cookie, _ := r.Cookie("JSESSIONID")

		site.mu.Lock()
		site.submitted = append(site.submitted, r.PostForm)
		if cookie != nil {
			site.cookies = append(site.cookies, cookie.Value)
		}
		body := site.submitBody
		site.mu.Unlock()

		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	})
	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

func (s *fakeSite) formURL() string   { return s.srv.URL + "/form" }
func (s *fakeSite) submitURL() string { return s.srv.URL + "/submit" }

func (s *fakeSite) gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formGets
}

func (s *fakeSite) submissions() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.submitted...)
}

// fakeClock only moves when advanced.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedSolver returns the next scripted result per call.
type scriptedSolver struct {
	mu       sync.Mutex
	steps    []func(ctx context.Context) (string, error)
	requests []challenge.Request
}

func (s *scriptedSolver) Solve(ctx context.Context, req challenge.Request) (string, error) {
	s.mu.Lock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if i >= len(s.steps) {
		return "", &challenge.SolveError{Message: "unexpected solve call"}
	}
	return s.steps[i](ctx)
}

func (s *scriptedSolver) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func tokenStep(token string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return token, nil }
}

func failStep(clock *fakeClock, took time.Duration) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		clock.Advance(took)
		return "", &challenge.SolveError{Code: "ERROR_CAPTCHA_UNSOLVABLE", Message: "captcha could not be solved"}
	}
}

func fixedBuilder() payload.Builder {
	return payload.BuilderFunc(func(string) (payload.Payload, error) {
		return payload.Payload{
			"vehicleType": "11",
			"yearModel":   "2020",
			"zipCode":     "95814",
		}, nil
	})
}

// fakeRecorder captures mirrored runs.
type fakeRecorder struct {
	mu      sync.Mutex
	records []*db.RunRecord
	err     error
}

func (r *fakeRecorder) RecordRun(_ context.Context, rec *db.RunRecord) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return uuid.New(), r.err
}

// fakeArchiver captures archived runs.
type fakeArchiver struct {
	mu    sync.Mutex
	runs  map[string]map[string][]byte
	batch uuid.UUID
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, batchID uuid.UUID, runID string, files map[string][]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runs == nil {
		a.runs = make(map[string]map[string][]byte)
	}
	a.runs[runID] = files
	a.batch = batchID
	return a.err
}

func quietLogging() observability.LoggerOptions {
	opts := observability.DefaultLoggerOptions()
	opts.Level = "debug"
	opts.Format = "json"
	opts.Console = zapcore.AddSync(io.Discard)
	return opts
}

func testOptions(t *testing.T, site *fakeSite, solver challenge.Solver, clock *fakeClock) Options {
	t.Helper()
	return Options{
		FormURL:          site.formURL(),
		SubmitURL:        site.submitURL(),
		ChallengeTimeout: 60 * time.Second,
		MinScore:         0.3,
		OutputDir:        t.TempDir(),
		Clean:            true,
		Transport:        site.srv.Client().Transport,
		Solver:           solver,
		Builder:          fixedBuilder(),
		Logging:          quietLogging(),
		Clock:            clock.Now,
	}
}

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(opts)
	require.NoError(t, err)
	return orch
}
