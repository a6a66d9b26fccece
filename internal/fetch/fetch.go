// Package fetch provides the per-run HTTP session used to load and submit the fee form.
// A Session keeps one cookie jar and one fixed header set for the lifetime of a run.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is the browser user agent sent on every request of a session.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.0.0 Safari/537.36"

// SnippetLength is the number of body characters logged per response.
const SnippetLength = 500

// Response is an immutable snapshot of one HTTP exchange.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       string
	Elapsed    time.Duration
}

// Error represents a transport failure during a request.
type Error struct {
	Method  string
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s %s: %s: %v", e.Method, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s %s: %s", e.Method, e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures a Session.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
	Headers   map[string]string
	// Transport overrides the underlying round tripper (tests, proxies).
	Transport http.RoundTripper
}

// DefaultOptions returns sensible defaults for a session.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Session is a cookie- and header-preserving HTTP client scoped to one run.
// It must not be shared between runs.
type Session struct {
	client  *http.Client
	jar     *cookiejar.Jar
	headers http.Header
	log     *zap.Logger
}

// NewSession creates a session with an empty cookie jar.
func NewSession(opts *Options, logger *zap.Logger) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	headers := make(http.Header)
	headers.Set("User-Agent", userAgent)
	if opts.Referer != "" {
		headers.Set("Referer", opts.Referer)
	}
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	headers.Set("Accept-Encoding", acceptEncoding)
	for key, value := range opts.Headers {
		headers.Set(key, value)
	}

	return &Session{
		client: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
		jar:     jar,
		headers: headers,
		log:     logger.Named("http"),
	}, nil
}

// Get performs a GET request.
func (s *Session) Get(ctx context.Context, urlStr string) (*Response, error) {
	return s.Do(ctx, http.MethodGet, urlStr, nil)
}

// PostForm performs a POST with a URL-encoded body built from fields.
func (s *Session) PostForm(ctx context.Context, urlStr string, fields map[string]string) (*Response, error) {
	form := make(url.Values, len(fields))
	for key, value := range fields {
		form.Set(key, value)
	}
	return s.Do(ctx, http.MethodPost, urlStr, form)
}

// Do performs a request with the session's cookies and headers.
// Only transport failures are returned as errors; any HTTP status is a valid Response.
func (s *Session) Do(ctx context.Context, method, urlStr string, form url.Values) (*Response, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{Method: method, URL: urlStr, Message: "invalid URL", Cause: err}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, &Error{Method: method, URL: urlStr, Message: "failed to create request", Cause: err}
	}
	for key, values := range s.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if form != nil {
		s.log.Info("→ "+method+" "+urlStr, zap.Strings("payload_keys", sortedKeys(form)))
	} else {
		s.log.Info("→ " + method + " " + urlStr)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		s.log.Error("✖ "+method+" "+urlStr+" failed",
			zap.Int64("elapsed_ms", elapsed.Milliseconds()),
			zap.Error(err))
		return nil, &Error{Method: method, URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := readBody(resp)
	elapsed := time.Since(start)
	if err != nil {
		s.log.Error("✖ "+method+" "+urlStr+" body read failed",
			zap.Int64("elapsed_ms", elapsed.Milliseconds()),
			zap.Error(err))
		return nil, &Error{Method: method, URL: urlStr, Message: "failed to read response body", Cause: err}
	}

	result := &Response{
		Method:     method,
		URL:        urlStr,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       string(bodyBytes),
		Elapsed:    elapsed,
	}

	s.log.Info(fmt.Sprintf("← %d %s", resp.StatusCode, urlStr),
		zap.Int("status", resp.StatusCode),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()))
	s.log.Debug("HTML snippet", zap.String("snippet", Snippet(result.Body)))

	return result, nil
}

// Headers returns the fixed header set sent with every request.
func (s *Session) Headers() map[string]string {
	out := make(map[string]string, len(s.headers))
	for key := range s.headers {
		out[key] = s.headers.Get(key)
	}
	return out
}

// Cookies returns the cookies the jar would send to urlStr.
func (s *Session) Cookies(urlStr string) map[string]string {
	out := make(map[string]string)
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return out
	}
	for _, c := range s.jar.Cookies(parsedURL) {
		out[c.Name] = c.Value
	}
	return out
}

// Snippet flattens a body to one line and truncates it for logging.
func Snippet(body string) string {
	flat := strings.TrimSpace(strings.ReplaceAll(body, "\n", " "))
	runes := []rune(flat)
	if len(runes) > SnippetLength {
		return string(runes[:SnippetLength]) + "…[truncated]"
	}
	if len([]rune(body)) > SnippetLength {
		return flat + "…[truncated]"
	}
	return flat
}

func sortedKeys(form url.Values) []string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
