package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultAntiCaptchaURL is the solving service API root.
const DefaultAntiCaptchaURL = "https://api.anti-captcha.com"

const taskTypeRecaptchaV3 = "RecaptchaV3TaskProxyless"

// AntiCaptchaOptions configures the solving service client.
type AntiCaptchaOptions struct {
	BaseURL      string
	InitialDelay time.Duration
	PollInterval time.Duration
	MaxWait      time.Duration
	HTTPClient   *http.Client
}

// DefaultAntiCaptchaOptions returns the polling cadence the service documents.
func DefaultAntiCaptchaOptions() *AntiCaptchaOptions {
	return &AntiCaptchaOptions{
		BaseURL:      DefaultAntiCaptchaURL,
		InitialDelay: 5 * time.Second,
		PollInterval: 3 * time.Second,
		MaxWait:      5 * time.Minute,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// AntiCaptcha solves reCAPTCHA v3 challenges through the anti-captcha.com task API.
type AntiCaptcha struct {
	apiKey string
	opts   AntiCaptchaOptions
	log    *zap.Logger
}

// NewAntiCaptcha creates a client for apiKey. Zero-valued options fall back to defaults.
func NewAntiCaptcha(apiKey string, opts *AntiCaptchaOptions, logger *zap.Logger) *AntiCaptcha {
	defaults := DefaultAntiCaptchaOptions()
	if opts == nil {
		opts = defaults
	}
	merged := *opts
	if merged.BaseURL == "" {
		merged.BaseURL = defaults.BaseURL
	}
	if merged.PollInterval <= 0 {
		merged.PollInterval = defaults.PollInterval
	}
	if merged.MaxWait <= 0 {
		merged.MaxWait = defaults.MaxWait
	}
	if merged.HTTPClient == nil {
		merged.HTTPClient = defaults.HTTPClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AntiCaptcha{apiKey: apiKey, opts: merged, log: logger.Named("anticaptcha")}
}

type recaptchaV3Task struct {
	Type       string  `json:"type"`
	WebsiteURL string  `json:"websiteURL"`
	WebsiteKey string  `json:"websiteKey"`
	MinScore   float64 `json:"minScore"`
	PageAction string  `json:"pageAction,omitempty"`
}

type createTaskRequest struct {
	ClientKey string          `json:"clientKey"`
	Task      recaptchaV3Task `json:"task"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    int64  `json:"taskId"`
}

type apiResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
	TaskID           int64  `json:"taskId,omitempty"`
	Status           string `json:"status,omitempty"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Solve creates a task and polls until the service reports it ready.
func (a *AntiCaptcha) Solve(ctx context.Context, req Request) (string, error) {
	if a.apiKey == "" {
		return "", &SolveError{Code: "ERROR_KEY_DOES_NOT_EXIST", Message: "solving service API key is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.MaxWait)
	defer cancel()

	var created apiResponse
	err := a.call(ctx, "/createTask", createTaskRequest{
		ClientKey: a.apiKey,
		Task: recaptchaV3Task{
			Type:       taskTypeRecaptchaV3,
			WebsiteURL: req.PageURL,
			WebsiteKey: req.SiteKey,
			MinScore:   req.MinScore,
			PageAction: req.Action,
		},
	}, &created)
	if err != nil {
		return "", err
	}
	a.log.Info("task created", zap.Int64("task_id", created.TaskID))

	wait := a.opts.InitialDelay
	for {
		if err := sleep(ctx, wait); err != nil {
			return "", &SolveError{Code: "ERROR_TIMEOUT", Message: "gave up waiting for task result", Cause: err}
		}
		wait = a.opts.PollInterval

		var result apiResponse
		if err := a.call(ctx, "/getTaskResult", taskResultRequest{ClientKey: a.apiKey, TaskID: created.TaskID}, &result); err != nil {
			return "", err
		}
		if result.Status != "ready" {
			a.log.Debug("task not ready", zap.Int64("task_id", created.TaskID), zap.String("status", result.Status))
			continue
		}
		token := result.Solution.GRecaptchaResponse
		if token == "" {
			return "", &SolveError{Code: "ERROR_EMPTY_SOLUTION", Message: "task ready without a token"}
		}
		return token, nil
	}
}

// call posts body to the API path and decodes the reply into out. A non-zero errorId
// becomes a SolveError carrying the service error code.
func (a *AntiCaptcha) call(ctx context.Context, path string, body any, out *apiResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &SolveError{Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &SolveError{Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return &SolveError{Message: fmt.Sprintf("request to %s failed", path), Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SolveError{Message: "failed to read response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &SolveError{Message: fmt.Sprintf("%s returned HTTP %d", path, resp.StatusCode)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &SolveError{Message: "failed to decode response", Cause: err}
	}
	if out.ErrorID != 0 {
		return &SolveError{Code: out.ErrorCode, Message: out.ErrorDescription}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
