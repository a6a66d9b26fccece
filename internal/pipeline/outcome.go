package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/fee-agent/internal/response"
)

// State is a stage of the submission state machine.
type State string

const (
	StateInit         State = "INIT"
	StateFormFetched  State = "FORM_FETCHED"
	StatePayloadBuilt State = "PAYLOAD_BUILT"
	StateSolving      State = "SOLVING"
	StateSolved       State = "SOLVED"
	StateSubmitted    State = "SUBMITTED"
	StateValidated    State = "VALIDATED"
	StateExtracted    State = "EXTRACTED"
	StateDone         State = "DONE"
)

// FailureKind names why a run ended in FAILED.
type FailureKind string

const (
	FetchError           FailureKind = "FetchError"
	PayloadError         FailureKind = "PayloadError"
	ConfigError          FailureKind = "ConfigError"
	ChallengeError       FailureKind = "ChallengeError"
	SubmitError          FailureKind = "SubmitError"
	RejectedError        FailureKind = "RejectedError"
	EmptyExtractionError FailureKind = "EmptyExtractionError"
	ArtifactError        FailureKind = "ArtifactError"
)

// kindForState is the failure kind charged when a run stops unexpectedly in state.
func kindForState(state State) FailureKind {
	switch state {
	case StateInit:
		return FetchError
	case StateFormFetched:
		return PayloadError
	case StatePayloadBuilt, StateSolving:
		return ChallengeError
	case StateSolved:
		return SubmitError
	case StateSubmitted:
		return RejectedError
	default:
		return EmptyExtractionError
	}
}

// Status is the terminal status of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transition records when the run entered a state.
type Transition struct {
	State     State     `json:"state"`
	At        time.Time `json:"at"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Outcome is the result of one run. It is built once when the run ends and written to
// outcome.json.
type Outcome struct {
	RunID             string           `json:"run_id"`
	BatchID           string           `json:"batch_id,omitempty"`
	Status            Status           `json:"status"`
	Kind              FailureKind      `json:"kind,omitempty"`
	Stage             State            `json:"stage"`
	Error             string           `json:"error,omitempty"`
	Verdict           response.Verdict `json:"verdict,omitempty"`
	StatusCode        int              `json:"status_code,omitempty"`
	ChallengeAttempts int              `json:"challenge_attempts"`
	SummaryCount      int              `json:"summary_count"`
	DetailCount       int              `json:"detail_count"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
	DurationMS        int64            `json:"duration_ms"`
	Transitions       []Transition     `json:"transitions,omitempty"`
	Artifacts         []string         `json:"artifacts"`

	// Dir is the run directory; empty when it could not be created.
	Dir string `json:"-"`
	// Fees holds the extracted records of a successful run.
	Fees *response.Fees `json:"-"`
}

// Succeeded reports whether the run reached DONE.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Duration returns the wall time of the run.
func (o *Outcome) Duration() time.Duration {
	return time.Duration(o.DurationMS) * time.Millisecond
}

// RunError is a failure that ends a run.
type RunError struct {
	Kind  FailureKind
	Stage State
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

func fail(kind FailureKind, stage State, cause error) *RunError {
	return &RunError{Kind: kind, Stage: stage, Cause: cause}
}

// asRunError converts any error into a RunError, charging unknown errors to the kind of state.
func asRunError(err error, state State) *RunError {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr
	}
	return fail(kindForState(state), state, err)
}
