// Package challenge defines the token-solving capability the submission pipeline consumes
// and the retry rule applied around it.
package challenge

import (
	"context"
	"fmt"
	"time"
)

// TokenField is the form field the token is submitted under.
const TokenField = "g-recaptcha-response"

// DefaultMinScore is the minimum acceptable score requested from the solving service.
const DefaultMinScore = 0.3

// MaxAttempts bounds solve attempts per run: the first try plus one retry.
const MaxAttempts = 2

// Request carries everything a solver needs for one token.
type Request struct {
	SiteKey  string
	Action   string
	PageURL  string
	MinScore float64
}

// Solver returns an opaque proof token for a protected page.
type Solver interface {
	Solve(ctx context.Context, req Request) (string, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, req Request) (string, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// SolveError is a failed solve, carrying the service error code when there is one.
type SolveError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SolveError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("solve error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("solve error: %s", msg)
}

func (e *SolveError) Unwrap() error {
	return e.Cause
}

// ShouldRetry reports whether a failed attempt may be retried. Only the first attempt is
// retried, and only when it ran longer than threshold.
func ShouldRetry(attempt int, elapsed, threshold time.Duration) bool {
	return attempt == 1 && attempt < MaxAttempts && elapsed > threshold
}
