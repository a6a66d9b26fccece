// Package response classifies submission responses and extracts fee records from accepted ones.
package response

import "strings"

// Verdict is the classification of a submission response.
type Verdict string

const (
	// Verified means the response carries no rejection marker and may be parsed.
	Verified Verdict = "verified"
	// NotVerified means the service rejected the challenge token.
	NotVerified Verdict = "not_verified"
	// ValidationError means the service re-rendered the form with field errors.
	ValidationError Verdict = "validation_error"
	// Unknown is reserved for responses that cannot be classified. Classify never returns it.
	Unknown Verdict = "unknown"
)

const (
	notVerifiedMarker = "session not verified"
	errorAlertMarker  = `<div class="alert alert--error"`
	formLegendMarker  = "<legend>calculate new resident fees</legend>"
)

// Rejected reports whether the verdict blocks extraction.
func (v Verdict) Rejected() bool {
	return v == NotVerified || v == ValidationError
}

// Classify inspects the raw response body for rejection markers. The not-verified marker and
// the form legend are matched case-insensitively; the error alert markup is matched exactly.
func Classify(body string) Verdict {
	lower := strings.ToLower(body)
	if strings.Contains(lower, notVerifiedMarker) {
		return NotVerified
	}
	if strings.Contains(body, errorAlertMarker) && strings.Contains(lower, formLegendMarker) {
		return ValidationError
	}
	return Verified
}
