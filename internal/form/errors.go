// Package form loads the fee request form and extracts what a submission needs from it:
// the hidden fields that must be echoed back and the challenge loader parameters.
package form

import "fmt"

// ConfigError means the page carries no usable challenge configuration.
type ConfigError struct {
	Message string
	Src     string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("challenge config error: %s: %v", e.Message, e.Cause)
	}
	if e.Src != "" {
		return fmt.Sprintf("challenge config error: %s (src: %s)", e.Message, e.Src)
	}
	return fmt.Sprintf("challenge config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
