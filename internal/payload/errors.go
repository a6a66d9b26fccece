package payload

import (
	"fmt"
	"slices"
)

// ValidationError is a submission that violates an option table or a cross-field rule.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid payload field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid payload: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
