// Package schemas provides JSON Schema validation for the JSON manifests a run writes.
package schemas

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	embedded "github.com/jonathan/fee-agent/schemas"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var (
	outcomeSchema     = sync.OnceValues(func() (*gojsonschema.Schema, error) { return compile(embedded.Outcome) })
	requestInfoSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) { return compile(embedded.RequestInfo) })
)

func compile(content string) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
}

// ValidateOutcome validates an outcome.json document.
func ValidateOutcome(data []byte) error {
	return validateWith(outcomeSchema, "outcome.schema.json", data)
}

// ValidateRequestInfo validates a request_info.json document.
func ValidateRequestInfo(data []byte) error {
	return validateWith(requestInfoSchema, "request_info.schema.json", data)
}

func validateWith(load func() (*gojsonschema.Schema, error), name string, data []byte) error {
	schema, err := load()
	if err != nil {
		return &SchemaLoadError{Path: name, Message: "embedded schema failed to compile", Cause: err}
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &SchemaLoadError{Path: name, Message: "document could not be loaded", Cause: err}
	}
	return toValidationError(result)
}

// ValidateFile validates the JSON file at jsonPath against schema content.
func ValidateFile(schemaContent, jsonPath string) error {
	jsonAbsPath, err := filepath.Abs(jsonPath)
	if err != nil {
		return fmt.Errorf("failed to resolve JSON path: %w", err)
	}
	data, err := os.ReadFile(jsonAbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("JSON file not found: %s", jsonAbsPath)
		}
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	return ValidateJSONString(schemaContent, string(data))
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return toValidationError(result)
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
