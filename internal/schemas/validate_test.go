package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validOutcome = `{
	"run_id": "0",
	"status": "success",
	"stage": "DONE",
	"verdict": "verified",
	"challenge_attempts": 1,
	"summary_count": 3,
	"detail_count": 5,
	"started_at": "2025-03-10T15:04:05Z",
	"finished_at": "2025-03-10T15:04:09Z",
	"duration_ms": 4000,
	"transitions": [{"state": "FORM_FETCHED", "at": "2025-03-10T15:04:06Z", "elapsed_ms": 1000}],
	"artifacts": ["form.html", "response.html", "summary.csv"]
}`

func TestValidateOutcome_Valid(t *testing.T) {
	assert.NoError(t, ValidateOutcome([]byte(validOutcome)))
}

func TestValidateOutcome_FailedNeedsKind(t *testing.T) {
	doc := `{
		"run_id": "1",
		"status": "failed",
		"stage": "SOLVING",
		"challenge_attempts": 2,
		"summary_count": 0,
		"detail_count": 0,
		"started_at": "2025-03-10T15:04:05Z",
		"finished_at": "2025-03-10T15:06:05Z",
		"duration_ms": 120000,
		"artifacts": []
	}`

	err := ValidateOutcome([]byte(doc))
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.NotEmpty(t, validationErr.Errors)
}

func TestValidateOutcome_UnknownKind(t *testing.T) {
	doc := `{
		"run_id": "1",
		"status": "failed",
		"kind": "TimeoutError",
		"error": "boom",
		"stage": "SOLVING",
		"challenge_attempts": 1,
		"summary_count": 0,
		"detail_count": 0,
		"started_at": "2025-03-10T15:04:05Z",
		"finished_at": "2025-03-10T15:06:05Z",
		"duration_ms": 120000,
		"artifacts": []
	}`

	err := ValidateOutcome([]byte(doc))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateOutcome_Malformed(t *testing.T) {
	err := ValidateOutcome([]byte("{ invalid json }"))
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestValidateRequestInfo(t *testing.T) {
	valid := `{
		"url": "https://example.gov/submit",
		"method": "POST",
		"request_headers": {"User-Agent": "ua"},
		"cookies": {"JSESSIONID": "abc"},
		"body_form_data": {"g-recaptcha-response": "tok", "yearModel": "2020"}
	}`
	assert.NoError(t, ValidateRequestInfo([]byte(valid)))

	missingToken := `{
		"url": "https://example.gov/submit",
		"method": "POST",
		"request_headers": {},
		"cookies": {},
		"body_form_data": {"yearModel": "2020"}
	}`
	var validationErr *ValidationError
	require.ErrorAs(t, ValidateRequestInfo([]byte(missingToken)), &validationErr)
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcome.json")
	require.NoError(t, os.WriteFile(path, []byte(validOutcome), 0644))

	schema := `{"type": "object", "required": ["run_id"]}`
	assert.NoError(t, ValidateFile(schema, path))

	err := ValidateFile(schema, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`

	err := ValidateJSONString(schemaContent, `{"age": 30}`)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "status", Message: "is required"},
			{Field: "duration_ms", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "status")
	assert.Contains(t, errorMsg, "duration_ms")
}
