package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintFields("PAYLOAD", map[string]string{"yearModel": "2020", "typeLicense": "11"})
	output := buf.String()

	assert.Contains(t, output, "PAYLOAD")
	assert.Contains(t, output, "typeLicense")
	assert.Less(t, strings.Index(output, "typeLicense"), strings.Index(output, "yearModel"))
}

func TestPrintFields_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintFields("PAYLOAD", nil)

	assert.Empty(t, buf.String())
}

func TestPrintRecords_Truncates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	rows := make([][]string, 8)
	for i := range rows {
		rows[i] = []string{"Fee", "$1"}
	}
	p.PrintRecords("SUMMARY FEES", rows)

	assert.Contains(t, buf.String(), "... and 3 more")
}

func TestPrintOutcome_Success(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintOutcome(RunSummary{
		RunID:         "4",
		Status:        "success",
		Verdict:       "verified",
		SummaryCount:  3,
		DetailCount:   5,
		SolveAttempts: 1,
		Duration:      1500 * time.Millisecond,
	})
	output := buf.String()

	assert.Contains(t, output, "RUN 4")
	assert.Contains(t, output, "✓ success")
	assert.Contains(t, output, "3 records")
	assert.Contains(t, output, "1.5s")
}

func TestPrintOutcome_Failure(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintOutcome(RunSummary{
		RunID:  "2",
		Status: "failed",
		Kind:   "RejectedError",
		Stage:  "SUBMITTED",
		Error:  strings.Repeat("x", 200),
	})
	output := buf.String()

	assert.Contains(t, output, "RejectedError")
	assert.Contains(t, output, "SUBMITTED")
	assert.Contains(t, output, "...")
}

func TestPrintBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintBatchSummary([]RunSummary{
		{RunID: "0", Status: "success", SummaryCount: 2, DetailCount: 4},
		{RunID: "1", Status: "failed", Kind: "ChallengeError", Stage: "SOLVING"},
	})
	output := buf.String()

	assert.Contains(t, output, "BATCH SUMMARY")
	assert.Contains(t, output, "1/2 runs succeeded")
	assert.Contains(t, output, "ChallengeError at SOLVING")
}

func TestPrintBatchSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintBatchSummary(nil)
	assert.Empty(t, buf.String())
}
