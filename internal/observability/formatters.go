// Package observability provides the zap loggers for the process and for each run, plus
// formatted box output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// RunSummary is the printable view of one run's outcome.
type RunSummary struct {
	RunID         string
	Status        string
	Kind          string
	Stage         string
	Error         string
	Verdict       string
	SummaryCount  int
	DetailCount   int
	SolveAttempts int
	Duration      time.Duration
	Dir           string
}

// Succeeded reports whether the run ended in success.
func (s RunSummary) Succeeded() bool {
	return s.Status == "success"
}

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// PrintFields outputs a name/value map such as the payload or hidden fields, sorted by name.
func (p *Printer) PrintFields(title string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("%-24s %s\n", name, fields[name]))
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRecords outputs the first rows of a fee table.
func (p *Printer) PrintRecords(title string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(rows), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("• %s\n", strings.Join(rows[i], "  ")))
	}
	if len(rows) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(rows)-maxItemsToShow))
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutcome outputs the result of a single run.
func (p *Printer) PrintOutcome(s RunSummary) {
	var sb strings.Builder
	if s.Succeeded() {
		sb.WriteString(fmt.Sprintf("Status:   ✓ %s\n", s.Status))
		sb.WriteString(fmt.Sprintf("Summary:  %d records\n", s.SummaryCount))
		sb.WriteString(fmt.Sprintf("Detail:   %d records\n", s.DetailCount))
	} else {
		sb.WriteString(fmt.Sprintf("Status:   ✗ %s (%s)\n", s.Status, s.Kind))
		sb.WriteString(fmt.Sprintf("Stage:    %s\n", s.Stage))
		if s.Error != "" {
			sb.WriteString(fmt.Sprintf("Error:    %s\n", s.Error))
		}
	}
	if s.Verdict != "" {
		sb.WriteString(fmt.Sprintf("Verdict:  %s\n", s.Verdict))
	}
	sb.WriteString(fmt.Sprintf("Solves:   %d\n", s.SolveAttempts))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", s.Duration.Round(time.Millisecond)))
	if s.Dir != "" {
		sb.WriteString(fmt.Sprintf("Dir:      %s", s.Dir))
	}

	p.printBox(fmt.Sprintf("RUN %s", s.RunID), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatchSummary outputs one line per run and the success count.
func (p *Printer) PrintBatchSummary(runs []RunSummary) {
	if len(runs) == 0 {
		return
	}

	var sb strings.Builder
	succeeded := 0
	for _, s := range runs {
		if s.Succeeded() {
			succeeded++
			sb.WriteString(fmt.Sprintf("✓ %-6s %d summary / %d detail\n", s.RunID, s.SummaryCount, s.DetailCount))
			continue
		}
		sb.WriteString(fmt.Sprintf("✗ %-6s %s at %s\n", s.RunID, s.Kind, s.Stage))
	}
	sb.WriteString(fmt.Sprintf("\n%d/%d runs succeeded", succeeded, len(runs)))

	p.printBox("BATCH SUMMARY", sb.String())
}
