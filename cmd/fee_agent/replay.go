package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/fee-agent/internal/observability"
	"github.com/jonathan/fee-agent/internal/pipeline"
	"github.com/jonathan/fee-agent/internal/response"
)

var replayCommand = &cobra.Command{
	Use:   "replay <run-dir>",
	Short: "Re-extract fees from a saved response without network access",
	Long: `Reads response.html from a run directory, classifies it and extracts the fee records again,
rewriting summary.csv and detailed.csv (or failed_parse.html when nothing is found).`,
	Args: cobra.ExactArgs(1),
	RunE: replayCmd,
}

func init() {
	rootCmd.AddCommand(replayCommand)
}

func replayCmd(cmd *cobra.Command, args []string) error {
	logger := observability.NewLogger(observability.DefaultLoggerOptions())
	defer func() { _ = logger.Sync() }()

	result, err := pipeline.Replay(args[0], logger)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	fields := map[string]string{
		"Dir":     result.Dir,
		"Verdict": string(result.Verdict),
	}
	if rec := result.Recorded; rec != nil {
		fields["Recorded"] = string(rec.Status)
		if rec.Kind != "" {
			fields["Recorded"] += fmt.Sprintf(" (%s at %s)", rec.Kind, rec.Stage)
		}
	}
	printer.PrintFields("REPLAY", fields)
	if result.Fees == nil {
		return nil
	}
	if result.Fees.Empty() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No fee records found; response saved as failed_parse.html")
		return nil
	}
	printer.PrintRecords("SUMMARY FEES", prepend(response.SummaryHeader, result.Fees.SummaryRows()))
	printer.PrintRecords("DETAILED FEES", prepend(response.DetailHeader, result.Fees.DetailRows()))
	return nil
}

func prepend(header []string, rows [][]string) [][]string {
	return append([][]string{header}, rows...)
}
