package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "fee_agent %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCommand)
}
