package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clover",
	Short: "Duplicate contact resolution for the contact store",
	Long: `Clover finds duplicate contact records, scores how confident it is
that they describe the same person, and merges the high-confidence groups
into a single surviving contact without losing emails or transaction history.

Ambiguous groups are never merged automatically; they are flagged for a
human to review.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
