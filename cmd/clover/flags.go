package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Manage duplicate review flags",
}

var flagsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the review flags from every contact",
	Long: `Clear resets dup_group_id, dup_reason and dup_flagged_at on every
flagged contact. Contact data is untouched; only the advisory flag columns
are cleared.`,
	RunE: runFlagsClear,
}

func init() {
	rootCmd.AddCommand(flagsCmd)
	flagsCmd.AddCommand(flagsClearCmd)
}

func runFlagsClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	cleared, err := a.engine.ClearFlags(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cleared review flags on %d contacts\n", cleared)
	return nil
}
