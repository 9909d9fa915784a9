package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harborcrm/clover/internal/appcontext"
	"github.com/harborcrm/clover/pkg/engine"
	"github.com/harborcrm/clover/pkg/models"
)

var (
	mergeGroupID string
	mergeLimit   int
	mergeExecute bool
	mergeJSON    bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge high-confidence duplicate groups",
	Long: `Merge plans every HIGH confidence group and, with --execute, applies
each plan in its own database transaction. Without --execute this is a dry
run: it prints what would change and writes nothing.

Groups that fail a safety precondition (two members that both look like the
primary, or confirmed subscription amounts that disagree) are skipped and
routed to manual review. A failed group never aborts the rest of the run.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if mergeGroupID != "" && mergeLimit > 0 {
			return fmt.Errorf("--group and --limit are mutually exclusive")
		}
		if mergeLimit < 0 {
			return fmt.Errorf("--limit must be zero or positive, got %d", mergeLimit)
		}
		return nil
	},
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeGroupID, "group", "", "Restrict the run to one group id")
	mergeCmd.Flags().IntVar(&mergeLimit, "limit", 0, "Process at most N groups (0 means all)")
	mergeCmd.Flags().BoolVar(&mergeExecute, "execute", false, "Apply the merges (default is a dry run)")
	mergeCmd.Flags().BoolVar(&mergeJSON, "json", false, "Print the run report as JSON")
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	ctx = appcontext.SetRunID(ctx, uuid.New().String())

	dryRun := !mergeExecute
	report, plans, err := a.engine.Merge(ctx, engine.Scope{GroupID: mergeGroupID, Limit: mergeLimit}, dryRun)
	if err != nil {
		return err
	}

	if mergeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			DryRun bool               `json:"dry_run"`
			Report *models.RunReport  `json:"report"`
			Plans  []models.MergePlan `json:"plans"`
		}{dryRun, report, plans}); err != nil {
			return err
		}
	} else {
		printMergeReport(cmd, report, plans, dryRun)
	}

	if len(report.Errors) > 0 {
		return fmt.Errorf("%d groups failed to merge", len(report.Errors))
	}
	return nil
}

func printMergeReport(cmd *cobra.Command, report *models.RunReport, plans []models.MergePlan, dryRun bool) {
	w := cmd.OutOrStdout()

	if dryRun {
		fmt.Fprintln(w, "dry run, nothing was written (use --execute to apply)")
	}

	for _, p := range plans {
		fmt.Fprintf(w, "group %s: keep %s, merge %d duplicates, migrate %d emails\n",
			p.GroupID, p.Primary.ID, len(p.Duplicates), len(p.Emails))
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", s.GroupID, s.Reason)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}

	fmt.Fprintf(w, "\ngroups=%d merged=%d emails_migrated=%d transactions_migrated=%d soft_deleted=%d skipped=%d errors=%d\n",
		report.GroupsProcessed,
		report.ContactsMerged,
		report.EmailsMigrated,
		report.TransactionsMigrated,
		report.ContactsSoftDeleted,
		len(report.Skipped),
		len(report.Errors),
	)
}
