package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harborcrm/clover/internal/appcontext"
	"github.com/harborcrm/clover/pkg/engine"
	"github.com/harborcrm/clover/pkg/export"
	"github.com/harborcrm/clover/pkg/models"
)

var (
	detectGroupID string
	detectLimit   int
	detectOut     string
	detectJSON    bool
	detectFlag    bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect and score duplicate contact groups",
	Long: `Detect scans the active contacts, clusters them by normalized name,
phone and address, and scores each group HIGH, MEDIUM or LOW. The scan is
read-only unless --flag is set, which writes a review flag onto every member
of every detected group.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if detectGroupID != "" && detectLimit > 0 {
			return fmt.Errorf("--group and --limit are mutually exclusive")
		}
		if detectLimit < 0 {
			return fmt.Errorf("--limit must be zero or positive, got %d", detectLimit)
		}
		return nil
	},
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectGroupID, "group", "", "Restrict the run to one group id")
	detectCmd.Flags().IntVar(&detectLimit, "limit", 0, "Report at most N groups (0 means all)")
	detectCmd.Flags().StringVar(&detectOut, "out", "", "Write the report as CSV to this path")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print the report as JSON instead of a summary")
	detectCmd.Flags().BoolVar(&detectFlag, "flag", false, "Persist review flags on every group member")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	ctx = appcontext.SetRunID(ctx, uuid.New().String())

	groups, err := a.engine.Detect(ctx, engine.Scope{GroupID: detectGroupID, Limit: detectLimit})
	if err != nil {
		return err
	}

	if detectFlag {
		flagged, err := a.engine.Flag(ctx, groups)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "flagged %d contacts across %d groups\n", flagged, len(groups))
	}

	reports := make([]models.GroupReport, 0, len(groups))
	for _, g := range groups {
		reports = append(reports, models.NewGroupReport(g))
	}

	if detectOut != "" {
		if err := export.WriteCSVFile(detectOut, reports); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d groups to %s\n", len(reports), detectOut)
		return nil
	}

	if detectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	printGroupSummary(cmd, reports)
	return nil
}

func printGroupSummary(cmd *cobra.Command, reports []models.GroupReport) {
	w := cmd.OutOrStdout()

	if len(reports) == 0 {
		fmt.Fprintln(w, "no duplicate groups found")
		return
	}

	byTier := map[models.ConfidenceTier]int{}
	for _, r := range reports {
		byTier[r.Confidence]++
	}
	fmt.Fprintf(w, "found %d duplicate groups (high=%d medium=%d low=%d)\n\n",
		len(reports), byTier[models.TierHigh], byTier[models.TierMedium], byTier[models.TierLow])

	for _, r := range reports {
		fmt.Fprintf(w, "%s  %-6s  %-7s  %d contacts  %s\n",
			r.GroupID, r.Confidence, r.Type, r.ContactCount, r.Reason)
		for _, c := range r.Contacts {
			fmt.Fprintf(w, "    %s  %s  %s\n", c.ID, c.Email, c.Phone)
		}
	}
}
