package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/intent"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Execute a discovery run for an intent",
	Long:  "Resolves the intent, searches its channels within the configured ceilings, and either previews the candidates (--dry-run) or creates companies, contacts, and leads.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		intentID, _ := cmd.Flags().GetString("intent")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		mode, _ := cmd.Flags().GetString("mode")
		triggeredBy, _ := cmd.Flags().GetString("triggered-by")

		req := discovery.StartRequest{
			IntentID:    intentID,
			DryRun:      dryRun,
			Mode:        mode,
			TriggeredBy: triggeredBy,
			Overrides:   overridesFromFlags(cmd),
		}

		run, err := env.engine.Start(ctx, req)
		if err != nil {
			return err
		}

		zap.L().Info("run finished",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("candidates", len(run.Results)),
		)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		printRunSummary(run)
		return nil
	},
}

// overridesFromFlags collects the optional per-run overrides. Zero
// values defer to the intent's own settings.
func overridesFromFlags(cmd *cobra.Command) *intent.Overrides {
	queries, _ := cmd.Flags().GetStringSlice("query")
	channels, _ := cmd.Flags().GetStringSlice("channel")
	maxCompanies, _ := cmd.Flags().GetInt("max-companies")
	maxLeads, _ := cmd.Flags().GetInt("max-leads")
	timeBudget, _ := cmd.Flags().GetInt64("time-budget-ms")

	if len(queries) == 0 && len(channels) == 0 && maxCompanies == 0 && maxLeads == 0 && timeBudget == 0 {
		return nil
	}
	return &intent.Overrides{
		Queries:      queries,
		Channels:     channels,
		MaxCompanies: maxCompanies,
		MaxLeads:     maxLeads,
		TimeBudgetMs: timeBudget,
	}
}

func printRunSummary(run *discovery.Run) {
	fmt.Printf("Run:        %s\n", run.ID)
	fmt.Printf("Intent:     %s (%s)\n", run.IntentName, run.IntentID)
	fmt.Printf("Status:     %s\n", run.Status)
	fmt.Printf("Dry run:    %t\n", run.DryRun)
	fmt.Printf("Candidates: %d\n", len(run.Results))

	if !run.DryRun {
		fmt.Printf("Created:    %d companies, %d contacts, %d leads (%d skipped)\n",
			run.CreatedCompaniesCount, run.CreatedContactsCount, run.CreatedLeadsCount, run.SkippedCount)
	}
	if run.Error != nil {
		fmt.Printf("Error:      %s\n", *run.Error)
	}

	for i, c := range run.Results {
		fmt.Printf("  %2d. %-40s %-30s %.2f (%s)\n", i+1, truncate(c.Name, 40), c.Website, c.RelevanceScore, c.Channel)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	discoverCmd.Flags().String("intent", "", "intent id to run (required)")
	discoverCmd.Flags().Bool("dry-run", true, "preview candidates without creating records")
	discoverCmd.Flags().String("mode", discovery.ModeManual, "run mode (manual or daily)")
	discoverCmd.Flags().String("triggered-by", "cli", "who triggered the run")
	discoverCmd.Flags().StringSlice("query", nil, "override the intent's queries")
	discoverCmd.Flags().StringSlice("channel", nil, "override the intent's channels")
	discoverCmd.Flags().Int("max-companies", 0, "override max companies (clamped to ceiling)")
	discoverCmd.Flags().Int("max-leads", 0, "override max leads (clamped to ceiling)")
	discoverCmd.Flags().Int64("time-budget-ms", 0, "override the run time budget in milliseconds")
	discoverCmd.Flags().Bool("json", false, "print the full run as JSON")
	_ = discoverCmd.MarkFlagRequired("intent")

	rootCmd.AddCommand(discoverCmd)
}
