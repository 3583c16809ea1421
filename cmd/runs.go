package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/discovery"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and manage discovery run history",
	Long:  "Commands for listing, viewing, cancelling, materializing, and archiving discovery runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovery runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		sourceClass, _ := cmd.Flags().GetString("source-class")
		archived, _ := cmd.Flags().GetString("archived")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := discovery.RunFilter{
			Status:      discovery.Status(status),
			SourceClass: discovery.SourceClass(sourceClass),
			Limit:       limit,
		}
		switch archived {
		case "":
		case "true":
			t := true
			filter.Archived = &t
		case "false":
			f := false
			filter.Archived = &f
		default:
			return eris.Errorf("invalid --archived value: %s (want true or false)", archived)
		}

		runs, err := env.runs.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.runs.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs cancel --

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Request cooperative cancellation of an active run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		requestedBy, _ := cmd.Flags().GetString("requested-by")
		if err := env.lifecycle.Cancel(ctx, args[0], requestedBy); err != nil {
			return eris.Wrap(err, "runs cancel")
		}

		fmt.Printf("Cancellation requested for run %s.\n", args[0])
		return nil
	},
}

// -- runs materialize --

var runsMaterializeCmd = &cobra.Command{
	Use:   "materialize <run-id>",
	Short: "Promote a dry run's candidates into companies, contacts, and leads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.mat.MaterializeRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs materialize")
		}

		fmt.Printf("Run %s materialized: %d companies, %d contacts, %d leads (%d skipped, %d errors).\n",
			run.ID, run.CreatedCompaniesCount, run.CreatedContactsCount, run.CreatedLeadsCount,
			run.SkippedCount, run.ErrorCount)
		return nil
	},
}

// -- runs archive / unarchive / delete --

func bulkCommand(use, short, action string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := initEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			actor, _ := cmd.Flags().GetString("actor")
			res, err := env.lifecycle.Bulk(ctx, action, args, actor)
			if err != nil {
				return eris.Wrapf(err, "runs %s", action)
			}

			fmt.Printf("%s applied to %d run(s).\n", action, res.Affected)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "who performed the action")
	return cmd
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (pending, running, completed, completed_with_errors, failed, cancelled)")
	runsListCmd.Flags().String("source-class", "", "filter by source class (manual, automated)")
	runsListCmd.Flags().String("archived", "", "filter by archival state (true or false)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCancelCmd.Flags().String("requested-by", "cli", "who requested the cancellation")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsCancelCmd)
	runsCmd.AddCommand(runsMaterializeCmd)
	runsCmd.AddCommand(bulkCommand("archive <run-id>...", "Archive runs", discovery.ActionArchive))
	runsCmd.AddCommand(bulkCommand("unarchive <run-id>...", "Unarchive runs", discovery.ActionUnarchive))
	runsCmd.AddCommand(bulkCommand("delete <run-id>...", "Delete archived runs permanently", discovery.ActionDelete))
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []discovery.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINTENT\tSTATUS\tDRY\tSOURCE\tCANDIDATES\tCREATED\tSTARTED")
	for _, r := range runs {
		created := fmt.Sprintf("%dc/%dl", r.CreatedCompaniesCount, r.CreatedLeadsCount)
		if r.DryRun {
			created = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\t%s\t%s\n",
			r.ID, r.IntentID, r.Status, r.DryRun, r.SourceClass,
			len(r.Results), created, r.StartedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
