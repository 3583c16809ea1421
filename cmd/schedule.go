package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/discovery"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the configured daily discovery schedule",
	Long:  "Starts a cron scheduler that triggers automated discovery runs for each configured entry until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(cfg.Schedule.Entries) == 0 {
			return eris.New("no schedule entries configured")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

		for _, entry := range cfg.Schedule.Entries {
			entry := entry
			_, err := c.AddFunc(entry.Cron, func() {
				runScheduled(ctx, env, entry.Intent, entry.DryRun)
			})
			if err != nil {
				return eris.Wrapf(err, "schedule %q for intent %s", entry.Cron, entry.Intent)
			}
			zap.L().Info("scheduled intent",
				zap.String("intent", entry.Intent),
				zap.String("cron", entry.Cron),
				zap.Bool("dry_run", entry.DryRun),
			)
		}

		c.Start()
		<-ctx.Done()

		zap.L().Info("stopping scheduler")
		<-c.Stop().Done()
		return nil
	},
}

func runScheduled(ctx context.Context, env *appEnv, intentID string, dryRun bool) {
	run, err := env.engine.Start(ctx, discovery.StartRequest{
		IntentID:    intentID,
		DryRun:      dryRun,
		Mode:        discovery.ModeDaily,
		TriggeredBy: "cron",
	})
	if err != nil {
		zap.L().Error("scheduled run failed",
			zap.String("intent", intentID),
			zap.Error(err),
		)
		return
	}

	zap.L().Info("scheduled run finished",
		zap.String("intent", intentID),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("candidates", len(run.Results)),
	)
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
