package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/finpulse/finpulse/internal/scheduler"
)

// runSchedule executes the selected jobs once and exits, for cron-less
// deployments and manual recovery.
func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	sched := scheduler.New(scheduler.Deps{
		DB:       a.db,
		Pipeline: a.pipeline,
		Summary:  a.weekly,
		Notify:   a.notify,
		Suggest:  a.suggest,
		Signals:  a.signals,
		Audit:    a.trail,
		Metrics:  a.metrics,
	}, a.cfg.Schedule, log.Logger)

	weeklyRun, _ := cmd.Flags().GetBool("weekly")
	sweep, _ := cmd.Flags().GetBool("sweep")
	retryDays, _ := cmd.Flags().GetInt("retry-days")

	if !weeklyRun && !sweep && retryDays == 0 {
		log.Warn().Msg("nothing to do, pass --weekly, --sweep or --retry-days")
		return nil
	}
	if weeklyRun {
		sched.RunWeekly(ctx)
	}
	if retryDays > 0 {
		sched.RetryFailed(ctx, retryDays)
	}
	if sweep {
		sched.RunDailySweep(ctx)
	}
	return nil
}
