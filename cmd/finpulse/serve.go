package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/finpulse/finpulse/internal/httpapi"
	"github.com/finpulse/finpulse/internal/scheduler"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	// weight recalibration runs off the feedback processor's queue so a
	// failed adjustment never affects the user's request
	go a.adjuster.Run(ctx, a.feedback.AdjustQueue())

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
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	deps := httpapi.Deps{
		DB:       a.db,
		Ingest:   a.ingest,
		Pipeline: a.pipeline,
		Signals:  a.signals,
		Insights: a.insights,
		Suggest:  a.suggest,
		Weekly:   a.weekly,
		Feedback: a.feedback,
		Notify:   a.notify,
		Metrics:  a.metrics,
	}
	if a.rdb != nil {
		deps.Redis = a.rdb
	}
	server := httpapi.NewServer(a.cfg, deps, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	return server.Shutdown(context.Background())
}
