package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/leaguebilling/pkg/httpserver"
	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/svc/billing/httpapi"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the billing API and webhook endpoint",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	var httpCfg httpserver.Config
	if err := loadConfig(cmd, &httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}

	router := httpapi.NewRouter(a.service,
		httpapi.WithLogger(a.log),
		httpapi.WithReadinessChecks(0, a.checks...),
	)
	srv := httpserver.New(httpCfg, router, httpserver.WithLogger(a.log))

	var scheduler *cron.Cron
	if schedule := a.cfg.ReconcileSchedule; schedule != "" {
		scheduler = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := scheduler.AddFunc(schedule, func() { _, _ = a.reconcile(ctx) }); err != nil {
			return fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", schedule, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if scheduler != nil {
		g.Go(func() error {
			scheduler.Start()
			a.log.InfoContext(ctx, "drift reconciliation scheduled",
				logger.Component("cron"),
				slog.String("schedule", a.cfg.ReconcileSchedule),
			)
			<-ctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	return g.Wait()
}
