package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/leaguebilling/pkg/config"
	"github.com/dmitrymomot/leaguebilling/pkg/httpserver"
	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/pkg/pg"
	"github.com/dmitrymomot/leaguebilling/pkg/redis"
	"github.com/dmitrymomot/leaguebilling/pkg/requestid"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
	"github.com/dmitrymomot/leaguebilling/svc/billing/pgstore"
	"github.com/dmitrymomot/leaguebilling/svc/billing/seasoncache"
	"github.com/dmitrymomot/leaguebilling/svc/billing/stripegw"
)

const serviceName = "leaguebilling"

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	SuccessURL string `env:"STRIPE_SUCCESS_URL"`
	CancelURL  string `env:"STRIPE_CANCEL_URL"`

	// Cron expression for the in-process drift pass, e.g. "@every 15m". Empty disables it.
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE"`
	ReconcileBatch    int    `env:"RECONCILE_BATCH" envDefault:"100"`
}

func loadConfig[T any](cmd *cobra.Command, v *T) error {
	files, err := cmd.Flags().GetStringSlice("env-file")
	if err != nil {
		return err
	}
	return config.Load(v, config.WithEnvFiles(files...))
}

func newLogger(cfg appConfig) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	return logger.New(opts...)
}

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg     appConfig
	log     *slog.Logger
	pool    *pgxpool.Pool
	redis   *goredis.Client
	service *billing.Service
	checks  []httpserver.Check
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("closing redis client", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// newApp connects postgres, redis and Stripe and builds the billing service.
func newApp(ctx context.Context, cmd *cobra.Command, reg prometheus.Registerer) (*app, error) {
	var (
		cfg      appConfig
		pgCfg    pg.Config
		redisCfg redis.Config
		cacheCfg seasoncache.Config
		gwCfg    stripegw.Config
	)
	if err := errors.Join(
		loadConfig(cmd, &cfg),
		loadConfig(cmd, &pgCfg),
		loadConfig(cmd, &redisCfg),
		loadConfig(cmd, &cacheCfg),
		loadConfig(cmd, &gwCfg),
	); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg, log: newLogger(cfg)}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = rdb

	gw, err := stripegw.New(gwCfg, stripegw.WithLogger(a.log))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}

	store := pgstore.New(pool)
	catalog := seasoncache.New(rdb, billing.NewStoreCatalog(store), cacheCfg, seasoncache.WithLogger(a.log))

	a.service = billing.NewService(store, gw, gwCfg.WebhookSecret,
		billing.WithLogger(a.log),
		billing.WithCatalog(catalog),
		billing.WithMetrics(billing.NewMetrics(reg)),
		billing.WithRedirectURLs(cfg.SuccessURL, cfg.CancelURL),
		billing.WithGatewayTimeout(gwCfg.Timeout),
	)
	a.checks = []httpserver.Check{
		{Name: "postgres", Fn: pg.Healthcheck(pool)},
		{Name: "redis", Fn: redis.Healthcheck(rdb)},
	}

	a.log.Info("billing service initialized",
		slog.String("version", version),
		logger.Duration(gwCfg.Timeout),
	)
	return a, nil
}

// reconcile runs one drift pass and logs its report.
func (a *app) reconcile(ctx context.Context) (billing.DriftReport, error) {
	start := time.Now()
	report, err := a.service.ReconcileDrift(ctx, a.cfg.ReconcileBatch)
	attrs := []any{
		slog.Int("checked", report.Checked),
		slog.Int("repaired", report.Repaired),
		slog.Int("in_sync", report.InSync),
		slog.Int("failed", report.Failed),
		logger.Duration(time.Since(start)),
	}
	if err != nil {
		a.log.ErrorContext(ctx, "drift reconciliation failed", append(attrs, logger.Error(err))...)
		return report, err
	}
	a.log.InfoContext(ctx, "drift reconciliation finished", attrs...)
	return report, nil
}
