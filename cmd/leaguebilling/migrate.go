package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/leaguebilling/pkg/pg"
	"github.com/dmitrymomot/leaguebilling/svc/billing/pgstore"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg   appConfig
				pgCfg pg.Config
			)
			if err := loadConfig(cmd, &cfg); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := loadConfig(cmd, &pgCfg); err != nil {
				return fmt.Errorf("load postgres config: %w", err)
			}
			log := newLogger(cfg)

			ctx := cmd.Context()
			pool, err := pg.Connect(ctx, pgCfg)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}
