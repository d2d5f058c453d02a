package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Push unconfirmed team limits to Stripe once and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if batch > 0 {
				a.cfg.ReconcileBatch = batch
			}

			report, err := a.reconcile(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "maximum subscriptions to check (overrides RECONCILE_BATCH)")
	return cmd
}
