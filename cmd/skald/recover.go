package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/queue"
)

var (
	recoverGrace time.Duration
	recoverBatch int
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-publish memos whose processing stalled",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		a, err := openApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		publisher, err := queue.NewPublisher(ctx, cfg, a.db)
		if err != nil {
			return err
		}
		defer publisher.Close()

		n, err := engine.NewRecoverer(a.store, publisher, engine.RecoveryConfig{
			ReceivedGrace:        recoverGrace,
			StaleProcessingAfter: cfg.Queue.StaleProcessingAfter,
			BatchSize:            recoverBatch,
		}, logger).Recover(ctx)

		fmt.Fprintf(cmd.OutOrStdout(), "re-published %d memos\n", n)
		return err
	},
}

func init() {
	recoverCmd.Flags().DurationVar(&recoverGrace, "grace", 10*time.Minute, "minimum age of a received memo")
	recoverCmd.Flags().IntVar(&recoverBatch, "batch", 100, "maximum memos to re-publish")
	rootCmd.AddCommand(recoverCmd)
}
