package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaldlabs/skald-sub002/internal/config"
	"github.com/skaldlabs/skald-sub002/internal/queue"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <memo-uuid>...",
	Short: "Publish memo events to the configured queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		var db *sql.DB
		if cfg.Queue.Backend == config.BackendPGMQ {
			a, err := openApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()
			db = a.db
		}

		publisher, err := queue.NewPublisher(ctx, cfg, db)
		if err != nil {
			return err
		}
		defer publisher.Close()

		for _, id := range args {
			if err := publisher.Publish(ctx, id); err != nil {
				return fmt.Errorf("failed to enqueue %s: %w", id, err)
			}
			logger.Info().Str("memo_uuid", id).Msg("memo enqueued")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
