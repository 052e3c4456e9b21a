package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/queue"
)

var recoverInterval time.Duration

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume memo events and run the ingestion pipeline",
	Long: `Consumes memo events from the configured queue backend and processes each
memo: document conversion, chunking, embedding, tags and summary. With
--recover-interval the worker also re-publishes stalled memos periodically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx, cfg, logger, err := setup(ctx)
		if err != nil {
			return err
		}

		a, err := openApp(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		proc, err := a.newProcessor(ctx)
		if err != nil {
			return err
		}

		consumer, err := queue.NewConsumer(ctx, cfg, a.db, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()

		runner := queue.NewRunner(consumer, a.store, proc, queue.RunnerConfig{
			MaxRetries:  cfg.Queue.MaxRetries,
			PollBackoff: cfg.Queue.PollBackoff,
			Workers:     cfg.Queue.Workers,
		}, logger.With().Str("backend", cfg.Queue.Backend).Logger())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runner.Run(gctx) })

		if recoverInterval > 0 {
			publisher, err := queue.NewPublisher(ctx, cfg, a.db)
			if err != nil {
				return err
			}
			defer publisher.Close()

			recoverer := engine.NewRecoverer(a.store, publisher, engine.RecoveryConfig{
				StaleProcessingAfter: cfg.Queue.StaleProcessingAfter,
			}, logger)
			g.Go(func() error {
				recoverer.Run(gctx, recoverInterval)
				return nil
			})
		}

		logger.Info().Str("backend", cfg.Queue.Backend).Msg("worker started")
		err = g.Wait()
		logger.Info().Msg("worker stopped")
		return err
	},
}

func init() {
	workerCmd.Flags().DurationVar(&recoverInterval, "recover-interval", 0, "re-publish stalled memos at this interval (0 disables)")
	rootCmd.AddCommand(workerCmd)
}
