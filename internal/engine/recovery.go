package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/storage"
)

// MemoPublisher enqueues a memo for processing.
type MemoPublisher interface {
	Publish(ctx context.Context, memoUUID string) error
}

// RecoveryConfig controls which memos count as stalled.
type RecoveryConfig struct {
	// ReceivedGrace is how long a memo may sit in received before it is
	// re-published. Default: 10m
	ReceivedGrace time.Duration

	// StaleProcessingAfter matches the processor's lease window. Default: 30m
	StaleProcessingAfter time.Duration

	// BatchSize caps memos re-published per pass. Default: 100
	BatchSize int
}

// Recoverer re-publishes memos whose queue message was lost: memos still
// received after a grace period and memos whose processing run died.
type Recoverer struct {
	store     storage.RecoveryLister
	publisher MemoPublisher
	config    RecoveryConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRecoverer creates a recoverer. Zero config values select defaults.
func NewRecoverer(store storage.RecoveryLister, publisher MemoPublisher, cfg RecoveryConfig, logger zerolog.Logger) *Recoverer {
	if cfg.ReceivedGrace <= 0 {
		cfg.ReceivedGrace = 10 * time.Minute
	}
	if cfg.StaleProcessingAfter <= 0 {
		cfg.StaleProcessingAfter = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Recoverer{
		store:     store,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Recover runs one pass and returns how many memos were re-published.
// Publish failures are logged and joined into the returned error; the pass
// continues with the remaining memos.
func (r *Recoverer) Recover(ctx context.Context) (int, error) {
	now := r.now()
	ids, err := r.store.ListStalled(ctx,
		now.Add(-r.config.ReceivedGrace),
		now.Add(-r.config.StaleProcessingAfter),
		r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled memos: %w", err)
	}

	if len(ids) == 0 {
		r.logger.Debug().Msg("no stalled memos to recover")
		return 0, nil
	}

	published := 0
	var errs []error
	for _, id := range ids {
		if err := r.publisher.Publish(ctx, id); err != nil {
			r.logger.Error().Err(err).Str("memo_uuid", id).Msg("failed to re-publish memo")
			errs = append(errs, fmt.Errorf("memo %s: %w", id, err))
			continue
		}
		published++
	}

	r.logger.Info().Int("published", published).Int("stalled", len(ids)).Msg("recovery pass complete")
	return published, errors.Join(errs...)
}

// Run repeats Recover every interval until ctx is cancelled.
func (r *Recoverer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Recover(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("recovery pass finished with errors")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
