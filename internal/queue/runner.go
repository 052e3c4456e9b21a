package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/storage"
)

// MemoProcessor runs the ingestion pipeline for one memo.
type MemoProcessor interface {
	Process(ctx context.Context, store engine.MemoSession, memoUUID string) error
}

var _ MemoProcessor = (*engine.Processor)(nil)

// RunnerConfig holds the retry policy and worker pool size.
type RunnerConfig struct {
	// MaxRetries is the delivery count at which a failed message is
	// dead-lettered. Only consulted when the transport reports read counts.
	// Default: 3
	MaxRetries int

	// PollBackoff is the pause after a failed Receive, and before a busy
	// memo's message is requeued on transports that redeliver at once.
	// Default: 5s
	PollBackoff time.Duration

	// Workers bounds concurrently processed messages. Default: 10
	Workers int
}

// Runner pulls messages from a Consumer and processes each one in its own
// storage session.
type Runner struct {
	consumer  Consumer
	sessions  storage.SessionFactory
	processor MemoProcessor
	config    RunnerConfig
	logger    zerolog.Logger
}

// NewRunner creates a runner. Zero config values select defaults.
func NewRunner(consumer Consumer, sessions storage.SessionFactory, processor MemoProcessor, cfg RunnerConfig, logger zerolog.Logger) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	return &Runner{
		consumer:  consumer,
		sessions:  sessions,
		processor: processor,
		config:    cfg,
		logger:    logger,
	}
}

// Run consumes messages until ctx is cancelled. Transport failures never
// stop the loop. Messages already received when ctx is cancelled are
// processed to completion before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	r.logger.Info().Int("workers", r.config.Workers).Int("max_retries", r.config.MaxRetries).Msg("queue runner started")

	for {
		if ctx.Err() != nil {
			r.logger.Info().Msg("queue runner stopped")
			return nil
		}

		msgs, err := r.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Error().Err(err).Dur("backoff", r.config.PollBackoff).Msg("failed to receive messages")
			sleep(ctx, r.config.PollBackoff)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		r.dispatch(context.WithoutCancel(ctx), pool, msgs)
	}
}

// dispatch processes a batch concurrently and waits for all of it. One
// message's failure never affects its siblings.
func (r *Runner) dispatch(ctx context.Context, pool *ants.Pool, msgs []*Message) {
	var wg sync.WaitGroup
	for _, msg := range msgs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			r.Handle(ctx, msg)
		}
		if err := pool.Submit(task); err != nil {
			r.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("worker pool rejected message, processing inline")
			task()
		}
	}
	wg.Wait()
}

// Handle processes one message and settles it with the transport.
//
// A busy memo is owned by a live run on another delivery; its message is
// handed back with Retry, never acknowledged.
func (r *Runner) Handle(ctx context.Context, msg *Message) {
	logger := r.logger.With().Str("msg_id", msg.ID).Int("read_count", msg.ReadCount).Logger()

	err := r.process(ctx, msg)
	switch {
	case err == nil:
		r.ack(ctx, msg, logger)
	case errors.Is(err, engine.ErrMemoBusy):
		logger.Info().Err(err).Msg("memo owned by another run, returning message")
		if r.consumer.Redelivery() == RedeliverNow {
			// Requeueing at once would spin against the live lease.
			sleep(ctx, r.config.PollBackoff)
		}
		r.retry(ctx, msg, logger)
	default:
		r.fail(ctx, msg, err, logger)
	}
}

func (r *Runner) process(ctx context.Context, msg *Message) error {
	memoUUID, err := DecodeMessage(msg.Body)
	if err != nil {
		return err
	}

	session, err := r.sessions.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage session: %w", err)
	}
	defer session.Close()

	return r.processor.Process(ctx, session, memoUUID)
}

func (r *Runner) ack(ctx context.Context, msg *Message, logger zerolog.Logger) {
	if err := r.consumer.Ack(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("failed to acknowledge message")
	}
}

// fail settles a failed message. Permanent failures are dead-lettered at
// once unless the transport redelivers on a timeout, where they spend the
// read-count budget like any other failure.
func (r *Runner) fail(ctx context.Context, msg *Message, cause error, logger zerolog.Logger) {
	exhausted := msg.ReadCount > 0 && msg.ReadCount >= r.config.MaxRetries
	permanent := isPermanent(cause) && r.consumer.Redelivery() != RedeliverOnTimeout

	switch {
	case permanent:
		logger.Error().Err(cause).Msg("message cannot succeed, moving to dead-letter queue")
		r.deadLetter(ctx, msg, logger)
	case exhausted:
		logger.Error().Err(cause).Int("max_retries", r.config.MaxRetries).
			Msg("message exhausted its retries, moving to dead-letter queue")
		r.deadLetter(ctx, msg, logger)
	default:
		logger.Warn().Err(cause).Msg("message processing failed, will retry")
		r.retry(ctx, msg, logger)
	}
}

func (r *Runner) retry(ctx context.Context, msg *Message, logger zerolog.Logger) {
	if err := r.consumer.Retry(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("failed to return message for retry")
	}
}

func (r *Runner) deadLetter(ctx context.Context, msg *Message, logger zerolog.Logger) {
	if err := r.consumer.DeadLetter(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("failed to dead-letter message")
	}
}

// isPermanent reports errors that no redelivery can fix.
func isPermanent(err error) bool {
	return errors.Is(err, engine.ErrMemoNotFound) || errors.Is(err, ErrMalformedMessage)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
