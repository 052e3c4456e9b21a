package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/config"
)

// NewConsumer creates the consumer selected by QUEUE_BACKEND. db is only used
// by the pgmq backend and may be nil otherwise.
func NewConsumer(ctx context.Context, cfg *config.Config, db *sql.DB, logger zerolog.Logger) (Consumer, error) {
	q := cfg.Queue
	switch q.Backend {
	case config.BackendRedis:
		client, err := newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		c, err := NewRedisConsumer(ctx, client, cfg.Redis.Channel, q.PollWait, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ownedConsumer{Consumer: c, release: client.Close}, nil

	case config.BackendSQS:
		client, err := newSQSClient(ctx, cfg.SQS.Region, cfg.SQS.Endpoint)
		if err != nil {
			return nil, err
		}
		return NewSQSConsumer(client, SQSConfig{
			QueueURL:          cfg.SQS.QueueURL,
			BatchSize:         q.BatchSize,
			PollWait:          q.PollWait,
			VisibilityTimeout: q.VisibilityTimeout,
		}, logger), nil

	case config.BackendAMQP:
		return NewAMQPConsumer(AMQPConfig{
			URL:                cfg.AMQP.URL,
			Queue:              cfg.AMQP.Queue,
			DeadLetterExchange: cfg.AMQP.DeadLetterExchange,
			Prefetch:           cfg.AMQP.Prefetch,
			BatchSize:          q.BatchSize,
			PollWait:           q.PollWait,
		}, logger)

	case config.BackendPGMQ:
		if db == nil {
			return nil, errors.New("pgmq backend needs a postgres connection pool")
		}
		c := NewPGMQConsumer(db, PGMQConfig{
			Queue:             cfg.PGMQ.Queue,
			DeadLetterQueue:   cfg.PGMQ.DeadLetterQueue,
			BatchSize:         q.BatchSize,
			PollWait:          q.PollWait,
			VisibilityTimeout: q.VisibilityTimeout,
		}, logger)
		if err := c.EnsureQueues(ctx); err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unsupported queue backend: %q", q.Backend)
	}
}

// NewPublisher creates the publisher for QUEUE_BACKEND.
func NewPublisher(ctx context.Context, cfg *config.Config, db *sql.DB) (Publisher, error) {
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		client, err := newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return &ownedPublisher{Publisher: NewRedisPublisher(client, cfg.Redis.Channel), release: client.Close}, nil

	case config.BackendSQS:
		client, err := newSQSClient(ctx, cfg.SQS.Region, cfg.SQS.Endpoint)
		if err != nil {
			return nil, err
		}
		return NewSQSPublisher(client, cfg.SQS.QueueURL), nil

	case config.BackendAMQP:
		return NewAMQPPublisher(AMQPConfig{
			URL:                cfg.AMQP.URL,
			Queue:              cfg.AMQP.Queue,
			DeadLetterExchange: cfg.AMQP.DeadLetterExchange,
		})

	case config.BackendPGMQ:
		if db == nil {
			return nil, errors.New("pgmq backend needs a postgres connection pool")
		}
		return NewPGMQPublisher(db, cfg.PGMQ.Queue), nil

	default:
		return nil, fmt.Errorf("unsupported queue backend: %q", cfg.Queue.Backend)
	}
}

// ownedConsumer closes a client the factory created alongside the consumer.
type ownedConsumer struct {
	Consumer
	release func() error
}

func (c *ownedConsumer) Close() error {
	return errors.Join(c.Consumer.Close(), c.release())
}

type ownedPublisher struct {
	Publisher
	release func() error
}

func (p *ownedPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.release())
}
