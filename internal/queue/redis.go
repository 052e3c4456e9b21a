package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConsumer receives memo events from a Redis pub/sub channel. Delivery
// is fire-and-forget: one message per Receive, no redelivery, so Ack, Retry
// and DeadLetter only log.
type RedisConsumer struct {
	client   goredis.UniversalClient
	sub      *goredis.PubSub
	messages <-chan *goredis.Message
	channel  string
	pollWait time.Duration
	seq      atomic.Uint64
	logger   zerolog.Logger
}

var _ Consumer = (*RedisConsumer)(nil)

// NewRedisConsumer subscribes to channel and waits for the subscription to
// be confirmed.
func NewRedisConsumer(ctx context.Context, client goredis.UniversalClient, channel string, pollWait time.Duration, logger zerolog.Logger) (*RedisConsumer, error) {
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	return &RedisConsumer{
		client:   client,
		sub:      sub,
		messages: sub.Channel(),
		channel:  channel,
		pollWait: pollWait,
		logger:   logger.With().Str("backend", "redis").Logger(),
	}, nil
}

// Receive returns the next published message, or nothing when the poll
// window elapses.
func (c *RedisConsumer) Receive(ctx context.Context) ([]*Message, error) {
	timer := time.NewTimer(c.pollWait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case m, ok := <-c.messages:
		if !ok {
			return nil, errors.New("redis subscription closed")
		}
		return []*Message{{
			ID:         c.channel + "-" + strconv.FormatUint(c.seq.Add(1), 10),
			Body:       []byte(m.Payload),
			EnqueuedAt: time.Now(),
		}}, nil
	}
}

func (c *RedisConsumer) Ack(ctx context.Context, msg *Message) error {
	return nil
}

// Retry is not supported by pub/sub; the failure has already been logged.
func (c *RedisConsumer) Retry(ctx context.Context, msg *Message) error {
	c.logger.Debug().Str("msg_id", msg.ID).Msg("pub/sub has no redelivery, dropping failed message")
	return nil
}

func (c *RedisConsumer) DeadLetter(ctx context.Context, msg *Message) error {
	return c.Retry(ctx, msg)
}

func (c *RedisConsumer) Redelivery() Redelivery { return RedeliverNever }

// Close ends the subscription. The client is owned by the caller.
func (c *RedisConsumer) Close() error {
	return c.sub.Close()
}

// RedisPublisher publishes memo events to a pub/sub channel.
type RedisPublisher struct {
	client  goredis.UniversalClient
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client goredis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the event. A message published with no subscriber is lost.
func (p *RedisPublisher) Publish(ctx context.Context, memoUUID string) error {
	body, err := EncodeMessage(memoUUID)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return nil
}

// newRedisClient parses a redis:// URL and verifies the connection.
func newRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
