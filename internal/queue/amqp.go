package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPConfig configures a RabbitMQ consumer.
type AMQPConfig struct {
	URL   string
	Queue string

	// DeadLetterExchange receives rejected messages. Declared on the queue
	// as x-dead-letter-exchange when set.
	DeadLetterExchange string

	// Prefetch bounds unacknowledged deliveries. Default: 10
	Prefetch int

	// BatchSize caps messages per Receive. Default: 10
	BatchSize int

	// PollWait is how long Receive waits for the first delivery. Default: 5s
	PollWait time.Duration
}

// AMQPConsumer receives memo events from a RabbitMQ queue. Retry requeues
// the delivery; DeadLetter rejects it so the broker routes it to the
// dead-letter exchange. A closed delivery channel, as after a lost broker
// connection, is replaced by dialing again on the next Receive.
type AMQPConsumer struct {
	dial   amqpDialer
	config AMQPConfig
	logger zerolog.Logger

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
	release    func() error
}

var _ Consumer = (*AMQPConsumer)(nil)

// amqpDialer opens a consuming session and returns its delivery channel and a
// function that tears the session down.
type amqpDialer func() (<-chan amqp.Delivery, func() error, error)

// NewAMQPConsumer dials the broker, declares the queue and starts consuming
// with manual acknowledgement.
func NewAMQPConsumer(cfg AMQPConfig, logger zerolog.Logger) (*AMQPConsumer, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}

	dial := func() (<-chan amqp.Delivery, func() error, error) {
		conn, ch, err := dialAMQP(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("amqp qos: %w", err)
		}
		deliveries, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("amqp consume %s: %w", cfg.Queue, err)
		}
		return deliveries, conn.Close, nil
	}

	c := newAMQPConsumer(dial, cfg, logger)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newAMQPConsumer(dial amqpDialer, cfg AMQPConfig, logger zerolog.Logger) *AMQPConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	return &AMQPConsumer{
		dial:   dial,
		config: cfg,
		logger: logger.With().Str("backend", "amqp").Logger(),
	}
}

// connect drops the current session, if any, and dials a new one.
func (c *AMQPConsumer) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.release != nil {
		_ = c.release()
		c.release = nil
	}
	c.deliveries = nil

	deliveries, release, err := c.dial()
	if err != nil {
		return err
	}
	c.deliveries, c.release = deliveries, release
	return nil
}

func (c *AMQPConsumer) channel() <-chan amqp.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveries
}

// Receive waits up to PollWait for a delivery, then takes whatever else is
// already buffered up to BatchSize. It reconnects when the delivery channel
// has closed and returns an error only when dialing fails.
func (c *AMQPConsumer) Receive(ctx context.Context) ([]*Message, error) {
	deliveries := c.channel()
	if deliveries == nil {
		if err := c.connect(); err != nil {
			return nil, fmt.Errorf("amqp reconnect: %w", err)
		}
		c.logger.Info().Msg("amqp consumer reconnected")
		deliveries = c.channel()
	}

	timer := time.NewTimer(c.config.PollWait)
	defer timer.Stop()

	var first amqp.Delivery
	for received := false; !received; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn().Msg("amqp delivery channel closed, reconnecting")
				if err := c.connect(); err != nil {
					return nil, fmt.Errorf("amqp reconnect: %w", err)
				}
				c.logger.Info().Msg("amqp consumer reconnected")
				deliveries = c.channel()
				continue
			}
			first, received = d, true
		}
	}

	msgs := []*Message{c.toMessage(first)}
	for len(msgs) < c.config.BatchSize {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return msgs, nil
			}
			msgs = append(msgs, c.toMessage(d))
		default:
			return msgs, nil
		}
	}
	return msgs, nil
}

func (c *AMQPConsumer) toMessage(d amqp.Delivery) *Message {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	return &Message{
		ID:         id,
		Body:       d.Body,
		ReadCount:  deliveryCount(d),
		EnqueuedAt: d.Timestamp,
		handle:     d,
	}
}

// deliveryCount reads the quorum queue x-delivery-count header, which counts
// earlier deliveries. Classic queues do not track it and yield 0.
func deliveryCount(d amqp.Delivery) int {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	return 0
}

func (c *AMQPConsumer) delivery(msg *Message) (amqp.Delivery, error) {
	d, ok := msg.handle.(amqp.Delivery)
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("amqp message %s has no delivery", msg.ID)
	}
	return d, nil
}

func (c *AMQPConsumer) Ack(ctx context.Context, msg *Message) error {
	d, err := c.delivery(msg)
	if err != nil {
		return err
	}
	return d.Ack(false)
}

// Retry requeues the delivery on the source queue.
func (c *AMQPConsumer) Retry(ctx context.Context, msg *Message) error {
	d, err := c.delivery(msg)
	if err != nil {
		return err
	}
	return d.Nack(false, true)
}

// DeadLetter rejects the delivery without requeueing.
func (c *AMQPConsumer) DeadLetter(ctx context.Context, msg *Message) error {
	d, err := c.delivery(msg)
	if err != nil {
		return err
	}
	return d.Nack(false, false)
}

func (c *AMQPConsumer) Redelivery() Redelivery { return RedeliverNow }

// Close releases the channel and the connection.
func (c *AMQPConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.release == nil {
		return nil
	}
	err := c.release()
	c.release, c.deliveries = nil, nil
	return err
}

// AMQPPublisher publishes persistent memo events to the queue through the
// default exchange.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

var _ Publisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	conn, ch, err := dialAMQP(cfg)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, queue: cfg.Queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, memoUUID string) error {
	body, err := EncodeMessage(memoUUID)
	if err != nil {
		return err
	}
	err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return errors.Join(p.channel.Close(), p.conn.Close())
}

// dialAMQP connects, opens a channel and declares the durable queue.
func dialAMQP(cfg AMQPConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}

	var args amqp.Table
	if cfg.DeadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": cfg.DeadLetterExchange}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp declare %s: %w", cfg.Queue, err)
	}
	return conn, ch, nil
}
