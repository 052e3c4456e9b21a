package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PGMQConfig configures the Postgres-backed queue.
type PGMQConfig struct {
	Queue           string
	DeadLetterQueue string

	// BatchSize caps messages per read. Default: 10
	BatchSize int

	// PollWait is how long a read waits for messages. Default: 5s
	PollWait time.Duration

	// VisibilityTimeout hides a read message; a failed message is read
	// again once it expires. Default: 300s
	VisibilityTimeout time.Duration
}

// PGMQConsumer receives memo events from a pgmq queue. The extension tracks
// read counts, so exhausted messages are moved to the dead-letter queue
// explicitly.
type PGMQConsumer struct {
	db     *sql.DB
	config PGMQConfig
	logger zerolog.Logger
}

var _ Consumer = (*PGMQConsumer)(nil)

// NewPGMQConsumer creates a consumer on db. The pool is owned by the caller.
func NewPGMQConsumer(db *sql.DB, cfg PGMQConfig, logger zerolog.Logger) *PGMQConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 300 * time.Second
	}
	return &PGMQConsumer{
		db:     db,
		config: cfg,
		logger: logger.With().Str("backend", "pgmq").Logger(),
	}
}

// EnsureQueues creates the source and dead-letter queues if missing.
func (c *PGMQConsumer) EnsureQueues(ctx context.Context) error {
	for _, q := range []string{c.config.Queue, c.config.DeadLetterQueue} {
		if _, err := c.db.ExecContext(ctx, `SELECT pgmq.create($1)`, q); err != nil {
			return fmt.Errorf("pgmq create %s: %w", q, err)
		}
	}
	return nil
}

func (c *PGMQConsumer) Receive(ctx context.Context) ([]*Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT msg_id, read_ct, enqueued_at, message::text
		FROM pgmq.read_with_poll($1, $2, $3, $4)`,
		c.config.Queue,
		int(c.config.VisibilityTimeout/time.Second),
		c.config.BatchSize,
		max(int(c.config.PollWait/time.Second), 1),
	)
	if err != nil {
		return nil, fmt.Errorf("pgmq read: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			id   int64
			msg  Message
			body string
		)
		if err := rows.Scan(&id, &msg.ReadCount, &msg.EnqueuedAt, &body); err != nil {
			return nil, fmt.Errorf("pgmq scan: %w", err)
		}
		msg.ID = strconv.FormatInt(id, 10)
		msg.Body = []byte(body)
		msg.handle = id
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgmq read: %w", err)
	}
	return msgs, nil
}

func (c *PGMQConsumer) msgID(msg *Message) (int64, error) {
	id, ok := msg.handle.(int64)
	if !ok {
		return 0, fmt.Errorf("pgmq message %s has no msg_id", msg.ID)
	}
	return id, nil
}

// Ack deletes the message.
func (c *PGMQConsumer) Ack(ctx context.Context, msg *Message) error {
	id, err := c.msgID(msg)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `SELECT pgmq.delete($1, $2::bigint)`, c.config.Queue, id); err != nil {
		return fmt.Errorf("pgmq delete %d: %w", id, err)
	}
	return nil
}

// Retry leaves the message to become visible again when its visibility
// timeout expires.
func (c *PGMQConsumer) Retry(ctx context.Context, msg *Message) error {
	return nil
}

// DeadLetter copies the stored message to the dead-letter queue and archives
// the source message, in one transaction. The copy is taken from the queue
// table, so the dead-letter body is the value pgmq stored for the message.
func (c *PGMQConsumer) DeadLetter(ctx context.Context, msg *Message) error {
	id, err := c.msgID(msg)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgmq begin: %w", err)
	}
	defer tx.Rollback()

	var sent int64
	err = tx.QueryRowContext(ctx,
		`SELECT pgmq.send($1, q.message) FROM pgmq.`+pq.QuoteIdentifier("q_"+c.config.Queue)+` q WHERE q.msg_id = $2`,
		c.config.DeadLetterQueue, id).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("pgmq message %d no longer in %s", id, c.config.Queue)
	}
	if err != nil {
		return fmt.Errorf("pgmq send to %s: %w", c.config.DeadLetterQueue, err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pgmq.archive($1, $2::bigint)`, c.config.Queue, id); err != nil {
		return fmt.Errorf("pgmq archive %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgmq commit: %w", err)
	}

	c.logger.Info().Str("msg_id", msg.ID).Str("dead_letter_queue", c.config.DeadLetterQueue).Msg("message archived to dead-letter queue")
	return nil
}

func (c *PGMQConsumer) Redelivery() Redelivery { return RedeliverOnTimeout }

// Close is a no-op; the pool is shared with the memo store.
func (c *PGMQConsumer) Close() error {
	return nil
}

// PGMQPublisher sends memo events to a pgmq queue.
type PGMQPublisher struct {
	db    *sql.DB
	queue string
}

var _ Publisher = (*PGMQPublisher)(nil)

func NewPGMQPublisher(db *sql.DB, queue string) *PGMQPublisher {
	return &PGMQPublisher{db: db, queue: queue}
}

func (p *PGMQPublisher) Publish(ctx context.Context, memoUUID string) error {
	body, err := EncodeMessage(memoUUID)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pgmq.send($1, $2::jsonb)`, p.queue, string(body)); err != nil {
		return fmt.Errorf("pgmq send: %w", err)
	}
	return nil
}

func (p *PGMQPublisher) Close() error {
	return nil
}
