// Package queue delivers memo processing events from a message transport to
// the ingestion pipeline. Each backend implements Consumer according to its
// native delivery semantics; Runner holds the shared dispatch and retry logic.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedMessage is returned for message bodies without a memo UUID.
var ErrMalformedMessage = errors.New("malformed queue message")

// Message is one delivery from a transport.
type Message struct {
	// ID is the transport's message identifier, used for logging.
	ID   string
	Body []byte

	// ReadCount is how many times the transport has delivered this message,
	// including this delivery. Zero when the transport does not track it.
	ReadCount int

	EnqueuedAt time.Time

	// handle is the backend's receipt handle, delivery or message id.
	handle interface{}
}

// Consumer is a message transport. Receive blocks until at least one message
// is available, the backend's poll window elapses or ctx is cancelled.
type Consumer interface {
	Receive(ctx context.Context) ([]*Message, error)

	// Ack removes a processed message.
	Ack(ctx context.Context, msg *Message) error

	// Retry hands a failed message back for redelivery.
	Retry(ctx context.Context, msg *Message) error

	// DeadLetter moves a message that exhausted its retry budget aside.
	DeadLetter(ctx context.Context, msg *Message) error

	// Redelivery reports how messages passed to Retry come back.
	Redelivery() Redelivery

	Close() error
}

// Redelivery describes a transport's redelivery behavior.
type Redelivery int

const (
	// RedeliverOnTimeout: a retried or unsettled message becomes visible
	// again after its visibility timeout, as the same message with a higher
	// read count (sqs, pgmq).
	RedeliverOnTimeout Redelivery = iota

	// RedeliverNow: Retry puts the message back at once (amqp).
	RedeliverNow

	// RedeliverNever: the transport keeps no copy of delivered messages
	// (redis pub/sub).
	RedeliverNever
)

func (r Redelivery) String() string {
	switch r {
	case RedeliverOnTimeout:
		return "on-timeout"
	case RedeliverNow:
		return "now"
	case RedeliverNever:
		return "never"
	}
	return fmt.Sprintf("Redelivery(%d)", int(r))
}

// Publisher enqueues memos for processing.
type Publisher interface {
	Publish(ctx context.Context, memoUUID string) error
	Close() error
}

type memoEvent struct {
	MemoUUID string `json:"memo_uuid"`
}

// EncodeMessage returns the wire body for memoUUID.
func EncodeMessage(memoUUID string) ([]byte, error) {
	if strings.TrimSpace(memoUUID) == "" {
		return nil, fmt.Errorf("%w: empty memo_uuid", ErrMalformedMessage)
	}
	return json.Marshal(memoEvent{MemoUUID: memoUUID})
}

// DecodeMessage extracts the memo UUID from a message body.
func DecodeMessage(body []byte) (string, error) {
	var ev memoEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(ev.MemoUUID) == "" {
		return "", fmt.Errorf("%w: missing memo_uuid", ErrMalformedMessage)
	}
	return ev.MemoUUID, nil
}
