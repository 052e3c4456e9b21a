package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// sqsMaxMessages is the SQS per-call receive limit.
const sqsMaxMessages = 10

// SQSAPI is the subset of the SQS client the backend uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConfig configures an SQS consumer.
type SQSConfig struct {
	QueueURL string

	// BatchSize is capped at 10. Default: 10
	BatchSize int

	// PollWait is the long-poll wait, whole seconds up to 20. Default: 5s
	PollWait time.Duration

	// VisibilityTimeout hides a received message from other consumers.
	// A failed message reappears once it expires. Default: 300s
	VisibilityTimeout time.Duration
}

// SQSConsumer receives memo events from an SQS queue. Failed messages are
// left to reappear after the visibility timeout; dead-lettering is handled by
// the queue's redrive policy.
type SQSConsumer struct {
	api    SQSAPI
	config SQSConfig
	logger zerolog.Logger
}

var _ Consumer = (*SQSConsumer)(nil)

func NewSQSConsumer(api SQSAPI, cfg SQSConfig, logger zerolog.Logger) *SQSConsumer {
	if cfg.BatchSize <= 0 || cfg.BatchSize > sqsMaxMessages {
		cfg.BatchSize = sqsMaxMessages
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	if cfg.PollWait > 20*time.Second {
		cfg.PollWait = 20 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 300 * time.Second
	}
	return &SQSConsumer{
		api:    api,
		config: cfg,
		logger: logger.With().Str("backend", "sqs").Logger(),
	}
}

func (c *SQSConsumer) Receive(ctx context.Context) ([]*Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.config.QueueURL),
		MaxNumberOfMessages: int32(c.config.BatchSize),
		WaitTimeSeconds:     int32(c.config.PollWait / time.Second),
		VisibilityTimeout:   int32(c.config.VisibilityTimeout / time.Second),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	msgs := make([]*Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := &Message{
			ID:     aws.ToString(m.MessageId),
			Body:   []byte(aws.ToString(m.Body)),
			handle: aws.ToString(m.ReceiptHandle),
		}
		if v, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			msg.ReadCount, _ = strconv.Atoi(v)
		}
		if v, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]; ok {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				msg.EnqueuedAt = time.UnixMilli(ms)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ack deletes the message.
func (c *SQSConsumer) Ack(ctx context.Context, msg *Message) error {
	handle, _ := msg.handle.(string)
	if handle == "" {
		return fmt.Errorf("sqs message %s has no receipt handle", msg.ID)
	}
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete %s: %w", msg.ID, err)
	}
	return nil
}

// Retry leaves the message invisible until its visibility timeout expires.
func (c *SQSConsumer) Retry(ctx context.Context, msg *Message) error {
	return nil
}

// DeadLetter leaves the message to the queue's redrive policy.
func (c *SQSConsumer) DeadLetter(ctx context.Context, msg *Message) error {
	c.logger.Debug().Str("msg_id", msg.ID).Msg("leaving message to the queue redrive policy")
	return nil
}

func (c *SQSConsumer) Redelivery() Redelivery { return RedeliverOnTimeout }

func (c *SQSConsumer) Close() error {
	return nil
}

// SQSPublisher sends memo events to an SQS queue.
type SQSPublisher struct {
	api      SQSAPI
	queueURL string
}

var _ Publisher = (*SQSPublisher)(nil)

func NewSQSPublisher(api SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{api: api, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, memoUUID string) error {
	body, err := EncodeMessage(memoUUID)
	if err != nil {
		return err
	}
	_, err = p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

func (p *SQSPublisher) Close() error {
	return nil
}

// newSQSClient builds a client from the default AWS credential chain. A
// non-empty endpoint targets a local emulator.
func newSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}
