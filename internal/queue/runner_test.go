package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/llm"
	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/internal/storage/sqlite"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// fakeConsumer replays scripted Receive results, then cancels the run.
type fakeConsumer struct {
	mu      sync.Mutex
	batches [][]*Message
	errs    []error
	cancel  context.CancelFunc

	redelivery Redelivery

	acked    []string
	retried  []string
	dead     []string
	receives int
}

func (f *fakeConsumer) Receive(ctx context.Context) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.batches) == 0 {
		f.cancel()
		return nil, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeConsumer) Ack(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msg.ID)
	return nil
}

func (f *fakeConsumer) Retry(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, msg.ID)
	return nil
}

func (f *fakeConsumer) DeadLetter(_ context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, msg.ID)
	return nil
}

func (f *fakeConsumer) Redelivery() Redelivery { return f.redelivery }

func (f *fakeConsumer) Close() error { return nil }

type fakeSession struct {
	storage.Session
	closed *int
	mu     *sync.Mutex
}

func (s fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.closed++
	return nil
}

type fakeSessions struct {
	mu     sync.Mutex
	opened int
	closed int
	err    error
}

func (f *fakeSessions) Session(context.Context) (storage.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened++
	return fakeSession{closed: &f.closed, mu: &f.mu}, nil
}

// fakeProcessor returns a scripted error per memo UUID.
type fakeProcessor struct {
	mu      sync.Mutex
	results map[string]error
	calls   []string
	onCall  func(memoUUID string)
}

func (f *fakeProcessor) Process(_ context.Context, _ engine.MemoSession, memoUUID string) error {
	if f.onCall != nil {
		f.onCall(memoUUID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, memoUUID)
	return f.results[memoUUID]
}

func msg(id, memoUUID string, readCount int) *Message {
	return &Message{ID: id, Body: []byte(fmt.Sprintf(`{"memo_uuid":%q}`, memoUUID)), ReadCount: readCount}
}

func newTestRunner(consumer Consumer, sessions storage.SessionFactory, proc MemoProcessor) *Runner {
	return NewRunner(consumer, sessions, proc, RunnerConfig{MaxRetries: 3, PollBackoff: time.Millisecond, Workers: 4}, zerolog.Nop())
}

func TestRunner_Handle_Outcomes(t *testing.T) {
	proc := &fakeProcessor{results: map[string]error{
		"busy":      fmt.Errorf("%w: busy", engine.ErrMemoBusy),
		"transient": errors.New("embedding provider timeout"),
		"missing":   fmt.Errorf("%w: missing", engine.ErrMemoNotFound),
	}}

	tests := []struct {
		name     string
		msg      *Message
		acked    bool
		retried  bool
		deadLtrd bool
	}{
		{name: "success acks", msg: msg("1", "ok", 1), acked: true},
		{name: "busy memo returns message", msg: msg("2", "busy", 1), retried: true},
		{name: "failure below budget retries", msg: msg("3", "transient", 2), retried: true},
		{name: "failure at budget dead-letters", msg: msg("4", "transient", 3), deadLtrd: true},
		{name: "failure above budget dead-letters", msg: msg("5", "transient", 7), deadLtrd: true},
		{name: "untracked read count always retries", msg: msg("6", "transient", 0), retried: true},
		{name: "missing memo follows failure path", msg: msg("7", "missing", 1), retried: true},
		{name: "missing memo counts toward budget", msg: msg("8", "missing", 3), deadLtrd: true},
		{name: "malformed body retries", msg: &Message{ID: "9", Body: []byte(`not json`), ReadCount: 1}, retried: true},
		{name: "malformed body dead-letters at budget", msg: &Message{ID: "10", Body: []byte(`{}`), ReadCount: 3}, deadLtrd: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &fakeConsumer{}
			r := newTestRunner(consumer, &fakeSessions{}, proc)

			r.Handle(context.Background(), tt.msg)

			assert.Equal(t, tt.acked, len(consumer.acked) == 1, "acked")
			assert.Equal(t, tt.retried, len(consumer.retried) == 1, "retried")
			assert.Equal(t, tt.deadLtrd, len(consumer.dead) == 1, "dead-lettered")
		})
	}
}

func TestRunner_Handle_ImmediateRedeliveryOutcomes(t *testing.T) {
	proc := &fakeProcessor{results: map[string]error{
		"busy":      fmt.Errorf("%w: busy", engine.ErrMemoBusy),
		"transient": errors.New("embedding provider timeout"),
		"missing":   fmt.Errorf("%w: missing", engine.ErrMemoNotFound),
	}}

	tests := []struct {
		name     string
		msg      *Message
		retried  bool
		deadLtrd bool
	}{
		{name: "missing memo dead-letters without read count", msg: msg("1", "missing", 0), deadLtrd: true},
		{name: "missing memo dead-letters on first delivery", msg: msg("2", "missing", 1), deadLtrd: true},
		{name: "malformed body dead-letters", msg: &Message{ID: "3", Body: []byte(`not json`)}, deadLtrd: true},
		{name: "transient failure retries", msg: msg("4", "transient", 0), retried: true},
		{name: "transient failure dead-letters at budget", msg: msg("5", "transient", 3), deadLtrd: true},
		{name: "busy memo requeues", msg: msg("6", "busy", 0), retried: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &fakeConsumer{redelivery: RedeliverNow}
			r := newTestRunner(consumer, &fakeSessions{}, proc)

			r.Handle(context.Background(), tt.msg)

			assert.Empty(t, consumer.acked, "acked")
			assert.Equal(t, tt.retried, len(consumer.retried) == 1, "retried")
			assert.Equal(t, tt.deadLtrd, len(consumer.dead) == 1, "dead-lettered")
		})
	}
}

func TestRunner_Handle_AMQPMissingMemoIsRejected(t *testing.T) {
	acker := &fakeAcker{}
	deliveries := make(chan amqp.Delivery, 50)
	for i := 1; i <= 50; i++ {
		deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: uint64(i), Body: []byte(`{"memo_uuid":"m1"}`)}
	}
	consumer := newAMQPConsumer(staticDeliveries(deliveries), AMQPConfig{BatchSize: 10, PollWait: 10 * time.Millisecond}, zerolog.Nop())
	proc := &fakeProcessor{results: map[string]error{"m1": fmt.Errorf("%w: m1", engine.ErrMemoNotFound)}}
	r := newTestRunner(consumer, &fakeSessions{}, proc)

	ctx := context.Background()
	for {
		msgs, err := consumer.Receive(ctx)
		require.NoError(t, err)
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			r.Handle(ctx, m)
		}
	}

	assert.Len(t, acker.rejected, 50)
	assert.Empty(t, acker.requeued)
	assert.Empty(t, acker.acked)
}

func TestRunner_Handle_MalformedSkipsProcessor(t *testing.T) {
	proc := &fakeProcessor{}
	sessions := &fakeSessions{}
	r := newTestRunner(&fakeConsumer{}, sessions, proc)

	r.Handle(context.Background(), &Message{ID: "1", Body: []byte(`{"other":"x"}`)})

	assert.Empty(t, proc.calls)
	assert.Zero(t, sessions.opened)
}

func TestRunner_Handle_SessionPerMessage(t *testing.T) {
	sessions := &fakeSessions{}
	r := newTestRunner(&fakeConsumer{}, sessions, &fakeProcessor{})

	r.Handle(context.Background(), msg("1", "a", 1))
	r.Handle(context.Background(), msg("2", "b", 1))

	assert.Equal(t, 2, sessions.opened)
	assert.Equal(t, 2, sessions.closed)
}

func TestRunner_Handle_SessionFailureRetries(t *testing.T) {
	consumer := &fakeConsumer{}
	proc := &fakeProcessor{}
	r := newTestRunner(consumer, &fakeSessions{err: errors.New("pool exhausted")}, proc)

	r.Handle(context.Background(), msg("1", "a", 1))

	assert.Empty(t, proc.calls)
	assert.Equal(t, []string{"1"}, consumer.retried)
}

func TestRunner_Run_BatchFailureIsolated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &fakeConsumer{
		cancel: cancel,
		batches: [][]*Message{{
			msg("1", "a", 1),
			msg("2", "bad", 1),
			msg("3", "c", 1),
		}, {
			msg("4", "d", 1),
		}},
	}
	proc := &fakeProcessor{results: map[string]error{"bad": errors.New("boom")}}
	r := newTestRunner(consumer, &fakeSessions{}, proc)

	require.NoError(t, r.Run(ctx))

	assert.ElementsMatch(t, []string{"a", "bad", "c", "d"}, proc.calls)
	assert.ElementsMatch(t, []string{"1", "3", "4"}, consumer.acked)
	assert.Equal(t, []string{"2"}, consumer.retried)
	assert.Empty(t, consumer.dead)
}

func TestRunner_Run_ReceiveErrorsBackOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &fakeConsumer{
		cancel:  cancel,
		errs:    []error{errors.New("connection refused"), errors.New("connection refused")},
		batches: [][]*Message{{msg("1", "a", 1)}},
	}
	proc := &fakeProcessor{}
	r := newTestRunner(consumer, &fakeSessions{}, proc)

	require.NoError(t, r.Run(ctx))

	assert.Equal(t, 4, consumer.receives)
	assert.Equal(t, []string{"1"}, consumer.acked)
}

func TestRunner_Run_DrainsInFlightOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &fakeConsumer{cancel: cancel, batches: [][]*Message{{msg("1", "slow", 1)}}}
	var finished bool
	proc := &fakeProcessor{onCall: func(string) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		finished = true
	}}
	r := newTestRunner(consumer, &fakeSessions{}, proc)

	require.NoError(t, r.Run(ctx))

	assert.True(t, finished)
	assert.Equal(t, []string{"1"}, consumer.acked)
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string, llm.EmbeddingPurpose) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (constEmbedder) GetModel() string { return "const" }

func TestRunner_WithPipeline(t *testing.T) {
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	memo := &types.Memo{ProjectUUID: "p1", OrganizationUUID: "o1", Title: "Doc"}
	require.NoError(t, store.CreateMemo(ctx, memo, "Some content worth chunking."))

	proc, err := engine.NewProcessor(engine.Dependencies{Embedder: constEmbedder{}, Logger: zerolog.Nop()}, engine.ProcessorConfig{})
	require.NoError(t, err)

	consumer := &fakeConsumer{}
	r := newTestRunner(consumer, store, proc)

	r.Handle(ctx, msg("1", memo.UUID, 1))
	r.Handle(ctx, msg("2", "m1", 1))

	assert.Equal(t, []string{"1"}, consumer.acked)
	assert.Equal(t, []string{"2"}, consumer.retried)

	got, _, err := store.GetMemoWithContent(ctx, memo.UUID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessed, got.ProcessingStatus)
}
