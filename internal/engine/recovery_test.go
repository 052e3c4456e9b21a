package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaldlabs/skald-sub002/pkg/types"
)

type fakeLister struct {
	ids              []string
	receivedBefore   time.Time
	processingBefore time.Time
	limit            int
	err              error
}

func (f *fakeLister) ListStalled(_ context.Context, receivedBefore, processingBefore time.Time, limit int) ([]string, error) {
	f.receivedBefore, f.processingBefore, f.limit = receivedBefore, processingBefore, limit
	return f.ids, f.err
}

type fakePublisher struct {
	published []string
	failFor   map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, memoUUID string) error {
	if f.failFor[memoUUID] {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, memoUUID)
	return nil
}

func TestRecoverer_RepublishesStalledMemos(t *testing.T) {
	lister := &fakeLister{ids: []string{"a", "b", "c"}}
	pub := &fakePublisher{failFor: map[string]bool{"b": true}}

	r := NewRecoverer(lister, pub, RecoveryConfig{
		ReceivedGrace: 5 * time.Minute, StaleProcessingAfter: time.Hour, BatchSize: 50,
	}, zerolog.Nop())
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.Recover(context.Background())
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memo b")
	assert.Equal(t, []string{"a", "c"}, pub.published)

	assert.Equal(t, now.Add(-5*time.Minute), lister.receivedBefore)
	assert.Equal(t, now.Add(-time.Hour), lister.processingBefore)
	assert.Equal(t, 50, lister.limit)
}

func TestRecoverer_ListError(t *testing.T) {
	r := NewRecoverer(&fakeLister{err: errors.New("db down")}, &fakePublisher{}, RecoveryConfig{}, zerolog.Nop())
	_, err := r.Recover(context.Background())
	assert.Error(t, err)
}

func TestRecoverer_WithStore(t *testing.T) {
	store := newTestStore(t)
	id := newMemo(t, store, &types.Memo{Title: "lost message"}, "content")

	pub := &fakePublisher{}
	r := NewRecoverer(store, pub, RecoveryConfig{ReceivedGrace: time.Minute}, zerolog.Nop())
	r.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{id}, pub.published)
}

func TestRecoverer_RunStopsOnCancel(t *testing.T) {
	lister := &fakeLister{}
	r := NewRecoverer(lister, &fakePublisher{}, RecoveryConfig{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
