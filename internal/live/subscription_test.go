package live

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, sub *Subscription[T]) (Update[T], bool) {
	t.Helper()
	select {
	case u, ok := <-sub.Updates():
		return u, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update[T]{}, false
	}
}

func TestSubscriptionDeliversInOrder(t *testing.T) {
	sub := Start(context.Background(), func(ctx context.Context, emit Emitter[int]) error {
		for i := 1; i <= 3; i++ {
			if !emit(Update[int]{Value: i}) {
				return nil
			}
		}
		<-ctx.Done()
		return nil
	})
	defer sub.Close()

	for want := 1; want <= 3; want++ {
		u, ok := receive(t, sub)
		require.True(t, ok)
		require.NoError(t, u.Err)
		assert.Equal(t, want, u.Value)
	}
}

func TestSubscriptionCloseJoinsProducer(t *testing.T) {
	var exited atomic.Bool
	sub := Start(context.Background(), func(ctx context.Context, emit Emitter[string]) error {
		defer exited.Store(true)
		// Blocks on an unread emit until Close cancels it.
		emit(Update[string]{Value: "never read"})
		<-ctx.Done()
		return nil
	})

	sub.Close()
	assert.True(t, exited.Load(), "producer must have returned when Close returns")

	_, ok := <-sub.Updates()
	assert.False(t, ok, "updates channel should be closed after Close")

	// Second close is a no-op.
	sub.Close()
}

func TestSubscriptionDeliversTerminalError(t *testing.T) {
	boom := errors.New("live query killed")
	sub := Start(context.Background(), func(ctx context.Context, emit Emitter[int]) error {
		return boom
	})
	defer sub.Close()

	u, ok := receive(t, sub)
	require.True(t, ok)
	assert.ErrorIs(t, u.Err, boom)

	_, ok = receive(t, sub)
	assert.False(t, ok, "channel closes after terminal error")
}

func TestSubscriptionSuppressesErrorAfterClose(t *testing.T) {
	started := make(chan struct{})
	sub := Start(context.Background(), func(ctx context.Context, emit Emitter[int]) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	sub.Close()

	_, ok := <-sub.Updates()
	assert.False(t, ok, "cancellation error must not be delivered")
}

func TestSubscriptionParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := Start(ctx, func(ctx context.Context, emit Emitter[int]) error {
		<-ctx.Done()
		return nil
	})
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop on parent cancel")
	}
}

func TestNilSubscription(t *testing.T) {
	var sub *Subscription[int]
	assert.Nil(t, sub.Updates())
	sub.Close()
}
