// Package live provides cancellable handles over store subscriptions.
//
// A subscription delivers full snapshots, never diffs. Closing a subscription
// cancels its producer and blocks until the producer has returned, so a
// replacement subscription can be opened without stale deliveries racing it.
package live

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is delivered when the store ends a subscription on its own.
var ErrClosed = errors.New("subscription closed by store")

// Update carries either a snapshot or a subscription error.
type Update[T any] struct {
	Value T
	Err   error
}

// Emitter hands an update to the consumer. It returns false once the
// subscription is closing and the producer should stop.
type Emitter[T any] func(Update[T]) bool

// Source produces updates until ctx is cancelled. A non-nil error returned
// while the subscription is still open is delivered as a final Update.
type Source[T any] func(ctx context.Context, emit Emitter[T]) error

// Subscription is a handle on a running Source.
type Subscription[T any] struct {
	updates   chan Update[T]
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Start runs src on its own goroutine and returns its handle.
func Start[T any](parent context.Context, src Source[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription[T]{
		updates: make(chan Update[T]),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.updates)

		emit := func(u Update[T]) bool {
			return s.send(ctx, u)
		}
		if err := src(ctx, emit); err != nil && ctx.Err() == nil {
			s.send(ctx, Update[T]{Err: err})
		}
	}()

	return s
}

func (s *Subscription[T]) send(ctx context.Context, u Update[T]) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// Updates returns the delivery channel. It is closed when the producer exits.
// A nil Subscription yields a nil channel, which blocks forever in a select.
func (s *Subscription[T]) Updates() <-chan Update[T] {
	if s == nil {
		return nil
	}
	return s.updates
}

// Done is closed once the producer has exited.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close cancels the producer and waits for it to exit. Safe to call more than once.
func (s *Subscription[T]) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(s.cancel)
	<-s.done
}
