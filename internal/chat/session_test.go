package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newTestSession(t *testing.T, store *fakeStore, mutate func(*Options)) *Session {
	t.Helper()
	opts := Options{
		Author:             operator,
		MarkOperatorOnline: true,
		WriteTimeout:       time.Second,
		Metrics:            metrics.NewCollector(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := NewSession(context.Background(), store, opts)
	t.Cleanup(s.Close)
	return s
}

// next returns the first event matching pred, discarding the rest.
func next(t *testing.T, s *Session, pred func(Event) bool) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				t.Fatal("events closed")
			}
			if pred(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func kind(k EventKind) func(Event) bool {
	return func(e Event) bool { return e.Kind == k }
}

func messagesFor(id string, n int) func(Event) bool {
	return func(e Event) bool {
		return e.Kind == EventMessages && e.ConversationID == id && len(e.Messages) == n
	}
}

// pushConversations delivers a list and waits until the session applied it.
func pushConversations(t *testing.T, s *Session, store *fakeStore, convs ...models.Conversation) Event {
	t.Helper()
	store.convFeed(t).push(t, convs)
	return next(t, s, kind(EventConversations))
}

func TestSessionAutoSelectsFirstAndReconcilesOnce(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)

	e := pushConversations(t, s, store, conv("c1", baseTime.Add(time.Minute)), conv("c2", baseTime))
	assert.Equal(t, []string{"c1", "c2"}, keys(e.Conversations))
	assert.Equal(t, "c1", e.Selected)

	f := store.msgFeed(t, "c1")
	f.push(t, []models.Message{msg("m1", "c1", baseTime, "hi")})
	next(t, s, messagesFor("c1", 1))

	f.push(t, []models.Message{msg("m1", "c1", baseTime, "hi"), msg("m2", "c1", baseTime.Add(time.Second), "again")})
	next(t, s, messagesFor("c1", 2))

	// The list push caused by the clear must not re-select or re-fire.
	pushConversations(t, s, store, conv("c1", baseTime.Add(time.Minute)), conv("c2", baseTime))

	s.Close()
	assert.Equal(t, 1, store.markCount("c1"))
	assert.Equal(t, 1, store.watchCount("c1"))
}

func TestSessionRefireOnPush(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, func(o *Options) { o.RefireOnPush = true })

	pushConversations(t, s, store, conv("c1", baseTime))
	f := store.msgFeed(t, "c1")
	f.push(t, []models.Message{})
	next(t, s, messagesFor("c1", 0))
	f.push(t, []models.Message{msg("m1", "c1", baseTime, "hi")})
	next(t, s, messagesFor("c1", 1))

	s.Close()
	assert.Equal(t, 2, store.markCount("c1"))
}

func TestSessionReselect(t *testing.T) {
	tests := []struct {
		name      string
		refire    bool
		wantMarks int
	}{
		{"reselect is a no-op", false, 1},
		{"reselect refires when enabled", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			s := newTestSession(t, store, func(o *Options) { o.RefireOnReselect = tt.refire })

			pushConversations(t, s, store, conv("c1", baseTime))
			store.msgFeed(t, "c1").push(t, []models.Message{})
			next(t, s, messagesFor("c1", 0))

			require.NoError(t, s.Select("c1"))

			s.Close()
			assert.Equal(t, tt.wantMarks, store.markCount("c1"))
			assert.Equal(t, 1, store.watchCount("c1"), "reselect keeps the subscription")
		})
	}
}

func TestSessionSwitchNeverLeaksPreviousConversation(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)

	pushConversations(t, s, store, conv("a", baseTime.Add(time.Minute)), conv("b", baseTime))
	a := store.msgFeed(t, "a")
	a.push(t, []models.Message{msg("a1", "a", baseTime, "from a")})
	next(t, s, messagesFor("a", 1))

	require.NoError(t, s.Select("b"))
	assert.True(t, a.isStopped(), "a must be unsubscribed before b is watched")
	assert.Zero(t, store.overlapping)
	assert.Equal(t, "b", s.Selected())
	assert.Empty(t, s.Messages())

	b := store.msgFeed(t, "b")
	b.push(t, []models.Message{msg("b1", "b", baseTime, "from b")})
	e := next(t, s, messagesFor("b", 1))
	for _, m := range e.Messages {
		assert.Equal(t, "b", m.ConversationKey())
	}

	s.Close()
	assert.Equal(t, 1, store.markCount("a"))
	assert.Equal(t, 1, store.markCount("b"))
}

func TestSessionSelectionVanishes(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)

	pushConversations(t, s, store, conv("a", baseTime.Add(time.Minute)), conv("b", baseTime))
	require.NoError(t, s.Select("b"))

	e := pushConversations(t, s, store, conv("a", baseTime.Add(time.Minute)))
	assert.Equal(t, "a", e.Selected)
	assert.Equal(t, "a", s.Selected())
}

func TestSessionEmptyList(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)

	e := pushConversations(t, s, store)
	assert.Empty(t, e.Conversations)
	assert.Equal(t, "", e.Selected)
	assert.Equal(t, 0, store.watchCount(""))

	err := s.Submit("hello")
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestSessionSelectUnknown(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	err := s.Select("nope")
	assert.ErrorIs(t, err, ErrUnknownConversation)

	e := next(t, s, kind(EventError))
	assert.Equal(t, SourceSelect, e.Source)
	assert.Equal(t, "c1", s.Selected())
}

func TestSessionSubmit(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	s.SetDraft("hello")
	require.NoError(t, s.Submit("hello"))

	e := next(t, s, kind(EventSendResult))
	require.NoError(t, e.Err)
	assert.Equal(t, "c1", e.ConversationID)
	require.NotNil(t, e.Message)
	assert.Equal(t, "hello", e.Message.Text)
	assert.Equal(t, "", s.Draft())

	inserts, summaries := store.counts()
	assert.Equal(t, 1, inserts)
	assert.Equal(t, 1, summaries)
}

func TestSessionSubmitBlankIsNoop(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))
	s.SetDraft("   ")

	assert.ErrorIs(t, s.Submit(""), ErrNothingToSend)
	assert.ErrorIs(t, s.Submit("   "), ErrNothingToSend)

	s.Close()
	inserts, summaries := store.counts()
	assert.Zero(t, inserts)
	assert.Zero(t, summaries)
	assert.Equal(t, "   ", s.Draft())
}

func TestSessionSubmitDropsWhileInFlight(t *testing.T) {
	store := newFakeStore()
	store.insertGate = make(chan struct{})
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	require.NoError(t, s.Submit("one"))
	assert.True(t, s.Sending())
	assert.ErrorIs(t, s.Submit("two"), ErrSendInFlight)
	next(t, s, kind(EventSubmitDropped))

	close(store.insertGate)
	e := next(t, s, kind(EventSendResult))
	require.NoError(t, e.Err)
	assert.Equal(t, "one", e.Message.Text)

	inserts, _ := store.counts()
	assert.Equal(t, 1, inserts)
}

func TestSessionSendFailurePreservesDraft(t *testing.T) {
	store := newFakeStore()
	store.summaryErr = errors.New("summary down")
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	require.NoError(t, s.Submit("hello"))
	e := next(t, s, kind(EventSendResult))

	var sendErr *SendError
	require.ErrorAs(t, e.Err, &sendErr)
	assert.Equal(t, StepSummary, sendErr.Step)
	assert.Equal(t, "hello", s.Draft())

	// The stored message still arrives through the subscription.
	store.msgFeed(t, "c1").push(t, []models.Message{*e.Message})
	next(t, s, messagesFor("c1", 1))
}

func TestSessionSubscriptionErrorKeepsLastList(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	store.convFeed(t).fail(t, errors.New("live query killed"))
	e := next(t, s, kind(EventError))
	assert.Equal(t, SourceConversations, e.Source)
	assert.Equal(t, []string{"c1"}, keys(s.Conversations()))
	assert.Equal(t, "c1", s.Selected())
}

func TestSessionMessageErrorKeepsMessages(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	f := store.msgFeed(t, "c1")
	f.push(t, []models.Message{msg("m1", "c1", baseTime, "hi")})
	next(t, s, messagesFor("c1", 1))

	f.fail(t, errors.New("stream broke"))
	e := next(t, s, kind(EventError))
	assert.Equal(t, SourceMessages, e.Source)
	assert.Equal(t, "c1", e.ConversationID)
	assert.Equal(t, []string{"m1"}, keys(s.Messages()))
}

func TestSessionReselectReopensEndedMessageFeed(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, func(o *Options) { o.ResubscribeDelay = time.Hour })
	pushConversations(t, s, store, conv("c1", baseTime))

	f := store.msgFeed(t, "c1")
	f.push(t, []models.Message{msg("m1", "c1", baseTime, "hi")})
	next(t, s, messagesFor("c1", 1))

	f.fail(t, errors.New("stream broke"))
	next(t, s, kind(EventError))

	require.Eventually(t, func() bool {
		_ = s.Select("c1")
		return store.watchCount("c1") == 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"m1"}, keys(s.Messages()), "last messages stay until the new feed delivers")

	store.msgFeed(t, "c1").push(t, []models.Message{
		msg("m1", "c1", baseTime, "hi"), msg("m2", "c1", baseTime.Add(time.Second), "back"),
	})
	next(t, s, messagesFor("c1", 2))
}

func TestSessionSelectReopensEndedConversationFeed(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, func(o *Options) { o.ResubscribeDelay = time.Hour })
	pushConversations(t, s, store, conv("c1", baseTime))

	store.convFeed(t).fail(t, errors.New("live query killed"))
	next(t, s, kind(EventError))

	require.Eventually(t, func() bool {
		_ = s.Select("c1")
		return store.convFeedCount() == 2
	}, waitFor, 10*time.Millisecond)

	e := pushConversations(t, s, store, conv("c2", baseTime.Add(time.Minute)), conv("c1", baseTime))
	assert.Equal(t, []string{"c2", "c1"}, keys(e.Conversations))
	assert.Equal(t, "c1", e.Selected)
}

func TestSessionReopensEndedFeedsAfterDelay(t *testing.T) {
	store := newFakeStore()
	mc := metrics.NewCollector()
	s := newTestSession(t, store, func(o *Options) {
		o.ResubscribeDelay = 10 * time.Millisecond
		o.Metrics = mc
	})
	pushConversations(t, s, store, conv("c1", baseTime))

	store.msgFeed(t, "c1").fail(t, errors.New("stream broke"))
	next(t, s, kind(EventError))
	store.convFeed(t).fail(t, errors.New("live query killed"))
	next(t, s, kind(EventError))

	require.Eventually(t, func() bool {
		return store.convFeedCount() == 2 && store.watchCount("c1") == 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, "c1", s.Selected())

	pushConversations(t, s, store, conv("c1", baseTime))
	s.Close()
	assert.Equal(t, int64(2), mc.Snapshot().Counters[metrics.CounterResubscribes])
}

func TestSessionReconcileFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	store.markErr = errors.New("permission denied")
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	store.msgFeed(t, "c1").push(t, []models.Message{msg("m1", "c1", baseTime, "hi")})
	next(t, s, messagesFor("c1", 1))

	e := next(t, s, kind(EventError))
	assert.Equal(t, SourceReconcile, e.Source)
	var re ReconcileError
	require.ErrorAs(t, e.Err, &re)
	assert.Equal(t, "c1", re.ConversationID)
	assert.Equal(t, []string{"m1"}, keys(s.Messages()))
}

func TestSessionClose(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))
	f := store.msgFeed(t, "c1")

	s.Close()
	s.Close()

	assert.True(t, f.isStopped())
	assert.True(t, store.convFeed(t).isStopped())
	assert.ErrorIs(t, s.Submit("hello"), ErrSessionClosed)
	assert.ErrorIs(t, s.Select("c1"), ErrSessionClosed)

	for range s.Events() {
	}
}

func TestSessionCloseLetsInFlightWriteFinish(t *testing.T) {
	store := newFakeStore()
	store.insertGate = make(chan struct{})
	s := newTestSession(t, store, nil)
	pushConversations(t, s, store, conv("c1", baseTime))

	require.NoError(t, s.Submit("bye"))

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned before the write finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.insertGate)
	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("close did not return")
	}

	inserts, summaries := store.counts()
	assert.Equal(t, 1, inserts)
	assert.Equal(t, 1, summaries)
}
