package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/live"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

var baseTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// feed is a test-controlled subscription.
type feed[T any] struct {
	values  chan T
	errs    chan error
	sub     *live.Subscription[T]
	stopped chan struct{}
}

func newFeed[T any](ctx context.Context) *feed[T] {
	f := &feed[T]{
		values:  make(chan T),
		errs:    make(chan error),
		stopped: make(chan struct{}),
	}
	f.sub = live.Start(ctx, func(ctx context.Context, emit live.Emitter[T]) error {
		defer close(f.stopped)
		for {
			select {
			case <-ctx.Done():
				return nil
			case v := <-f.values:
				if !emit(live.Update[T]{Value: v}) {
					return nil
				}
			case err := <-f.errs:
				return err
			}
		}
	})
	return f
}

func (f *feed[T]) push(t *testing.T, v T) {
	t.Helper()
	select {
	case f.values <- v:
	case <-f.stopped:
		t.Fatal("push to stopped feed")
	case <-time.After(2 * time.Second):
		t.Fatal("push timed out")
	}
}

func (f *feed[T]) fail(t *testing.T, err error) {
	t.Helper()
	select {
	case f.errs <- err:
	case <-time.After(2 * time.Second):
		t.Fatal("fail timed out")
	}
}

func (f *feed[T]) isStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

type insertCall struct {
	ConversationID string
	Msg            models.NewMessage
}

type summaryCall struct {
	ConversationID string
	Summary        models.SummaryUpdate
}

// fakeStore implements Store in memory.
type fakeStore struct {
	mu sync.Mutex

	convFeeds []*feed[[]models.Conversation]
	msgFeeds  map[string][]*feed[[]models.Message]

	// overlapping records WatchMessages calls made while an earlier
	// message feed was still running.
	overlapping int

	inserts   []insertCall
	summaries []summaryCall
	marks     []string

	insertErr  error
	summaryErr error
	markErr    error

	// insertGate, when set, blocks InsertMessage until closed.
	insertGate chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{msgFeeds: map[string][]*feed[[]models.Message]{}}
}

func (s *fakeStore) WatchConversations(ctx context.Context) *live.Subscription[[]models.Conversation] {
	f := newFeed[[]models.Conversation](ctx)
	s.mu.Lock()
	s.convFeeds = append(s.convFeeds, f)
	s.mu.Unlock()
	return f.sub
}

func (s *fakeStore) WatchMessages(ctx context.Context, id string) *live.Subscription[[]models.Message] {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, feeds := range s.msgFeeds {
		for _, f := range feeds {
			if !f.isStopped() {
				s.overlapping++
			}
		}
	}
	f := newFeed[[]models.Message](ctx)
	s.msgFeeds[id] = append(s.msgFeeds[id], f)
	return f.sub
}

func (s *fakeStore) InsertMessage(ctx context.Context, id string, msg models.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	gate := s.insertGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, insertCall{ConversationID: id, Msg: msg})
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	n := len(s.inserts)
	return &models.Message{
		ID:           models.MessageID(fmt.Sprintf("m%03d", n)),
		Conversation: models.ConversationID(id),
		Text:         msg.Text,
		Sender:       msg.Author.Role,
		SenderID:     msg.Author.ID,
		SenderName:   msg.Author.Name,
		Timestamp:    baseTime.Add(time.Duration(n) * time.Second),
	}, nil
}

func (s *fakeStore) UpdateSummary(_ context.Context, id string, sum models.SummaryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summaryCall{ConversationID: id, Summary: sum})
	return s.summaryErr
}

func (s *fakeStore) MarkRead(_ context.Context, id string, _ models.ReadMark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = append(s.marks, id)
	return s.markErr
}

func (s *fakeStore) convFeed(t *testing.T) *feed[[]models.Conversation] {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.convFeeds) == 0 {
		t.Fatal("no conversation subscription")
	}
	return s.convFeeds[len(s.convFeeds)-1]
}

// msgFeed returns the latest message subscription for id.
func (s *fakeStore) msgFeed(t *testing.T, id string) *feed[[]models.Message] {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds := s.msgFeeds[id]
	if len(feeds) == 0 {
		t.Fatalf("no message subscription for %s", id)
	}
	return feeds[len(feeds)-1]
}

func (s *fakeStore) convFeedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convFeeds)
}

func (s *fakeStore) watchCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgFeeds[id])
}

func (s *fakeStore) markCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.marks {
		if m == id {
			n++
		}
	}
	return n
}

func (s *fakeStore) counts() (inserts, summaries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserts), len(s.summaries)
}

func conv(id string, updatedAt time.Time) models.Conversation {
	return models.Conversation{
		ID:            models.ConversationID(id),
		UpdatedAt:     updatedAt,
		UnreadByAdmin: true,
		Status:        models.StatusOpen,
	}
}

func msg(id, conversationID string, ts time.Time, text string) models.Message {
	return models.Message{
		ID:           models.MessageID(id),
		Conversation: models.ConversationID(conversationID),
		Text:         text,
		Sender:       models.RoleCustomer,
		Timestamp:    ts,
	}
}

func keys[T interface{ Key() string }](items []T) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Key())
	}
	return out
}
