package chat

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/raphaelgruber/shopdesk/internal/live"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

// Synchronizer mirrors the messages of the active conversation.
// Switch and Apply must be called from a single goroutine; the getters are
// safe from any goroutine.
type Synchronizer struct {
	watcher MessageWatcher

	sub *live.Subscription[[]models.Message]

	mu       sync.RWMutex
	active   string
	messages []models.Message
	live     bool
}

// NewSynchronizer creates a Synchronizer reading from watcher.
func NewSynchronizer(watcher MessageWatcher) *Synchronizer {
	return &Synchronizer{watcher: watcher}
}

// Switch makes id the active conversation. The previous subscription is
// closed, and its producer joined, before the new one is opened.
// An empty id leaves the synchronizer idle.
func (s *Synchronizer) Switch(ctx context.Context, id string) {
	s.sub.Close()
	s.sub = nil

	s.mu.Lock()
	s.active = id
	s.messages = nil
	s.live = false
	s.mu.Unlock()

	if id != "" {
		s.sub = s.watcher.WatchMessages(ctx, id)
	}
}

// Updates returns the active subscription's channel, or nil when idle.
func (s *Synchronizer) Updates() <-chan live.Update[[]models.Message] {
	return s.sub.Updates()
}

// Detach closes the active subscription but keeps the last messages.
// Used when the store ends the subscription on its own.
func (s *Synchronizer) Detach() {
	s.sub.Close()
	s.sub = nil
}

// Attached reports whether a subscription is open for the active conversation.
func (s *Synchronizer) Attached() bool {
	return s.sub != nil
}

// Resume reopens the subscription after Detach. The last messages stay
// visible until the new subscription delivers. It reports whether a
// subscription was opened.
func (s *Synchronizer) Resume(ctx context.Context) bool {
	active := s.Active()
	if s.sub != nil || active == "" {
		return false
	}
	s.sub = s.watcher.WatchMessages(ctx, active)
	return true
}

// Close releases the active subscription and clears the selection.
func (s *Synchronizer) Close() {
	s.Switch(context.Background(), "")
}

// Apply replaces the message list with push. Messages that belong to another
// conversation are discarded. It reports whether this push moved the
// selection into the live state.
func (s *Synchronizer) Apply(push []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Message, 0, len(push))
	for _, m := range push {
		if m.ConversationKey() == s.active {
			next = append(next, m)
		}
	}
	slices.SortStableFunc(next, compareMessages)

	s.messages = next
	entered := !s.live
	s.live = true
	return entered
}

// compareMessages orders by timestamp, then by store-assigned key.
func compareMessages(a, b models.Message) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Key(), b.Key())
}

// Active returns the conversation being mirrored.
func (s *Synchronizer) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Live reports whether at least one snapshot arrived for the active conversation.
func (s *Synchronizer) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Messages returns a copy of the current message list.
func (s *Synchronizer) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}
