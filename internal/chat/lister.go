package chat

import (
	"slices"
	"sync"

	"github.com/raphaelgruber/shopdesk/internal/models"
)

// Lister holds the last conversation list pushed by the store.
type Lister struct {
	mu            sync.RWMutex
	conversations []models.Conversation
}

// Apply replaces the list with push and returns the selection to use next:
// selected if it is still listed, otherwise the first entry, or "" when the
// list is empty. Entries that cannot be fully resolved are skipped.
func (l *Lister) Apply(push []models.Conversation, selected string) string {
	next := make([]models.Conversation, 0, len(push))
	for _, c := range push {
		if c.Resolvable() {
			next = append(next, c)
		}
	}
	// The store already orders by updated_at; a stable sort keeps its tie order.
	slices.SortStableFunc(next, func(a, b models.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	l.mu.Lock()
	l.conversations = next
	l.mu.Unlock()

	if len(next) == 0 {
		return ""
	}
	if selected != "" {
		for _, c := range next {
			if c.Key() == selected {
				return selected
			}
		}
	}
	return next[0].Key()
}

// Conversations returns a copy of the current list.
func (l *Lister) Conversations() []models.Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.conversations)
}

// Find returns the listed conversation with the given key, or nil.
func (l *Lister) Find(id string) *models.Conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.conversations {
		if l.conversations[i].Key() == id {
			c := l.conversations[i]
			return &c
		}
	}
	return nil
}
