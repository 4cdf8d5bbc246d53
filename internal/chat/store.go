// Package chat implements the operator side of the support chat: the live
// conversation list, the message view of the selected conversation, the
// composer with its dual write, and unread reconciliation.
package chat

import (
	"context"

	"github.com/raphaelgruber/shopdesk/internal/live"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

// ConversationWatcher streams full snapshots of the conversation list,
// most recently updated first.
type ConversationWatcher interface {
	WatchConversations(ctx context.Context) *live.Subscription[[]models.Conversation]
}

// MessageWatcher streams full snapshots of one conversation's messages.
type MessageWatcher interface {
	WatchMessages(ctx context.Context, conversationID string) *live.Subscription[[]models.Message]
}

// MessageWriter performs the two halves of a send.
type MessageWriter interface {
	InsertMessage(ctx context.Context, conversationID string, msg models.NewMessage) (*models.Message, error)
	UpdateSummary(ctx context.Context, conversationID string, s models.SummaryUpdate) error
}

// ReadMarker clears the operator-side unread flag of a conversation.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID string, mark models.ReadMark) error
}

// Store is everything a Session needs from the document store.
// *db.Client satisfies it.
type Store interface {
	ConversationWatcher
	MessageWatcher
	MessageWriter
	ReadMarker
}
