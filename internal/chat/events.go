package chat

import "github.com/raphaelgruber/shopdesk/internal/models"

// EventKind identifies what changed in a Session.
type EventKind string

const (
	EventConversations EventKind = "conversations"
	EventMessages      EventKind = "messages"
	EventError         EventKind = "error"
	EventSendResult    EventKind = "send_result"
	EventSubmitDropped EventKind = "submit_dropped"
)

// ErrorSource tells which path an EventError came from.
type ErrorSource string

const (
	SourceConversations ErrorSource = "conversations"
	SourceMessages      ErrorSource = "messages"
	SourceSelect        ErrorSource = "select"
	SourceReconcile     ErrorSource = "reconcile"
)

// Event is a state change delivered to the view. Conversations and
// Messages are full snapshots.
type Event struct {
	Kind EventKind

	Conversations []models.Conversation
	Selected      string

	ConversationID string
	Messages       []models.Message

	// EventSendResult
	Message *models.Message

	Source ErrorSource
	Err    error
}
