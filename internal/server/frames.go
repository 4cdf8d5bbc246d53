package server

import (
	"errors"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/chat"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

// Operator identity headers on the console websocket.
const (
	HeaderOperatorID   = "X-Operator-ID"
	HeaderOperatorName = "X-Operator-Name"
)

// Inbound frame types.
const (
	FrameSelect = "select"
	FrameDraft  = "draft"
	FrameSend   = "send"
	FramePing   = "ping"
)

// Outbound frame types.
const (
	FrameHello             = "hello"
	FrameConversations     = "conversations"
	FrameMessages          = "messages"
	FrameSubscriptionError = "subscription_error"
	FrameSendResult        = "send_result"
	FrameDropped           = "dropped"
	FrameReconcileError    = "reconcile_error"
	FrameError             = "error"
	FramePong              = "pong"
)

// InboundFrame is a command from the console.
type InboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
}

// ConversationView is a conversation as sent to the console.
type ConversationView struct {
	ID               string    `json:"id"`
	Customer         string    `json:"customer"`
	Email            string    `json:"email,omitempty"`
	LastMessage      string    `json:"last_message"`
	LastSender       string    `json:"last_sender,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
	UnreadByAdmin    bool      `json:"unread_by_admin"`
	UnreadByCustomer bool      `json:"unread_by_customer"`
	OperatorOnline   bool      `json:"operator_online"`
	Status           string    `json:"status"`
}

// MessageView is a message as sent to the console.
type MessageView struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Sender     string    `json:"sender"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// OutboundFrame is a state change or reply sent to the console.
// Fields are filled according to Type.
type OutboundFrame struct {
	Type           string             `json:"type"`
	SessionID      string             `json:"session_id,omitempty"`
	Selected       string             `json:"selected,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Conversations  []ConversationView `json:"conversations,omitempty"`
	Messages       []MessageView      `json:"messages,omitempty"`
	Message        *MessageView       `json:"message,omitempty"`
	OK             bool               `json:"ok,omitempty"`
	Step           string             `json:"step,omitempty"`
	Source         string             `json:"source,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	Error          string             `json:"error,omitempty"`
	Draft          string             `json:"draft,omitempty"`
}

func conversationView(c models.Conversation) ConversationView {
	v := ConversationView{
		ID:               c.Key(),
		Customer:         c.DisplayName(),
		LastMessage:      c.LastMessage,
		LastSender:       string(c.LastSender),
		UpdatedAt:        c.UpdatedAt,
		UnreadByAdmin:    c.UnreadByAdmin,
		UnreadByCustomer: c.UnreadByCustomer,
		OperatorOnline:   c.OperatorOnline,
		Status:           string(c.Status),
	}
	if c.Customer != nil && c.Customer.Email != nil {
		v.Email = *c.Customer.Email
	}
	return v
}

func messageView(m models.Message) MessageView {
	return MessageView{
		ID:         m.Key(),
		Text:       m.Text,
		Sender:     string(m.Sender),
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Timestamp:  m.Timestamp,
	}
}

// droppedReason names a submit rejection on the wire.
func droppedReason(err error) string {
	switch {
	case errors.Is(err, chat.ErrNothingToSend):
		return "empty"
	case errors.Is(err, chat.ErrNoSelection):
		return "no_selection"
	case errors.Is(err, chat.ErrSendInFlight):
		return "in_flight"
	default:
		return "unknown"
	}
}

// eventFrame translates a session event. ok is false for events that are
// reported elsewhere.
func eventFrame(e chat.Event, draft string) (OutboundFrame, bool) {
	switch e.Kind {
	case chat.EventConversations:
		f := OutboundFrame{Type: FrameConversations, Selected: e.Selected}
		f.Conversations = make([]ConversationView, 0, len(e.Conversations))
		for _, c := range e.Conversations {
			f.Conversations = append(f.Conversations, conversationView(c))
		}
		return f, true

	case chat.EventMessages:
		f := OutboundFrame{Type: FrameMessages, ConversationID: e.ConversationID}
		f.Messages = make([]MessageView, 0, len(e.Messages))
		for _, m := range e.Messages {
			f.Messages = append(f.Messages, messageView(m))
		}
		return f, true

	case chat.EventSendResult:
		f := OutboundFrame{Type: FrameSendResult, ConversationID: e.ConversationID, Draft: draft}
		if e.Message != nil {
			mv := messageView(*e.Message)
			f.Message = &mv
		}
		if e.Err != nil {
			f.Error = e.Err.Error()
			var sendErr *chat.SendError
			if errors.As(e.Err, &sendErr) {
				f.Step = string(sendErr.Step)
			}
		} else {
			f.OK = true
		}
		return f, true

	case chat.EventError:
		f := OutboundFrame{ConversationID: e.ConversationID, Source: string(e.Source)}
		if e.Err != nil {
			f.Error = e.Err.Error()
		}
		switch e.Source {
		case chat.SourceConversations, chat.SourceMessages:
			f.Type = FrameSubscriptionError
		case chat.SourceReconcile:
			f.Type = FrameReconcileError
		default:
			f.Type = FrameError
		}
		return f, true

	case chat.EventSubmitDropped:
		// The read pump answers the rejected submit directly.
		return OutboundFrame{}, false
	}
	return OutboundFrame{}, false
}
