package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/shopdesk/internal/models"
)

// ConversationStore reads and opens conversations.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, id, customerID string) (*models.Conversation, error)
}

// CustomerStore is what the customer write path needs.
type CustomerStore interface {
	ConversationStore
	MessageWriter
}

// CustomerSend writes a customer message, opening the conversation first
// when it does not exist yet. An empty conversationID always opens a new
// conversation. It returns the conversation the message landed in.
func CustomerSend(ctx context.Context, store CustomerStore, conversationID, customerID, name, text string) (*models.Conversation, *models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrNothingToSend
	}

	var conv *models.Conversation
	if conversationID != "" {
		var err error
		conv, err = store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, nil, fmt.Errorf("load conversation: %w", err)
		}
	}
	if conv == nil {
		var err error
		conv, err = store.CreateConversation(ctx, conversationID, customerID)
		if err != nil {
			return nil, nil, fmt.Errorf("open conversation: %w", err)
		}
	}

	msg, err := DualWrite(ctx, store, conv.Key(), models.NewMessage{
		Text: text,
		Author: models.Author{
			ID:   customerID,
			Name: name,
			Role: models.RoleCustomer,
		},
	})
	return conv, msg, err
}
