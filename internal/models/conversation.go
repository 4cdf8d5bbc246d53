package models

import (
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Role tags the author of a message.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// ConversationStatus is the lifecycle state of a support conversation.
type ConversationStatus string

const (
	StatusOpen   ConversationStatus = "open"
	StatusClosed ConversationStatus = "closed"
)

// Customer is the shop customer behind a conversation.
type Customer struct {
	ID    surrealmodels.RecordID `json:"id"`
	Name  string                 `json:"name"`
	Email *string                `json:"email,omitempty"`
}

// Conversation is the summary document of one support thread.
// CustomerRef is the stored link; Customer is nil when the link could not be resolved.
type Conversation struct {
	ID               surrealmodels.RecordID  `json:"id"`
	CustomerRef      *surrealmodels.RecordID `json:"customer_ref,omitempty"`
	Customer         *Customer               `json:"customer,omitempty"`
	LastMessage      string                  `json:"last_message"`
	LastSender       Role                    `json:"last_sender,omitempty"`
	UpdatedAt        time.Time               `json:"updated_at"`
	CreatedAt        time.Time               `json:"created_at"`
	UnreadByAdmin    bool                    `json:"unread_by_admin"`
	UnreadByCustomer bool                    `json:"unread_by_customer"`
	OperatorOnline   bool                    `json:"operator_online"`
	Status           ConversationStatus      `json:"status"`
}

// Key returns the string form of the conversation ID, or "" if it has none.
func (c Conversation) Key() string {
	s, err := RecordIDString(c.ID)
	if err != nil {
		return ""
	}
	return s
}

// Resolvable reports whether the conversation can be shown to an operator:
// it needs a string ID, and a customer link, if present, must point at a readable record.
func (c Conversation) Resolvable() bool {
	if c.Key() == "" {
		return false
	}
	return c.CustomerRef == nil || c.Customer != nil
}

// DisplayName returns the best available label for the customer.
func (c Conversation) DisplayName() string {
	if c.Customer != nil {
		if name := strings.TrimSpace(c.Customer.Name); name != "" {
			return name
		}
		if c.Customer.Email != nil && *c.Customer.Email != "" {
			return *c.Customer.Email
		}
	}
	return "Guest " + c.Key()
}

// Message is a single immutable chat message within a conversation.
// Read is written as false and is not consulted by the console.
type Message struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation surrealmodels.RecordID `json:"conversation"`
	Text         string                 `json:"text"`
	Sender       Role                   `json:"sender"`
	SenderID     string                 `json:"sender_id"`
	SenderName   string                 `json:"sender_name"`
	Timestamp    time.Time              `json:"timestamp"`
	Read         bool                   `json:"read"`
}

// Key returns the string form of the message ID, or "" if it has none.
func (m Message) Key() string {
	s, err := RecordIDString(m.ID)
	if err != nil {
		return ""
	}
	return s
}

// ConversationKey returns the string ID of the parent conversation.
func (m Message) ConversationKey() string {
	s, err := RecordIDString(m.Conversation)
	if err != nil {
		return ""
	}
	return s
}

// Author identifies who is writing. Operator identity comes from the
// surrounding auth layer and is never modified here.
type Author struct {
	ID   string
	Name string
	Role Role
}

// NewMessage is the input for a message insert.
type NewMessage struct {
	Text   string
	Author Author
}

// SummaryUpdate is the set of conversation fields rewritten after a message insert.
type SummaryUpdate struct {
	LastMessage      string
	LastSender       Role
	UpdatedAt        time.Time
	UnreadByAdmin    bool
	UnreadByCustomer bool
}

// SummaryFor derives the conversation summary from a stored message.
// The sender's side is marked read and the other side unread.
func SummaryFor(m *Message) SummaryUpdate {
	return SummaryUpdate{
		LastMessage:      m.Text,
		LastSender:       m.Sender,
		UpdatedAt:        m.Timestamp,
		UnreadByAdmin:    m.Sender == RoleCustomer,
		UnreadByCustomer: m.Sender == RoleAdmin,
	}
}

// ReadMark describes the write issued when an operator views a conversation.
type ReadMark struct {
	OperatorOnline bool
}
