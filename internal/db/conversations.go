package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// conversationProjection flattens the customer link so a dangling reference
// is visible as a missing customer_id next to a present customer_ref.
const conversationProjection = `
	SELECT id, status, last_message, last_sender, updated_at, created_at,
		unread_by_admin, unread_by_customer, operator_online,
		customer AS customer_ref,
		customer.id AS customer_id,
		customer.name AS customer_name,
		customer.email AS customer_email
	FROM conversation`

type conversationRow struct {
	ID               surrealmodels.RecordID  `json:"id"`
	Status           *string                 `json:"status"`
	LastMessage      *string                 `json:"last_message"`
	LastSender       *string                 `json:"last_sender"`
	UpdatedAt        *time.Time              `json:"updated_at"`
	CreatedAt        *time.Time              `json:"created_at"`
	UnreadByAdmin    *bool                   `json:"unread_by_admin"`
	UnreadByCustomer *bool                   `json:"unread_by_customer"`
	OperatorOnline   *bool                   `json:"operator_online"`
	CustomerRef      *surrealmodels.RecordID `json:"customer_ref"`
	CustomerID       *surrealmodels.RecordID `json:"customer_id"`
	CustomerName     *string                 `json:"customer_name"`
	CustomerEmail    *string                 `json:"customer_email"`
}

func (r conversationRow) toModel() models.Conversation {
	c := models.Conversation{
		ID:          r.ID,
		CustomerRef: r.CustomerRef,
		Status:      models.StatusOpen,
	}
	if r.Status != nil {
		c.Status = models.ConversationStatus(*r.Status)
	}
	if r.LastMessage != nil {
		c.LastMessage = *r.LastMessage
	}
	if r.LastSender != nil {
		c.LastSender = models.Role(*r.LastSender)
	}
	if r.UpdatedAt != nil {
		c.UpdatedAt = *r.UpdatedAt
	}
	if r.CreatedAt != nil {
		c.CreatedAt = *r.CreatedAt
	}
	if r.UnreadByAdmin != nil {
		c.UnreadByAdmin = *r.UnreadByAdmin
	}
	if r.UnreadByCustomer != nil {
		c.UnreadByCustomer = *r.UnreadByCustomer
	}
	if r.OperatorOnline != nil {
		c.OperatorOnline = *r.OperatorOnline
	}
	if r.CustomerID != nil {
		c.Customer = &models.Customer{ID: *r.CustomerID, Email: r.CustomerEmail}
		if r.CustomerName != nil {
			c.Customer.Name = *r.CustomerName
		}
	}
	return c
}

func rowsToConversations(rows []conversationRow) []models.Conversation {
	out := make([]models.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// ListConversations returns every conversation, most recently updated first,
// with the customer link resolved where possible.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.metrics.Time(metrics.OpSnapshotLoad, func() error {
		results, err := surrealdb.Query[[]conversationRow](ctx, c.db,
			conversationProjection+` ORDER BY updated_at DESC`, nil)
		if err != nil {
			return fmt.Errorf("list conversations: %w", wrapQueryError(err))
		}
		out = []models.Conversation{}
		if results != nil && len(*results) > 0 {
			out = rowsToConversations((*results)[0].Result)
		}
		return nil
	})
	return out, err
}

// GetConversation retrieves a conversation by ID.
// Returns nil if not found.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]conversationRow](ctx, c.db,
		conversationProjection+` WHERE id = type::record("conversation", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	conv := (*results)[0].Result[0].toModel()
	return &conv, nil
}

// CreateConversation opens a new conversation for a customer.
// An empty id lets the store generate one; customerID may be empty for guests.
func (c *Client) CreateConversation(ctx context.Context, id, customerID string) (*models.Conversation, error) {
	target := "conversation"
	vars := map[string]any{}
	if id != "" {
		target = `type::record("conversation", $id)`
		vars["id"] = id
	}
	customerClause := ""
	if customerID != "" {
		customerClause = `customer = type::record("customer", $customer),`
		vars["customer"] = customerID
	}

	sql := fmt.Sprintf(`
		CREATE %s SET
			%s
			status = "open",
			last_message = "",
			unread_by_admin = false,
			unread_by_customer = false,
			operator_online = false
		RETURN id
	`, target, customerClause)

	results, err := surrealdb.Query[[]struct {
		ID surrealmodels.RecordID `json:"id"`
	}](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create conversation: no record returned")
	}

	key, err := models.RecordIDString((*results)[0].Result[0].ID)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv, err := c.GetConversation(ctx, key)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("create conversation %s: %w", key, ErrNotFound)
	}
	return conv, nil
}

// UpsertCustomer creates or replaces a customer record.
func (c *Client) UpsertCustomer(ctx context.Context, id, name string, email *string) (*models.Customer, error) {
	results, err := surrealdb.Query[[]models.Customer](ctx, c.db, `
		UPSERT type::record("customer", $id) SET
			name = $name,
			email = $email
		RETURN id, name, email
	`, map[string]any{
		"id":    id,
		"name":  name,
		"email": email,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert customer: no record returned")
	}
	return &(*results)[0].Result[0], nil
}

// UpdateSummary rewrites the summary fields of a conversation after a message insert.
// A summary older than the one already stored is skipped, so interleaved
// senders cannot roll the conversation back to an earlier message.
// Returns ErrNotFound if the conversation does not exist.
func (c *Client) UpdateSummary(ctx context.Context, conversationID string, s models.SummaryUpdate) error {
	return c.metrics.Time(metrics.OpSummaryUpdate, func() error {
		results, err := surrealdb.Query[[]struct {
			ID surrealmodels.RecordID `json:"id"`
		}](ctx, c.db, `
			UPDATE type::record("conversation", $id) SET
				last_message = $last_message,
				last_sender = $last_sender,
				last_message_at = <datetime> $updated_at,
				updated_at = <datetime> $updated_at,
				unread_by_admin = $unread_by_admin,
				unread_by_customer = $unread_by_customer
			WHERE last_message_at = NONE OR last_message_at <= <datetime> $updated_at
			RETURN id
		`, map[string]any{
			"id":                 conversationID,
			"last_message":       s.LastMessage,
			"last_sender":        string(s.LastSender),
			"updated_at":         s.UpdatedAt.UTC().Format(time.RFC3339Nano),
			"unread_by_admin":    s.UnreadByAdmin,
			"unread_by_customer": s.UnreadByCustomer,
		})
		if err != nil {
			return fmt.Errorf("update summary: %w", wrapQueryError(err))
		}
		if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
			return nil
		}

		// No row changed: either the conversation is gone or a newer summary won.
		conv, err := c.GetConversation(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("update summary: %w", err)
		}
		if conv == nil {
			return fmt.Errorf("update summary %s: %w", conversationID, ErrNotFound)
		}
		c.logger.Debug("stale summary skipped", "conversation_id", conversationID, "updated_at", s.UpdatedAt)
		return nil
	})
}

// MarkRead clears the operator-side unread flag of a conversation and,
// when requested, records that an operator is online.
// Returns ErrNotFound if the conversation does not exist.
func (c *Client) MarkRead(ctx context.Context, conversationID string, mark models.ReadMark) error {
	online := ""
	if mark.OperatorOnline {
		online = ", operator_online = true"
	}
	sql := fmt.Sprintf(`
		UPDATE type::record("conversation", $id) SET
			unread_by_admin = false%s
		RETURN id
	`, online)

	return c.metrics.Time(metrics.OpUnreadClear, func() error {
		results, err := surrealdb.Query[[]struct {
			ID surrealmodels.RecordID `json:"id"`
		}](ctx, c.db, sql, map[string]any{"id": conversationID})
		if err != nil {
			return fmt.Errorf("mark read: %w", wrapQueryError(err))
		}
		if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
			return fmt.Errorf("mark read %s: %w", conversationID, ErrNotFound)
		}
		return nil
	})
}
