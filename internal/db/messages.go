package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// ListMessages returns the messages of a conversation in display order.
// Message IDs are ULIDs, so ties on timestamp fall back to insertion order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	err := c.metrics.Time(metrics.OpSnapshotLoad, func() error {
		results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
			SELECT * FROM message
			WHERE conversation = type::record("conversation", $id)
			ORDER BY timestamp ASC, id ASC
		`, map[string]any{"id": conversationID})
		if err != nil {
			return fmt.Errorf("list messages: %w", wrapQueryError(err))
		}
		out = []models.Message{}
		if results != nil && len(*results) > 0 {
			out = (*results)[0].Result
		}
		return nil
	})
	return out, err
}

// InsertMessage appends a message to a conversation. The timestamp is
// assigned by the store. Returns ErrNotFound if the conversation does not exist.
func (c *Client) InsertMessage(ctx context.Context, conversationID string, msg models.NewMessage) (*models.Message, error) {
	var stored *models.Message
	err := c.metrics.Time(metrics.OpMessageInsert, func() error {
		results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
			IF !record::exists(type::record("conversation", $conversation)) {
				THROW "conversation not found";
			};
			CREATE message:ulid() SET
				conversation = type::record("conversation", $conversation),
				text = $text,
				sender = $sender,
				sender_id = $sender_id,
				sender_name = $sender_name,
				read = false
			RETURN AFTER;
		`, map[string]any{
			"conversation": conversationID,
			"text":         msg.Text,
			"sender":       string(msg.Author.Role),
			"sender_id":    msg.Author.ID,
			"sender_name":  msg.Author.Name,
		})
		if err != nil {
			return fmt.Errorf("insert message: %w", wrapQueryError(err))
		}
		// Result 0 is the existence guard, result 1 the created message.
		if results == nil || len(*results) < 2 || len((*results)[1].Result) == 0 {
			return fmt.Errorf("insert message: no record returned")
		}
		stored = &(*results)[1].Result[0]
		return nil
	})
	return stored, err
}
