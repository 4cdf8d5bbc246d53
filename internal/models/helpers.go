// Package models defines the documents exchanged with the support chat store.
package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Table names in the store.
const (
	TableConversation = "conversation"
	TableMessage      = "message"
	TableCustomer     = "customer"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a non-empty string.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	if s == "" {
		return "", fmt.Errorf("empty ID in table %q", id.Table)
	}
	return s, nil
}

// ConversationID builds the record ID of a conversation.
func ConversationID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(TableConversation, id)
}

// MessageID builds the record ID of a message.
func MessageID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(TableMessage, id)
}

// CustomerID builds the record ID of a customer.
func CustomerID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(TableCustomer, id)
}
