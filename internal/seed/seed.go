// Package seed loads demo customers and conversations from a YAML fixture
// and replays them through the regular write paths.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/shopdesk/internal/chat"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Fixture is the top-level YAML document.
//
//	customers:
//	  - id: ada
//	    name: Ada Lovelace
//	    email: ada@example.com
//	conversations:
//	  - id: order-1001
//	    customer: ada
//	    messages:
//	      - from: customer
//	        text: Where is my parcel?
//	      - from: admin
//	        author: Support
//	        text: Checking with the carrier now.
type Fixture struct {
	Customers     []Customer     `yaml:"customers"`
	Conversations []Conversation `yaml:"conversations"`
}

// Customer is a fixture customer.
type Customer struct {
	ID    string  `yaml:"id"`
	Name  string  `yaml:"name"`
	Email *string `yaml:"email,omitempty"`
}

// Conversation is a fixture conversation with its messages in send order.
type Conversation struct {
	ID       string    `yaml:"id"`
	Customer string    `yaml:"customer"`
	Messages []Message `yaml:"messages"`
}

// Message is one fixture message. Author names the operator for admin
// messages; customer messages use the customer's name.
type Message struct {
	From   models.Role `yaml:"from"`
	Author string      `yaml:"author,omitempty"`
	Text   string      `yaml:"text"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks references and required fields.
func (f *Fixture) Validate() error {
	customers := make(map[string]bool, len(f.Customers))
	for i, c := range f.Customers {
		if c.ID == "" {
			return fmt.Errorf("customer %d: missing id", i)
		}
		if c.Name == "" {
			return fmt.Errorf("customer %s: missing name", c.ID)
		}
		if customers[c.ID] {
			return fmt.Errorf("customer %s: duplicate id", c.ID)
		}
		customers[c.ID] = true
	}

	conversations := make(map[string]bool, len(f.Conversations))
	for i, conv := range f.Conversations {
		if conv.ID == "" {
			return fmt.Errorf("conversation %d: missing id", i)
		}
		if conversations[conv.ID] {
			return fmt.Errorf("conversation %s: duplicate id", conv.ID)
		}
		conversations[conv.ID] = true
		if !customers[conv.Customer] {
			return fmt.Errorf("conversation %s: unknown customer %q", conv.ID, conv.Customer)
		}
		if len(conv.Messages) == 0 {
			return fmt.Errorf("conversation %s: no messages", conv.ID)
		}
		if conv.Messages[0].From != models.RoleCustomer {
			return fmt.Errorf("conversation %s: first message must come from the customer", conv.ID)
		}
		for j, m := range conv.Messages {
			if !m.From.Valid() {
				return fmt.Errorf("conversation %s message %d: unknown sender %q", conv.ID, j, m.From)
			}
			if strings.TrimSpace(m.Text) == "" {
				return fmt.Errorf("conversation %s message %d: empty text", conv.ID, j)
			}
		}
	}
	return nil
}

// Store is what seeding writes through. *db.Client satisfies it.
type Store interface {
	chat.CustomerStore
	UpsertCustomer(ctx context.Context, id, name string, email *string) (*models.Customer, error)
}

// Options configures Apply.
type Options struct {
	Concurrency int          // conversations replayed in parallel (default 4)
	OperatorID  string       // sender id for admin messages (default "seed")
	Logger      *slog.Logger // default slog.Default()
}

// Result summarizes an Apply run.
type Result struct {
	Customers     int
	Conversations int
	Messages      int
	Errors        []string
}

// Apply writes the fixture. Customers are upserted first; conversations are
// then replayed in parallel, each one's messages strictly in order. A failing
// conversation is recorded in Result.Errors and does not stop the others.
func Apply(ctx context.Context, store Store, f *Fixture, opts Options) (*Result, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	operatorID := opts.OperatorID
	if operatorID == "" {
		operatorID = "seed"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	names := make(map[string]string, len(f.Customers))
	for _, c := range f.Customers {
		if _, err := store.UpsertCustomer(ctx, c.ID, c.Name, c.Email); err != nil {
			return nil, fmt.Errorf("upsert customer %s: %w", c.ID, err)
		}
		names[c.ID] = c.Name
	}

	var (
		conversations atomic.Int32
		messages      atomic.Int32
		errorsMu      sync.Mutex
		errors        []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, conv := range f.Conversations {
		g.Go(func() error {
			n, err := replay(gctx, store, conv, names[conv.Customer], operatorID)
			messages.Add(int32(n))
			if err != nil {
				logger.Warn("seed conversation failed", "conversation", conv.ID, "error", err)
				errorsMu.Lock()
				errors = append(errors, fmt.Sprintf("%s: %v", conv.ID, err))
				errorsMu.Unlock()
				return nil
			}
			conversations.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("seed complete",
		"customers", len(f.Customers),
		"conversations", conversations.Load(),
		"messages", messages.Load(),
		"errors", len(errors))

	return &Result{
		Customers:     len(f.Customers),
		Conversations: int(conversations.Load()),
		Messages:      int(messages.Load()),
		Errors:        errors,
	}, nil
}

// replay sends one conversation's messages and returns how many were stored.
func replay(ctx context.Context, store Store, conv Conversation, customerName, operatorID string) (int, error) {
	sent := 0
	for i, m := range conv.Messages {
		var (
			msg *models.Message
			err error
		)
		switch m.From {
		case models.RoleCustomer:
			_, msg, err = chat.CustomerSend(ctx, store, conv.ID, conv.Customer, customerName, m.Text)
		default:
			author := m.Author
			if author == "" {
				author = "Support"
			}
			msg, err = chat.DualWrite(ctx, store, conv.ID, models.NewMessage{
				Text:   m.Text,
				Author: models.Author{ID: operatorID, Name: author, Role: models.RoleAdmin},
			})
		}
		if msg != nil {
			sent++
		}
		if err != nil {
			return sent, fmt.Errorf("message %d: %w", i, err)
		}
	}
	return sent, nil
}
