package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

// Composer turns operator input into a message insert followed by a
// summary update. At most one send runs at a time; extra submits are
// dropped, not queued.
type Composer struct {
	writer    MessageWriter
	author    models.Author
	selection func() string
	logger    *slog.Logger
	metrics   *metrics.Collector

	inFlight atomic.Bool

	mu    sync.Mutex
	draft string
}

// NewComposer creates a Composer writing as author into the conversation
// returned by selection at submit time.
func NewComposer(writer MessageWriter, author models.Author, selection func() string, logger *slog.Logger, mc *metrics.Collector) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		writer:    writer,
		author:    author,
		selection: selection,
		logger:    logger,
		metrics:   mc,
	}
}

// Pending is an accepted send that has not been written yet.
type Pending struct {
	c              *Composer
	ConversationID string
	Text           string
}

// Begin validates a submit and claims the send slot. It never writes.
func (c *Composer) Begin(text string) (*Pending, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNothingToSend
	}
	conversationID := c.selection()
	if conversationID == "" {
		return nil, ErrNoSelection
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.metrics.Inc(metrics.CounterSubmitsDropped)
		return nil, ErrSendInFlight
	}
	return &Pending{c: c, ConversationID: conversationID, Text: trimmed}, nil
}

// Run performs the dual write and releases the send slot. On success the
// draft is cleared; on failure it holds the text so the operator can retry.
func (p *Pending) Run(ctx context.Context) (*models.Message, error) {
	c := p.c
	defer c.inFlight.Store(false)

	msg, err := DualWrite(ctx, c.writer, p.ConversationID, models.NewMessage{
		Text:   p.Text,
		Author: c.author,
	})

	c.mu.Lock()
	if err != nil {
		c.draft = p.Text
	} else {
		c.draft = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("send failed", "conversation_id", p.ConversationID, "error", err)
		return msg, err
	}
	c.logger.Debug("message sent", "conversation_id", p.ConversationID, "message_id", msg.Key())
	return msg, nil
}

// Submit is Begin followed by Run.
func (c *Composer) Submit(ctx context.Context, text string) (*models.Message, error) {
	p, err := c.Begin(text)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// InFlight reports whether a send is outstanding.
func (c *Composer) InFlight() bool {
	return c.inFlight.Load()
}

// Draft returns the input buffer.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the input buffer.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// DualWrite inserts msg and then rewrites the conversation summary from the
// stored message. The summary update is only attempted after the insert is
// acknowledged, and neither step is rolled back when the other fails.
// On a summary failure the stored message is returned with the error.
func DualWrite(ctx context.Context, w MessageWriter, conversationID string, msg models.NewMessage) (*models.Message, error) {
	stored, err := w.InsertMessage(ctx, conversationID, msg)
	if err != nil {
		return nil, &SendError{Step: StepInsert, ConversationID: conversationID, Err: err}
	}
	if err := w.UpdateSummary(ctx, conversationID, models.SummaryFor(stored)); err != nil {
		return stored, &SendError{Step: StepSummary, ConversationID: conversationID, Err: err}
	}
	return stored, nil
}
