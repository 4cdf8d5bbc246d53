package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/live"
	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

const (
	eventBuffer             = 64
	defaultWriteTimeout     = 10 * time.Second
	defaultResubscribeDelay = 2 * time.Second
)

// Options configures a Session.
type Options struct {
	// Author is the operator identity stamped on sent messages.
	Author models.Author

	// RefireOnReselect clears unread again when the operator re-selects
	// the conversation that is already active.
	RefireOnReselect bool

	// RefireOnPush clears unread on every message push for the active
	// conversation, not only when it first goes live.
	RefireOnPush bool

	// MarkOperatorOnline also sets operator_online when clearing unread.
	MarkOperatorOnline bool

	// WriteTimeout bounds each store write. Defaults to 10s.
	WriteTimeout time.Duration

	// ResubscribeDelay is how long the session waits before reopening a
	// subscription the store ended. An explicit Select reopens immediately.
	// Defaults to 2s.
	ResubscribeDelay time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Session is one operator's view of the support inbox. It owns the
// conversation subscription, the selection, and the message subscription
// of the selected conversation. All subscription state changes on a single
// event loop goroutine; writes run beside it and are never cancelled by
// navigation.
type Session struct {
	store   Store
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	lister       *Lister
	synchronizer *Synchronizer
	composer     *Composer
	reconciler   *Reconciler

	// convs is owned by the event loop; nil after the store ended it.
	convs *live.Subscription[[]models.Conversation]

	commands chan func()
	events   chan Event
	loopDone chan struct{}

	writeMu sync.Mutex
	closed  bool
	writes  sync.WaitGroup

	closeOnce sync.Once

	mu       sync.RWMutex
	selected string
}

// NewSession subscribes to the conversation list and starts the event loop.
// The session lives until Close or until ctx is cancelled.
func NewSession(ctx context.Context, store Store, opts Options) *Session {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = defaultResubscribeDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("operator_id", opts.Author.ID)

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		store:        store,
		opts:         opts,
		logger:       logger,
		metrics:      opts.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		lister:       &Lister{},
		synchronizer: NewSynchronizer(store),
		commands:     make(chan func()),
		events:       make(chan Event, eventBuffer),
		loopDone:     make(chan struct{}),
	}
	s.composer = NewComposer(store, opts.Author, s.Selected, logger, opts.Metrics)
	s.reconciler = NewReconciler(store, models.ReadMark{OperatorOnline: opts.MarkOperatorOnline}, opts.WriteTimeout, logger)

	s.metrics.Inc(metrics.CounterSessionsOpened)
	s.convs = store.WatchConversations(ctx)
	go s.loop()

	logger.Info("session opened")
	return s
}

func (s *Session) loop() {
	defer close(s.loopDone)
	defer func() {
		s.synchronizer.Close()
		s.convs.Close()
	}()

	// retry fires once after a feed was ended by the store.
	var retry <-chan time.Time
	scheduleRetry := func() {
		if retry == nil {
			retry = time.After(s.opts.ResubscribeDelay)
		}
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case u, ok := <-s.convs.Updates():
			if !ok {
				s.convs.Close()
				s.convs = nil
				scheduleRetry()
				continue
			}
			if u.Err != nil {
				s.logger.Warn("conversation subscription error", "error", u.Err)
				s.emit(Event{Kind: EventError, Source: SourceConversations, Err: u.Err})
				continue
			}
			s.applyConversations(u.Value)

		case u, ok := <-s.synchronizer.Updates():
			if !ok {
				s.synchronizer.Detach()
				scheduleRetry()
				continue
			}
			active := s.synchronizer.Active()
			if u.Err != nil {
				s.logger.Warn("message subscription error", "conversation_id", active, "error", u.Err)
				s.emit(Event{Kind: EventError, Source: SourceMessages, ConversationID: active, Err: u.Err})
				continue
			}
			entered := s.synchronizer.Apply(u.Value)
			s.emit(Event{Kind: EventMessages, ConversationID: active, Messages: s.synchronizer.Messages()})
			if entered || s.opts.RefireOnPush {
				s.reconciler.Fire(active)
			}

		case <-retry:
			retry = nil
			s.resubscribe()

		case re := <-s.reconciler.Errors():
			s.emit(Event{Kind: EventError, Source: SourceReconcile, ConversationID: re.ConversationID, Err: re})

		case fn := <-s.commands:
			fn()
		}
	}
}

// resubscribe reopens whichever feeds the store has ended. Runs on the event loop.
func (s *Session) resubscribe() {
	s.reopenConversations()
	s.reopenMessages()
}

func (s *Session) reopenConversations() {
	if s.convs == nil {
		s.convs = s.store.WatchConversations(s.ctx)
		s.metrics.Inc(metrics.CounterResubscribes)
		s.logger.Info("conversation subscription reopened")
	}
}

func (s *Session) reopenMessages() {
	if s.synchronizer.Resume(s.ctx) {
		s.metrics.Inc(metrics.CounterResubscribes)
		s.logger.Info("message subscription reopened", "conversation_id", s.synchronizer.Active())
	}
}

func (s *Session) applyConversations(push []models.Conversation) {
	prev := s.Selected()
	next := s.lister.Apply(push, prev)
	if next != prev {
		if err := s.selectConversation(next, false); err != nil {
			s.logger.Warn("auto-select failed", "conversation_id", next, "error", err)
		}
	}
	s.emit(Event{Kind: EventConversations, Conversations: s.lister.Conversations(), Selected: s.Selected()})
}

// selectConversation runs on the event loop.
func (s *Session) selectConversation(id string, explicit bool) error {
	if explicit {
		s.reopenConversations()
	}
	if id == s.Selected() {
		if explicit {
			s.reopenMessages()
		}
		if explicit && id != "" && s.opts.RefireOnReselect {
			s.reconciler.Fire(id)
		}
		return nil
	}
	if id != "" && s.lister.Find(id) == nil {
		return ErrUnknownConversation
	}

	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()

	s.synchronizer.Switch(s.ctx, id)
	s.logger.Debug("conversation selected", "conversation_id", id, "explicit", explicit)
	s.emit(Event{Kind: EventMessages, ConversationID: id})
	return nil
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func() error) error {
	var err error
	done := make(chan struct{})
	cmd := func() {
		err = fn()
		close(done)
	}

	select {
	case s.commands <- cmd:
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
	select {
	case <-done:
		return err
	case <-s.loopDone:
		return ErrSessionClosed
	}
}

// emit delivers e unless the session is shutting down.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
	}
}

// Select makes id the active conversation. Selecting the active conversation
// again only clears unread when RefireOnReselect is set. Any feed the store
// ended is reopened first.
func (s *Session) Select(id string) error {
	return s.do(func() error {
		err := s.selectConversation(id, true)
		if err != nil {
			s.emit(Event{Kind: EventError, Source: SourceSelect, ConversationID: id, Err: err})
		}
		return err
	})
}

// Submit sends text to the selected conversation. Validation happens before
// Submit returns; the writes complete in the background and report through
// an EventSendResult. A rejected submit performs no write.
func (s *Session) Submit(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	p, err := s.composer.Begin(text)
	if err != nil {
		if errors.Is(err, ErrSendInFlight) {
			s.emit(Event{Kind: EventSubmitDropped, Err: err})
		}
		return err
	}

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		// In-flight writes outlive navigation and session close.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.opts.WriteTimeout)
		defer cancel()

		msg, err := p.Run(ctx)
		s.emit(Event{Kind: EventSendResult, ConversationID: p.ConversationID, Message: msg, Err: err})
	}()
	return nil
}

// Events delivers state changes. It is closed by Close, which the owner must
// call even when the parent context was cancelled first.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Selected returns the active conversation ID, or "".
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Conversations returns the last conversation list.
func (s *Session) Conversations() []models.Conversation {
	return s.lister.Conversations()
}

// Messages returns the last message list of the active conversation.
func (s *Session) Messages() []models.Message {
	return s.synchronizer.Messages()
}

// Draft returns the composer input buffer.
func (s *Session) Draft() string {
	return s.composer.Draft()
}

// SetDraft replaces the composer input buffer.
func (s *Session) SetDraft(text string) {
	s.composer.SetDraft(text)
}

// Sending reports whether a submit is in flight.
func (s *Session) Sending() bool {
	return s.composer.InFlight()
}

// Close cancels all subscriptions, waits for outstanding writes, and closes
// the event channel. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.writeMu.Lock()
		s.closed = true
		s.writeMu.Unlock()

		<-s.loopDone
		s.writes.Wait()
		s.reconciler.Wait()
		close(s.events)
		s.logger.Info("session closed")
	})
}
