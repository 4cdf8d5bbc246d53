// Package service manages the operator sessions served by shopdesk.
package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/shopdesk/internal/chat"
	"github.com/raphaelgruber/shopdesk/internal/models"
)

// OperatorSession is a chat session bound to one connected operator.
type OperatorSession struct {
	*chat.Session

	ID        string
	Operator  models.Author
	StartedAt time.Time
}

// SessionInfo is a read-only view of an OperatorSession.
type SessionInfo struct {
	ID           string    `json:"id"`
	OperatorID   string    `json:"operator_id"`
	OperatorName string    `json:"operator_name"`
	Selected     string    `json:"selected,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// Info returns a snapshot of the session.
func (s *OperatorSession) Info() SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		OperatorID:   s.Operator.ID,
		OperatorName: s.Operator.Name,
		Selected:     s.Selected(),
		StartedAt:    s.StartedAt,
	}
}

// SessionManager tracks open operator sessions.
type SessionManager struct {
	sessions map[string]*OperatorSession
	mu       sync.RWMutex
	store    chat.Store
	base     chat.Options
	logger   *slog.Logger
}

// NewSessionManager creates a manager whose sessions read and write
// through store. base supplies every option except the author.
func NewSessionManager(store chat.Store, base chat.Options) *SessionManager {
	logger := base.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*OperatorSession),
		store:    store,
		base:     base,
		logger:   logger,
	}
}

// Open starts a session for operator. The session ends when Close is
// called for it, or when ctx is cancelled and Close is called.
func (m *SessionManager) Open(ctx context.Context, operator models.Author) *OperatorSession {
	id := uuid.New().String()[:8] // Short ID for convenience
	operator.Role = models.RoleAdmin

	opts := m.base
	opts.Author = operator
	opts.Logger = m.logger.With("session_id", id)

	s := &OperatorSession{
		Session:   chat.NewSession(ctx, m.store, opts),
		ID:        id,
		Operator:  operator,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("operator session opened", "session_id", id, "operator_id", operator.ID)
	return s
}

// Get retrieves a session by ID.
func (m *SessionManager) Get(id string) *OperatorSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Close ends a session and forgets it. Returns false if it was unknown.
func (m *SessionManager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.logger.Info("operator session closed", "session_id", id, "duration", time.Since(s.StartedAt).Round(time.Millisecond))
	return true
}

// List returns all sessions, most recent first.
func (m *SessionManager) List() []*OperatorSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*OperatorSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}

	slices.SortFunc(sessions, func(a, b *OperatorSession) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return sessions
}

// Count returns the number of open sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll ends every session. Used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*OperatorSession)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Go(s.Close)
	}
	wg.Wait()
	if len(sessions) > 0 {
		m.logger.Info("closed all operator sessions", "count", len(sessions))
	}
}
