package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/models"
)

// ReconcileError is a failed unread clear.
type ReconcileError struct {
	ConversationID string
	Err            error
}

func (e ReconcileError) Error() string {
	return "clear unread for " + e.ConversationID + ": " + e.Err.Error()
}

func (e ReconcileError) Unwrap() error {
	return e.Err
}

const reconcileErrorBuffer = 16

// Reconciler clears the operator-side unread flag in the background.
// Failures are logged and reported on Errors, never returned to the caller.
type Reconciler struct {
	marker  ReadMarker
	mark    models.ReadMark
	timeout time.Duration
	logger  *slog.Logger

	errs chan ReconcileError
	wg   sync.WaitGroup
}

// NewReconciler creates a Reconciler. Each write is bounded by timeout.
func NewReconciler(marker ReadMarker, mark models.ReadMark, timeout time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		marker:  marker,
		mark:    mark,
		timeout: timeout,
		logger:  logger,
		errs:    make(chan ReconcileError, reconcileErrorBuffer),
	}
}

// Fire starts an unread clear for conversationID and returns immediately.
// The write is not tied to any view and runs to completion.
func (r *Reconciler) Fire(conversationID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.marker.MarkRead(ctx, conversationID, r.mark); err != nil {
			r.logger.Warn("unread clear failed", "conversation_id", conversationID, "error", err)
			select {
			case r.errs <- ReconcileError{ConversationID: conversationID, Err: err}:
			default:
			}
			return
		}
		r.logger.Debug("unread cleared", "conversation_id", conversationID)
	}()
}

// Errors reports failed clears. Reports are dropped when nobody reads them.
func (r *Reconciler) Errors() <-chan ReconcileError {
	return r.errs
}

// Wait blocks until every fired clear has finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
