package chat

import (
	"errors"
	"fmt"
)

// Submit rejections. None of these perform a write.
var (
	ErrNothingToSend = errors.New("message is empty")
	ErrNoSelection   = errors.New("no conversation selected")
	ErrSendInFlight  = errors.New("a send is already in flight")
)

var (
	ErrSessionClosed       = errors.New("session closed")
	ErrUnknownConversation = errors.New("conversation not in list")
)

// SendStep names the half of a dual write that failed.
type SendStep string

const (
	StepInsert  SendStep = "insert"
	StepSummary SendStep = "summary"
)

// SendError reports a failed dual write. A summary failure means the
// message itself was stored and will still show up in the message list.
type SendError struct {
	Step           SendStep
	ConversationID string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %s failed: %v", e.ConversationID, e.Step, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsDropped reports whether err is a submit rejection rather than a write failure.
func IsDropped(err error) bool {
	return errors.Is(err, ErrNothingToSend) ||
		errors.Is(err, ErrNoSelection) ||
		errors.Is(err, ErrSendInFlight)
}
