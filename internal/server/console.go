package server

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/shopdesk/internal/chat"
	"github.com/raphaelgruber/shopdesk/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	replyQueueSize = 32
)

// console pumps one websocket connection to and from an operator session.
// Only writePump writes to the connection.
type console struct {
	session *service.OperatorSession
	conn    *websocket.Conn
	replies chan OutboundFrame
	done    chan struct{}
	logger  *slog.Logger
}

func newConsole(session *service.OperatorSession, conn *websocket.Conn, logger *slog.Logger) *console {
	return &console{
		session: session,
		conn:    conn,
		replies: make(chan OutboundFrame, replyQueueSize),
		done:    make(chan struct{}),
		logger:  logger.With("session_id", session.ID),
	}
}

// readPump decodes commands until the connection fails.
func (c *console) readPump() {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("console read failed", "error", err)
			}
			return
		}

		var in InboundFrame
		if err := json.Unmarshal(payload, &in); err != nil {
			c.reply(OutboundFrame{Type: FrameError, Error: "invalid frame payload"})
			continue
		}
		c.handle(in)
	}
}

func (c *console) handle(in InboundFrame) {
	switch in.Type {
	case FrameSelect:
		// Failures come back as session events.
		if err := c.session.Select(in.ConversationID); err != nil {
			c.logger.Debug("select rejected", "conversation_id", in.ConversationID, "error", err)
		}

	case FrameDraft:
		c.session.SetDraft(in.Text)

	case FrameSend:
		err := c.session.Submit(in.Text)
		switch {
		case err == nil:
		case chat.IsDropped(err):
			c.reply(OutboundFrame{
				Type:   FrameDropped,
				Reason: droppedReason(err),
				Error:  err.Error(),
				Draft:  c.session.Draft(),
			})
		default:
			c.reply(OutboundFrame{Type: FrameError, Error: err.Error()})
		}

	case FramePing:
		c.reply(OutboundFrame{Type: FramePong})

	default:
		c.reply(OutboundFrame{Type: FrameError, Error: "unsupported frame type: " + in.Type})
	}
}

// reply queues a direct answer. It is dropped once the writer is gone.
func (c *console) reply(f OutboundFrame) {
	select {
	case c.replies <- f:
	case <-c.done:
	}
}

// writePump forwards session events and replies until the session's event
// stream ends or a write fails.
func (c *console) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		_ = c.conn.Close()
	}()

	if err := c.write(OutboundFrame{Type: FrameHello, SessionID: c.session.ID}); err != nil {
		return
	}

	events := c.session.Events()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			f, send := eventFrame(e, c.session.Draft())
			if !send {
				continue
			}
			if err := c.write(f); err != nil {
				return
			}

		case f := <-c.replies:
			if err := c.write(f); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *console) write(f OutboundFrame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		c.logger.Debug("console write failed", "type", f.Type, "error", err)
		return err
	}
	return nil
}
