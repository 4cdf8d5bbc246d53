// Package client provides an HTTP and websocket client for the shopdesk server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/shopdesk/internal/server"
)

// HeaderRequestID carries a per-request ID for log correlation.
const HeaderRequestID = "X-Request-ID"

// Client talks to a shopdesk server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses SHOPDESK_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via SHOPDESK_CLIENT_TIMEOUT env var (default 30s).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("SHOPDESK_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("SHOPDESK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(HeaderRequestID, uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*server.StatsResponse, error) {
	var stats server.StatsResponse
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Operator is the identity a console connects as.
type Operator struct {
	ID   string
	Name string
}

// Console is a live operator console connection.
// Frames are delivered in order on Frames until the connection ends.
type Console struct {
	conn   *websocket.Conn
	frames chan server.OutboundFrame

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// Dial opens a console. Cancelling ctx closes the connection.
func (c *Client) Dial(ctx context.Context, op Operator) (*Console, error) {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	header := http.Header{}
	header.Set(server.HeaderOperatorID, op.ID)
	header.Set(server.HeaderOperatorName, op.Name)
	header.Set(HeaderRequestID, uuid.New().String())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	con := &Console{
		conn:   conn,
		frames: make(chan server.OutboundFrame, 16),
		done:   make(chan struct{}),
	}
	go con.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			con.Close()
		case <-con.done:
		}
	}()
	return con, nil
}

func (c *Console) readLoop() {
	defer close(c.frames)
	for {
		var f server.OutboundFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.setErr(err)
				}
			}
			return
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *Console) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}

// Err returns the error that ended the connection, if any.
func (c *Console) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Frames delivers server frames. It is closed when the connection ends.
func (c *Console) Frames() <-chan server.OutboundFrame {
	return c.frames
}

// Next waits for the next frame of the given type, discarding others.
func (c *Console) Next(ctx context.Context, frameType string) (server.OutboundFrame, error) {
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				if err := c.Err(); err != nil {
					return server.OutboundFrame{}, err
				}
				return server.OutboundFrame{}, fmt.Errorf("connection closed")
			}
			if f.Type == frameType {
				return f, nil
			}
		case <-ctx.Done():
			return server.OutboundFrame{}, ctx.Err()
		}
	}
}

func (c *Console) send(f server.InboundFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	return nil
}

// Select makes conversationID the active conversation.
func (c *Console) Select(conversationID string) error {
	return c.send(server.InboundFrame{Type: server.FrameSelect, ConversationID: conversationID})
}

// SetDraft replaces the composer input buffer on the server.
func (c *Console) SetDraft(text string) error {
	return c.send(server.InboundFrame{Type: server.FrameDraft, Text: text})
}

// Send submits text to the active conversation.
func (c *Console) Send(text string) error {
	return c.send(server.InboundFrame{Type: server.FrameSend, Text: text})
}

// Ping asks the server for a pong frame.
func (c *Console) Ping() error {
	return c.send(server.InboundFrame{Type: server.FramePing})
}

// Close ends the connection. Safe to call more than once.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
