package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/shopdesk/internal/chat"
	"github.com/raphaelgruber/shopdesk/internal/live"
	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"github.com/raphaelgruber/shopdesk/internal/server"
	"github.com/raphaelgruber/shopdesk/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushStore delivers whatever is sent on convs to every conversation watcher.
type pushStore struct {
	convs chan []models.Conversation

	mu      sync.Mutex
	inserts []string
}

func newPushStore() *pushStore {
	return &pushStore{convs: make(chan []models.Conversation)}
}

func (s *pushStore) WatchConversations(ctx context.Context) *live.Subscription[[]models.Conversation] {
	return live.Start(ctx, func(ctx context.Context, emit live.Emitter[[]models.Conversation]) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case v := <-s.convs:
				if !emit(live.Update[[]models.Conversation]{Value: v}) {
					return nil
				}
			}
		}
	})
}

func (s *pushStore) WatchMessages(ctx context.Context, _ string) *live.Subscription[[]models.Message] {
	return live.Start(ctx, func(ctx context.Context, _ live.Emitter[[]models.Message]) error {
		<-ctx.Done()
		return nil
	})
}

func (s *pushStore) InsertMessage(_ context.Context, id string, msg models.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, msg.Text)
	return &models.Message{
		ID:           models.MessageID("m1"),
		Conversation: models.ConversationID(id),
		Text:         msg.Text,
		Sender:       msg.Author.Role,
		SenderID:     msg.Author.ID,
		SenderName:   msg.Author.Name,
		Timestamp:    time.Now(),
	}, nil
}

func (s *pushStore) UpdateSummary(context.Context, string, models.SummaryUpdate) error { return nil }

func (s *pushStore) MarkRead(context.Context, string, models.ReadMark) error { return nil }

func newTestServer(t *testing.T, store chat.Store) (*httptest.Server, *service.SessionManager) {
	t.Helper()
	mc := metrics.NewCollector()
	sessions := service.NewSessionManager(store, chat.Options{WriteTimeout: time.Second, Metrics: mc})
	srv := server.New(context.Background(), sessions, mc, "test", nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		sessions.CloseAll()
		ts.Close()
	})
	return ts, sessions
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(server.HeaderOperatorID, "op-1")
	header.Set(server.HeaderOperatorName, "Support")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame returns the next frame of the given type, skipping others.
func readFrame(t *testing.T, conn *websocket.Conn, frameType string) server.OutboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f server.OutboundFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == frameType {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, f server.InboundFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, newPushStore())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStats(t *testing.T) {
	ts, sessions := newTestServer(t, newPushStore())
	sessions.Open(context.Background(), models.Author{ID: "op-9", Name: "Nine"})

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats server.StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, "test", stats.Version)
	assert.Equal(t, 1, stats.Metrics.ActiveSessions)
	require.Len(t, stats.Sessions, 1)
	assert.Equal(t, "op-9", stats.Sessions[0].OperatorID)
	assert.Equal(t, int64(1), stats.Metrics.Counters[metrics.CounterSessionsOpened])
}

func TestConsoleRequiresOperator(t *testing.T) {
	ts, _ := newTestServer(t, newPushStore())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConsoleFlow(t *testing.T) {
	store := newPushStore()
	ts, sessions := newTestServer(t, store)
	conn := dial(t, ts)

	hello := readFrame(t, conn, server.FrameHello)
	assert.NotEmpty(t, hello.SessionID)
	assert.Equal(t, 1, sessions.Count())

	now := time.Now()
	store.convs <- []models.Conversation{
		{ID: models.ConversationID("c2"), UpdatedAt: now.Add(-time.Minute)},
		{ID: models.ConversationID("c1"), UpdatedAt: now},
	}
	convs := readFrame(t, conn, server.FrameConversations)
	require.Len(t, convs.Conversations, 2)
	assert.Equal(t, "c1", convs.Conversations[0].ID)
	assert.Equal(t, "Guest c1", convs.Conversations[0].Customer)
	assert.Equal(t, "c1", convs.Selected)

	send(t, conn, server.InboundFrame{Type: server.FramePing})
	readFrame(t, conn, server.FramePong)

	send(t, conn, server.InboundFrame{Type: server.FrameSend, Text: "   "})
	dropped := readFrame(t, conn, server.FrameDropped)
	assert.Equal(t, "empty", dropped.Reason)

	send(t, conn, server.InboundFrame{Type: server.FrameSend, Text: "hello"})
	result := readFrame(t, conn, server.FrameSendResult)
	assert.True(t, result.OK)
	require.NotNil(t, result.Message)
	assert.Equal(t, "hello", result.Message.Text)
	assert.Equal(t, "Support", result.Message.SenderName)

	send(t, conn, server.InboundFrame{Type: server.FrameSelect, ConversationID: "nope"})
	selErr := readFrame(t, conn, server.FrameError)
	assert.Equal(t, "select", selErr.Source)

	send(t, conn, server.InboundFrame{Type: "bogus"})
	bogus := readFrame(t, conn, server.FrameError)
	assert.Contains(t, bogus.Error, "unsupported frame type")

	conn.Close()
	assert.Eventually(t, func() bool { return sessions.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
