// Package server exposes operator sessions over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"github.com/raphaelgruber/shopdesk/internal/service"
)

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Version  string                `json:"version"`
	Metrics  metrics.Snapshot      `json:"metrics"`
	Sessions []service.SessionInfo `json:"sessions"`
}

// Server serves the operator console.
type Server struct {
	ctx      context.Context
	sessions *service.SessionManager
	metrics  *metrics.Collector
	version  string
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Server. Sessions opened by the server live at most as long as ctx.
func New(ctx context.Context, sessions *service.SessionManager, mc *metrics.Collector, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ctx:      ctx,
		sessions: sessions,
		metrics:  mc,
		version:  version,
		logger:   logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the HTTP routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleConsole)

	return LoggingMiddleware(s.logger)(mux)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	snap.ActiveSessions = s.sessions.Count()

	resp := StatsResponse{
		Version:  s.version,
		Metrics:  snap,
		Sessions: []service.SessionInfo{},
	}
	for _, sess := range s.sessions.List() {
		resp.Sessions = append(resp.Sessions, sess.Info())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encode stats failed", "error", err)
	}
}

// handleConsole upgrades to a websocket and binds it to a new session.
// The operator identity comes from the auth layer in front of this server.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	operator := models.Author{
		ID:   strings.TrimSpace(r.Header.Get(HeaderOperatorID)),
		Name: strings.TrimSpace(r.Header.Get(HeaderOperatorName)),
		Role: models.RoleAdmin,
	}
	if operator.ID == "" {
		http.Error(w, "missing "+HeaderOperatorID, http.StatusUnauthorized)
		return
	}
	if operator.Name == "" {
		operator.Name = operator.ID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := s.sessions.Open(s.ctx, operator)
	c := newConsole(sess, conn, s.logger)

	go c.writePump()
	c.readPump()

	s.sessions.Close(sess.ID)
	<-c.done
}
