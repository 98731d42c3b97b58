// ABOUTME: HTTP server wiring for the chat service
// ABOUTME: Builds the route table and manages startup and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/vickykushwahaa/realtime-chat/internal/auth"
	"github.com/vickykushwahaa/realtime-chat/internal/chat"
	"github.com/vickykushwahaa/realtime-chat/internal/config"
	"github.com/vickykushwahaa/realtime-chat/internal/hub"
	"github.com/vickykushwahaa/realtime-chat/internal/store"
)

// Server ties the HTTP and WebSocket boundaries to the chat core.
type Server struct {
	cfg      *config.Config
	store    store.Store
	chat     *chat.Service
	hub      *hub.Hub
	verifier *auth.JWTVerifier
	validate *validator.Validate
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a server with all routes registered.
func New(cfg *config.Config, st store.Store, chatSvc *chat.Service, h *hub.Hub, verifier *auth.JWTVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		chat:     chatSvc,
		hub:      h,
		verifier: verifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/users", s.requireAuth(s.handleListUsers))
	mux.HandleFunc("POST /api/chats", s.requireAuth(s.handleCreateChat))
	mux.HandleFunc("GET /api/chats", s.requireAuth(s.handleListChats))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.requireAuth(s.handleChatMessages))
	mux.HandleFunc("POST /api/chats/{id}/messages", s.requireAuth(s.handleSendMessage))

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// Handler returns the route table, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Server.HTTPAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then tears down every live
// connection so no membership entries outlive the transport.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.ConnectionCount(),
	})
}
