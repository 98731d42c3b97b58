// ABOUTME: Routing core for the chat server - every message flows through here
// ABOUTME: Persists first, then fans out to channel members via the hub

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vickykushwahaa/realtime-chat/internal/hub"
	"github.com/vickykushwahaa/realtime-chat/internal/protocol"
	"github.com/vickykushwahaa/realtime-chat/internal/store"
)

// MessageStore defines what the service needs from storage beyond the directory.
type MessageStore interface {
	ConversationStore
	SaveMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
}

// Broadcaster defines what the service needs from the connection registry.
type Broadcaster interface {
	Join(conn *hub.Connection, channelID string)
	Leave(conn *hub.Connection, channelID string)
	Broadcast(channelID string, payload []byte) int
}

// Service is the routing core: it resolves conversations, manages channel
// membership for connections, and sequences persist-then-broadcast for
// every sent message.
type Service struct {
	store     MessageStore
	directory *Directory
	hub       Broadcaster
	logger    *slog.Logger
}

// New creates the routing core.
func New(s MessageStore, h Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     s,
		directory: NewDirectory(s, logger),
		hub:       h,
		logger:    logger.With("component", "chat"),
	}
}

// Directory exposes the conversation directory for boundary layers that
// resolve conversations without a live connection (HTTP create-or-get).
func (s *Service) Directory() *Directory {
	return s.directory
}

// StartConversation resolves (or creates) the conversation between the
// connection's user and the counterpart, then joins the requesting
// connection to its channel. The counterpart is NOT joined automatically;
// their client resolves the same conversation and joins on its own.
func (s *Service) StartConversation(ctx context.Context, conn *hub.Connection, counterpartID string) (*store.Conversation, error) {
	conv, err := s.directory.ResolveOrCreate(ctx, conn.UserID, counterpartID)
	if err != nil {
		return nil, err
	}
	s.hub.Join(conn, conv.ID)

	s.logger.Debug("conversation started",
		"conversation_id", conv.ID,
		"conn_id", conn.ID,
		"user_id", conn.UserID,
	)
	return conv, nil
}

// JoinChannel joins the connection to an existing conversation's channel.
// The conversation must exist and the connection's user must be one of its
// members; channel membership is the sole gate for delivery, so the gate
// is enforced at join as well as at send.
func (s *Service) JoinChannel(ctx context.Context, conn *hub.Connection, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}

	conv, err := s.store.GetConversation(ctx, channelID)
	if err != nil {
		return err
	}
	if !conv.HasMember(conn.UserID) {
		return fmt.Errorf("%w: user %s in conversation %s", ErrNotAMember, conn.UserID, channelID)
	}

	s.hub.Join(conn, channelID)
	return nil
}

// LeaveChannel removes the connection from a channel without closing the
// connection, bounding its membership set when the client navigates away.
func (s *Service) LeaveChannel(conn *hub.Connection, channelID string) {
	s.hub.Leave(conn, channelID)
}

// SendRequest carries a message submission from the boundary.
type SendRequest struct {
	ChannelID string
	SenderID  string
	Text      string
	SentAt    time.Time // optional client timestamp; zero means server time
}

// SendMessage validates, persists, and broadcasts one message.
//
// Key principle: record first, then fan out. The message is saved BEFORE
// any broadcast so a store failure never produces a ghost message that
// exists only in connected clients' views.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*store.Message, error) {
	if req.ChannelID == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	if req.SenderID == "" {
		return nil, fmt.Errorf("%w: sender id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: message text is empty", ErrInvalidArgument)
	}

	conv, err := s.store.GetConversation(ctx, req.ChannelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if !conv.HasMember(req.SenderID) {
		return nil, fmt.Errorf("%w: sender %s in conversation %s", ErrNotAMember, req.SenderID, conv.ID)
	}

	createdAt := req.SentAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Text:           req.Text,
		CreatedAt:      createdAt,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	payload, err := json.Marshal(protocol.ReceiveMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeReceiveMessage},
		MessageID:   msg.ID,
		ChatID:      msg.ConversationID,
		SenderID:    msg.SenderID,
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		// The message is durably recorded; fan-out is best-effort.
		s.logger.Error("marshaling delivery payload", "error", err, "message_id", msg.ID)
		return msg, nil
	}

	delivered := s.hub.Broadcast(conv.ID, payload)
	s.logger.Debug("message broadcast",
		"message_id", msg.ID,
		"conversation_id", conv.ID,
		"delivered", delivered,
	)
	return msg, nil
}

// History returns persisted messages for a conversation, oldest first.
func (s *Service) History(ctx context.Context, channelID string, limit int) ([]*store.Message, error) {
	if channelID == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	if _, err := s.store.GetConversation(ctx, channelID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, channelID, limit)
}

// ListConversations returns every conversation the user belongs to.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return s.store.ListConversationsByUser(ctx, userID)
}
