// ABOUTME: WebSocket transport for live chat sessions
// ABOUTME: Authenticates on upgrade, pumps frames, and dispatches protocol messages

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vickykushwahaa/realtime-chat/internal/chat"
	"github.com/vickykushwahaa/realtime-chat/internal/hub"
	"github.com/vickykushwahaa/realtime-chat/internal/protocol"
	"github.com/vickykushwahaa/realtime-chat/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients are served from arbitrary origins; auth is the
		// token, not the Origin header.
		return true
	},
}

// handleWebSocket upgrades the connection after verifying the token from
// the query string, then runs the read loop until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := s.hub.NewConnection(userID)
	s.logger.Info("websocket connected", "conn_id", conn.ID, "user_id", userID)

	go s.writePump(ws, conn)
	s.readPump(ws, conn)
}

// readPump reads frames until the connection drops. On return the
// connection is removed from the hub, which strips every channel
// membership and closes the outbound channel.
func (s *Server) readPump(ws *websocket.Conn, conn *hub.Connection) {
	defer func() {
		s.hub.Remove(conn)
		ws.Close()
		s.logger.Info("websocket disconnected", "conn_id", conn.ID, "user_id", conn.UserID)
	}()

	ws.SetReadLimit(int64(s.cfg.Chat.MaxMessageBytes))
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", "error", err, "conn_id", conn.ID)
			}
			return
		}
		s.dispatch(conn, data)
	}
}

// writePump drains the connection's outbound channel onto the socket and
// keeps the connection alive with pings.
func (s *Server) writePump(ws *websocket.Conn, conn *hub.Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case payload, ok := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub removed the connection.
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame to its handler by type tag.
func (s *Server) dispatch(conn *hub.Connection, data []byte) {
	msgType, err := protocol.PeekType(data)
	if err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch msgType {
	case protocol.TypeStartChat:
		s.handleStartChat(conn, data)
	case protocol.TypeJoinChat:
		s.handleJoinChat(conn, data)
	case protocol.TypeLeaveChat:
		s.handleLeaveChat(conn, data)
	case protocol.TypeSendMessage:
		s.handleWSSendMessage(conn, data)
	default:
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "unknown message type: "+msgType)
	}
}

func (s *Server) handleStartChat(conn *hub.Connection, data []byte) {
	var msg protocol.StartChat
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid start_chat message")
		return
	}

	conv, err := s.chat.StartConversation(context.Background(), conn, msg.ReceiverID)
	if err != nil {
		s.sendChatError(conn, err)
		return
	}

	members := conv.Members()
	s.sendMessage(conn, protocol.ChatStarted{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeChatStarted},
		ChatID:      conv.ID,
		Members:     members[:],
		CreatedAt:   conv.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleJoinChat(conn *hub.Connection, data []byte) {
	var msg protocol.JoinChat
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid join_chat message")
		return
	}

	if err := s.chat.JoinChannel(context.Background(), conn, msg.ChatID); err != nil {
		s.sendChatError(conn, err)
	}
}

func (s *Server) handleLeaveChat(conn *hub.Connection, data []byte) {
	var msg protocol.LeaveChat
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid leave_chat message")
		return
	}
	s.chat.LeaveChannel(conn, msg.ChatID)
}

func (s *Server) handleWSSendMessage(conn *hub.Connection, data []byte) {
	var msg protocol.SendMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid send_message message")
		return
	}

	_, err := s.chat.SendMessage(context.Background(), chat.SendRequest{
		ChannelID: msg.ChatID,
		SenderID:  conn.UserID,
		Text:      msg.Text,
	})
	if err != nil {
		s.sendChatError(conn, err)
	}
}

// sendChatError maps chat core errors onto protocol error codes.
func (s *Server) sendChatError(conn *hub.Connection, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidArgument):
		s.sendError(conn, protocol.ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, chat.ErrNotAMember):
		s.sendError(conn, protocol.ErrorCodeForbidden, "not a member of this chat")
	case errors.Is(err, store.ErrNotFound):
		s.sendError(conn, protocol.ErrorCodeNotFound, "chat not found")
	default:
		s.logger.Error("websocket request failed", "error", err, "conn_id", conn.ID)
		s.sendError(conn, protocol.ErrorCodeInternalError, "internal error")
	}
}

func (s *Server) sendError(conn *hub.Connection, code, message string) {
	s.sendMessage(conn, protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeError},
		Code:        code,
		Message:     message,
	})
}

func (s *Server) sendMessage(conn *hub.Connection, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshaling websocket reply", "error", err)
		return
	}
	if !conn.Send(payload) {
		s.logger.Warn("dropped websocket reply for slow connection", "conn_id", conn.ID)
	}
}
