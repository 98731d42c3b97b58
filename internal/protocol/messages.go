// ABOUTME: WebSocket message protocol between chat clients and the server
// ABOUTME: Flat JSON envelopes with a type tag, dispatched by RawMessage

package protocol

import "encoding/json"

// Message types from client to server
const (
	TypeStartChat   = "start_chat"
	TypeJoinChat    = "join_chat"
	TypeLeaveChat   = "leave_chat"
	TypeSendMessage = "send_message"
)

// Message types from server to client
const (
	TypeChatStarted    = "chat_started"
	TypeReceiveMessage = "receive_message"
	TypeError          = "error"
)

// BaseMessage contains the type tag common to all messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// StartChat is sent by a client to open (or resume) a conversation
// with another user.
type StartChat struct {
	BaseMessage
	ReceiverID string `json:"receiver_id"`
}

// JoinChat is sent by a client to subscribe to an existing conversation.
type JoinChat struct {
	BaseMessage
	ChatID string `json:"chat_id"`
}

// LeaveChat is sent by a client to unsubscribe from a conversation
// without closing the connection.
type LeaveChat struct {
	BaseMessage
	ChatID string `json:"chat_id"`
}

// SendMessage is sent by a client to post a message to a conversation.
type SendMessage struct {
	BaseMessage
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// ChatStarted is sent by the server after a successful StartChat.
type ChatStarted struct {
	BaseMessage
	ChatID    string   `json:"chat_id"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"created_at"`
}

// ReceiveMessage is sent by the server to every subscribed member
// of a conversation, including the sender.
type ReceiveMessage struct {
	BaseMessage
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// ErrorMessage is sent by the server when a client request fails.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeForbidden      = "forbidden"
	ErrorCodeInternalError  = "internal_error"
)

// RawMessage is used for parsing incoming messages before type dispatch.
type RawMessage struct {
	Type string `json:"type"`
}

// PeekType extracts the type tag from a raw frame without decoding
// the full message.
func PeekType(data []byte) (string, error) {
	var raw RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
