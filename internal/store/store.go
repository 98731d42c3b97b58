// ABOUTME: Store interface and data types for realtime-chat persistence
// ABOUTME: Defines User, Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// for a member pair that already has one
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrEmailExists is returned when registering a user with an email that is taken
var ErrEmailExists = errors.New("email already registered")

// User is a registered account. The chat core references users only by ID.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is a durable record pairing exactly two users.
// MemberLow and MemberHigh hold the two user IDs in lexical order so the
// unordered pair {A,B} always maps to the same row. Membership is immutable
// after creation.
type Conversation struct {
	ID         string
	MemberLow  string
	MemberHigh string
	CreatedAt  time.Time
}

// HasMember reports whether userID is one of the conversation's two members.
func (c *Conversation) HasMember(userID string) bool {
	return userID == c.MemberLow || userID == c.MemberHigh
}

// Members returns both member IDs, lexical order.
func (c *Conversation) Members() [2]string {
	return [2]string{c.MemberLow, c.MemberHigh}
}

// Message is a single immutable message within a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	CreatedAt      time.Time
}

// PairKey returns the canonical order-independent representation of two
// user IDs: lexically smaller first.
func PairKey(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Store defines the interface for user, conversation and message persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByMembers(ctx context.Context, userA, userB string) (*Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]*Conversation, error)

	// Messages (append-only)
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
