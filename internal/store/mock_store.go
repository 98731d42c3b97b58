// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	users     map[string]*User         // keyed by user ID
	userEmail map[string]string        // keyed by email -> user ID
	convs     map[string]*Conversation // keyed by conversation ID
	convPairs map[string]string        // keyed by "low|high" -> conversation ID
	messages  map[string][]*Message    // keyed by conversation ID

	// SaveMessageErr, when set, is returned by SaveMessage. Lets tests
	// simulate a durable write failure.
	SaveMessageErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:     make(map[string]*User),
		userEmail: make(map[string]string),
		convs:     make(map[string]*Conversation),
		convPairs: make(map[string]string),
		messages:  make(map[string][]*Message),
	}
}

func pairIndexKey(a, b string) string {
	low, high := PairKey(a, b)
	return low + "|" + high
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.userEmail[user.Email]; ok {
		return ErrEmailExists
	}

	// Copy to avoid external modification
	u := *user
	m.users[u.ID] = &u
	m.userEmail[u.Email] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.userEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.users[id]
	return &result, nil
}

// ListUsers returns all users ordered by creation time.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		result := *u
		users = append(users, &result)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// CreateConversation stores a new conversation, enforcing pair uniqueness.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairIndexKey(conv.MemberLow, conv.MemberHigh)
	if _, ok := m.convPairs[key]; ok {
		return ErrDuplicateConversation
	}

	c := *conv
	m.convs[c.ID] = &c
	m.convPairs[key] = c.ID
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// GetConversationByMembers retrieves a conversation by its unordered member pair.
func (m *MockStore) GetConversationByMembers(ctx context.Context, userA, userB string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.convPairs[pairIndexKey(userA, userB)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.convs[id]
	return &result, nil
}

// ListConversationsByUser returns conversations the user belongs to, newest first.
func (m *MockStore) ListConversationsByUser(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, c := range m.convs {
		if c.HasMember(userID) {
			result := *c
			convs = append(convs, &result)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}

// SaveMessage appends a message to an existing conversation.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveMessageErr != nil {
		return m.SaveMessageErr
	}
	if _, ok := m.convs[msg.ConversationID]; !ok {
		return ErrNotFound
	}

	stored := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &stored)
	return nil
}

// ListMessages returns messages for a conversation in append order.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	result := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		copied := *msg
		result = append(result, &copied)
	}
	return result, nil
}

// MessageCount returns the number of stored messages for a conversation.
func (m *MockStore) MessageCount(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[conversationID])
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
