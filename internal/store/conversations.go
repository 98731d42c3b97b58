// ABOUTME: Conversation persistence operations on SQLiteStore
// ABOUTME: Enforces the one-conversation-per-unordered-pair invariant via a unique index

package store

import (
	"context"
	"fmt"
)

// CreateConversation inserts a new conversation record.
// The caller must set MemberLow/MemberHigh in canonical order (see PairKey).
// If a conversation for the same member pair already exists, it returns
// ErrDuplicateConversation so the caller can re-read the winner.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, member_low, member_high, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.MemberLow,
		conv.MemberHigh,
		formatTime(conv.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"member_low", conv.MemberLow,
		"member_high", conv.MemberHigh,
	)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, member_low, member_high, created_at
		FROM conversations
		WHERE id = ?
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, handleNotFound(err, "conversation")
	}
	return conv, nil
}

// GetConversationByMembers retrieves the conversation for an unordered user
// pair. The pair is canonicalized internally, so (A,B) and (B,A) resolve to
// the same record. Returns ErrNotFound if no conversation exists.
func (s *SQLiteStore) GetConversationByMembers(ctx context.Context, userA, userB string) (*Conversation, error) {
	low, high := PairKey(userA, userB)

	query := `
		SELECT id, member_low, member_high, created_at
		FROM conversations
		WHERE member_low = ? AND member_high = ?
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, low, high))
	if err != nil {
		return nil, handleNotFound(err, "conversation by members")
	}
	return conv, nil
}

// ListConversationsByUser returns every conversation the user is a member of,
// newest first.
func (s *SQLiteStore) ListConversationsByUser(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT id, member_low, member_high, created_at
		FROM conversations
		WHERE member_low = ? OR member_high = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}
