// ABOUTME: Conversation directory mapping unordered user pairs to conversations
// ABOUTME: Idempotent resolve-or-create; creation races resolve by re-reading the winner

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vickykushwahaa/realtime-chat/internal/store"
)

// ConversationStore defines what the directory needs from storage.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetConversationByMembers(ctx context.Context, userA, userB string) (*store.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]*store.Conversation, error)
}

// Directory owns the mapping from an unordered pair of user IDs to a unique
// conversation. Resolution is order-independent: (A,B) and (B,A) always
// yield the same record.
type Directory struct {
	store  ConversationStore
	logger *slog.Logger
}

// NewDirectory creates a directory. Pass nil logger for default.
func NewDirectory(s ConversationStore, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  s,
		logger: logger.With("component", "directory"),
	}
}

// ResolveOrCreate returns the conversation for the unordered pair
// {userA, userB}, creating it on first contact. The hit path performs no
// durable write. Returns ErrInvalidArgument if either ID is empty or the
// two IDs are equal.
func (d *Directory) ResolveOrCreate(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("%w: both user ids are required", ErrInvalidArgument)
	}
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidArgument)
	}

	conv, err := d.store.GetConversationByMembers(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}

	low, high := store.PairKey(userA, userB)
	conv = &store.Conversation{
		ID:         uuid.New().String(),
		MemberLow:  low,
		MemberHigh: high,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.store.CreateConversation(ctx, conv); err != nil {
		// Another request may have created the conversation between our
		// lookup and insert. The unique pair index makes the second writer
		// fail; re-read and return the winner's record.
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := d.store.GetConversationByMembers(ctx, userA, userB)
			if lookupErr == nil {
				d.logger.Debug("found existing conversation after create race",
					"conversation_id", existing.ID)
				return existing, nil
			}
			d.logger.Error("retry lookup failed after duplicate error",
				"lookup_error", lookupErr)
			return nil, fmt.Errorf("resolving conversation after create race: %w", lookupErr)
		}
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	d.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"member_low", conv.MemberLow,
		"member_high", conv.MemberHigh,
	)
	return conv, nil
}
