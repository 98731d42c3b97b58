// Package store provides persistent storage for realtime-chat using SQLite.
//
// # Data Models
//
//   - User: Registered account, referenced by the chat core only through its ID
//   - Conversation: Immutable pairing of exactly two users, unique per
//     unordered pair via the canonical (member_low, member_high) key
//   - Message: Append-only message scoped to a conversation
//
// # Concurrency
//
// Conversation uniqueness is enforced by a UNIQUE index on the canonical
// member-pair columns. Two concurrent creators race at the INSERT: the loser
// receives ErrDuplicateConversation and is expected to re-read the winner's
// record. SQLiteStore is safe for concurrent use; database/sql serializes
// access to the underlying connection pool.
//
// MockStore provides an in-memory implementation for tests.
package store
