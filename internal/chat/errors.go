// ABOUTME: Error taxonomy for the chat routing core
// ABOUTME: Invalid arguments and membership violations, surfaced to the originating client only

package chat

import "errors"

// ErrInvalidArgument is returned for missing or malformed identifiers,
// empty message text, or an attempted self-conversation.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotAMember is returned when a sender tries to post into, or join,
// a conversation they are not a member of.
var ErrNotAMember = errors.New("not a conversation member")
