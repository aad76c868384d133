// Package store provides conversation persistence. All operations are keyed
// by the owning user; a conversation is never visible across users.
package store

import (
	"context"
	"errors"

	"github.com/iiresodh/pida-backend/internal/model"
)

// ErrNotFound is returned when a conversation does not exist or is not
// owned by the requesting user.
var ErrNotFound = errors.New("conversation not found")

// Store is the conversation store adapter. Each call is independently
// atomic; no transaction spans multiple calls. Two concurrent writers to
// the same conversation may interleave message ordering.
type Store interface {
	// GetOrCreate returns the conversation when it exists and belongs to
	// userID; otherwise it creates a new one with the sentinel title.
	// An empty conversationID always creates.
	GetOrCreate(ctx context.Context, userID, conversationID string) (*model.Conversation, error)

	// AppendMessage appends one message with a monotonically increasing
	// ordering key.
	AppendMessage(ctx context.Context, userID, conversationID string, role model.Role, content string) error

	// History returns the conversation messages in creation order.
	History(ctx context.Context, userID, conversationID string) ([]model.ChatMessage, error)

	// Rename sets the conversation title.
	Rename(ctx context.Context, userID, conversationID, title string) error

	// List returns the user's conversations, most recent first.
	List(ctx context.Context, userID string) ([]model.ConversationSummary, error)

	// Delete removes the conversation and its messages.
	Delete(ctx context.Context, userID, conversationID string) error
}
