// Package model defines data structures for the legal assistant backend.
package model

import (
	"time"
)

// SentinelTitle marks a conversation that has not been auto-named yet.
// The automatic rename from the first prompt only triggers while the title
// still holds this value.
const SentinelTitle = "Nuevo Chat"

// Conversation represents a dialogue owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// RenameConversationRequest is the request to rename a conversation.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}
