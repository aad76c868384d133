package model

import (
	"time"
)

// Role represents the author of a chat message. The model backend accepts
// exactly two roles, so everything that is not the user maps to the model.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one immutable turn inside a conversation, ordered by Seq.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Seq is the store ordering key, populated on read.
	Seq uint64 `json:"seq,omitempty"`
}

// ChatRequest is the body of the streaming chat endpoint. The caller
// identity comes from the identity resolver, never from the body.
type ChatRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []ChatMessage `json:"messages"`
}
