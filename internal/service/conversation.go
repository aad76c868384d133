package service

import (
	"context"
	"fmt"

	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/internal/store"
	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/metrics"
)

// ConversationService exposes conversation management operations on top of
// the store adapter.
type ConversationService struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// Create creates an empty conversation, with the sentinel title unless one
// is provided.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	conv, err := s.store.GetOrCreate(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	metrics.ConversationsTotal.Inc()

	if title != "" {
		if err := s.store.Rename(ctx, userID, conv.ID, title); err != nil {
			return nil, fmt.Errorf("failed to set title: %w", err)
		}
		conv.Title = title
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

// List returns the user's conversations, most recent first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	summaries, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if summaries == nil {
		summaries = []model.ConversationSummary{}
	}
	return summaries, nil
}

// Messages returns the ordered message history of a conversation.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string) ([]model.ChatMessage, error) {
	messages, err := s.store.History(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return messages, nil
}

// Rename sets a user-chosen conversation title.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) error {
	return s.store.Rename(ctx, userID, conversationID, title)
}

// Delete removes a conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	return s.store.Delete(ctx, userID, conversationID)
}
