package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iiresodh/pida-backend/internal/model"
)

// MemoryStore is an in-process Store used by tests and by deployments
// without a NATS URL configured. Data does not survive a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
}

type memoryConversation struct {
	meta     model.Conversation
	messages []model.ChatMessage
	nextSeq  uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*memoryConversation),
	}
}

func memoryKey(userID, conversationID string) string {
	return userID + "/" + conversationID
}

// GetOrCreate returns an owned conversation or creates a new one.
func (s *MemoryStore) GetOrCreate(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID != "" {
		if c, ok := s.conversations[memoryKey(userID, conversationID)]; ok {
			meta := c.meta
			return &meta, nil
		}
	}

	conv := model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     model.SentinelTitle,
		CreatedAt: time.Now(),
	}
	s.conversations[memoryKey(userID, conv.ID)] = &memoryConversation{
		meta:    conv,
		nextSeq: 1,
	}
	return &conv, nil
}

// AppendMessage appends a message to an existing conversation.
func (s *MemoryStore) AppendMessage(ctx context.Context, userID, conversationID string, role model.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[memoryKey(userID, conversationID)]
	if !ok {
		return ErrNotFound
	}

	c.messages = append(c.messages, model.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Seq:       c.nextSeq,
	})
	c.nextSeq++
	return nil
}

// History returns messages in creation order.
func (s *MemoryStore) History(ctx context.Context, userID, conversationID string) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[memoryKey(userID, conversationID)]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]model.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

// Rename sets the conversation title.
func (s *MemoryStore) Rename(ctx context.Context, userID, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[memoryKey(userID, conversationID)]
	if !ok {
		return ErrNotFound
	}
	c.meta.Title = title
	return nil
}

// List returns the user's conversations, most recent first.
func (s *MemoryStore) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metas []model.Conversation
	for _, c := range s.conversations {
		if c.meta.UserID == userID {
			metas = append(metas, c.meta)
		}
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	out := make([]model.ConversationSummary, len(metas))
	for i, m := range metas {
		out[i] = model.ConversationSummary{ID: m.ID, Title: m.Title}
	}
	return out, nil
}

// Delete removes the conversation and its messages.
func (s *MemoryStore) Delete(ctx context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(userID, conversationID)
	if _, ok := s.conversations[key]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, key)
	return nil
}
