package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/iiresodh/pida-backend/internal/model"
)

const (
	// StreamName is the name of the conversation message stream.
	StreamName = "CONVERSATIONS"

	// MetaBucket is the KV bucket holding conversation metadata.
	MetaBucket = "CONVERSATION_META"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	historyBatchSize = 100
)

// NATSStore is the JetStream-backed Store. Messages are published to
// per-conversation subjects; conversation metadata lives in a KV bucket
// keyed "<user>.<conversation>".
type NATSStore struct {
	client *Client
	kv     jetstream.KeyValue
}

// NewNATSStore ensures the stream and metadata bucket exist and returns
// the store.
func NewNATSStore(ctx context.Context, client *Client) (*NATSStore, error) {
	js := client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			Description: "Conversation messages",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	kv, err := js.KeyValue(ctx, MetaBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      MetaBucket,
			Description: "Conversation metadata",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata bucket: %w", err)
		}
	}

	return &NATSStore{client: client, kv: kv}, nil
}

// encodeToken maps an arbitrary resolved user ID onto the character set
// shared by KV keys and subject tokens. A dot in an ID would otherwise
// cross a token boundary, so "alice" could match keys of "alice.smith".
// The mapping is injective: every byte outside [A-Za-z0-9-] is replaced
// by "_" plus its two hex digits, and "_" itself is escaped the same way.
func encodeToken(id string) string {
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

func metaKey(userID, conversationID string) string {
	return encodeToken(userID) + "." + conversationID
}

func messageSubject(userID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, encodeToken(userID), conversationID, role)
}

func conversationFilter(userID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, encodeToken(userID), conversationID)
}

// GetOrCreate returns an owned conversation or creates a new one with the
// sentinel title.
func (s *NATSStore) GetOrCreate(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	if conversationID != "" {
		entry, err := s.kv.Get(ctx, metaKey(userID, conversationID))
		if err == nil {
			var conv model.Conversation
			if err := json.Unmarshal(entry.Value(), &conv); err != nil {
				return nil, fmt.Errorf("failed to decode conversation: %w", err)
			}
			return &conv, nil
		}
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("failed to get conversation: %w", err)
		}
	}

	conv := model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     model.SentinelTitle,
		CreatedAt: time.Now(),
	}
	if err := s.putMeta(ctx, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *NATSStore) putMeta(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if _, err := s.kv.Put(ctx, metaKey(conv.UserID, conv.ID), data); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

func (s *NATSStore) getMeta(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	entry, err := s.kv.Get(ctx, metaKey(userID, conversationID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal(entry.Value(), &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage publishes one message to the conversation subject. The
// JetStream publish sequence is the ordering key.
func (s *NATSStore) AppendMessage(ctx context.Context, userID, conversationID string, role model.Role, content string) error {
	if _, err := s.getMeta(ctx, userID, conversationID); err != nil {
		return err
	}

	msg := model.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	subject := messageSubject(userID, conversationID, role)
	if _, err := s.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// History reads the conversation messages through an ephemeral consumer.
func (s *NATSStore) History(ctx context.Context, userID, conversationID string) ([]model.ChatMessage, error) {
	if _, err := s.getMeta(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	js := s.client.JetStream()
	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: conversationFilter(userID, conversationID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var messages []model.ChatMessage
	for {
		batch, err := consumer.Fetch(historyBatchSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		count := 0
		for msg := range batch.Messages() {
			var message model.ChatMessage
			if err := json.Unmarshal(msg.Data(), &message); err != nil {
				continue
			}
			if meta, err := msg.Metadata(); err == nil {
				message.Seq = meta.Sequence.Stream
			}
			messages = append(messages, message)
			count++
		}
		if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}
		if count < historyBatchSize {
			break
		}
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].Seq < messages[j].Seq })
	return messages, nil
}

// Rename sets the conversation title.
func (s *NATSStore) Rename(ctx context.Context, userID, conversationID, title string) error {
	conv, err := s.getMeta(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	conv.Title = title
	return s.putMeta(ctx, conv)
}

// List returns the user's conversations, most recent first.
func (s *NATSStore) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	prefix := encodeToken(userID) + "."
	var metas []model.Conversation
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal(entry.Value(), &conv); err != nil {
			continue
		}
		// The stored owner is authoritative; the prefix scan alone must
		// never decide visibility.
		if conv.UserID != userID {
			continue
		}
		metas = append(metas, conv)
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

// Delete removes the conversation metadata and purges its messages.
func (s *NATSStore) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.getMeta(ctx, userID, conversationID); err != nil {
		return err
	}

	stream, err := s.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Purge(ctx, jetstream.WithPurgeSubject(conversationFilter(userID, conversationID))); err != nil {
		return fmt.Errorf("failed to purge messages: %w", err)
	}

	if err := s.kv.Delete(ctx, metaKey(userID, conversationID)); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
