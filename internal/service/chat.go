// Package service provides business logic for the legal assistant backend.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/internal/prompt"
	"github.com/iiresodh/pida-backend/internal/search"
	"github.com/iiresodh/pida-backend/internal/store"
	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/metrics"
)

// GenericErrorMessage is the only failure text a client ever sees on the
// stream; internal detail stays in the logs.
const GenericErrorMessage = "Lo siento, ocurrió un error interno al generar la respuesta."

// maxTitleWords bounds the auto-derived conversation title.
const maxTitleWords = 5

// Emit delivers one stream frame to the client. The caller flushes after
// every invocation so bytes reach the network promptly; an error means the
// client can no longer be written to.
type Emit func(frame any) error

// AnswerStreamer produces the model answer as a finite fragment sequence,
// forwarding each fragment to emit and returning the accumulated text. It
// never fails; backend trouble surfaces as fragment content.
type AnswerStreamer interface {
	Stream(ctx context.Context, systemPrompt, finalPrompt string, history []model.ChatMessage, emit func(fragment string) error) string
}

// ChatService orchestrates one answer stream per request: resolve the
// conversation, persist the question, gather context concurrently, build
// the prompt, relay model fragments and persist the result.
type ChatService struct {
	store     store.Store
	providers []search.Provider
	streamer  AnswerStreamer
	logger    *logger.Logger
}

// NewChatService creates the chat orchestrator.
func NewChatService(st store.Store, providers []search.Provider, streamer AnswerStreamer, log *logger.Logger) *ChatService {
	return &ChatService{
		store:     st,
		providers: providers,
		streamer:  streamer,
		logger:    log,
	}
}

// StreamAnswer runs the full pipeline for one request. Every execution
// path that can still reach the client terminates the stream with exactly
// one of the done or error frames. Once the user message is persisted, a
// downstream failure can degrade the answer but never loses the question.
func (s *ChatService) StreamAnswer(ctx context.Context, userID string, req *model.ChatRequest, geo string, emit Emit) {
	tracer := otel.Tracer("pida-backend/service")
	ctx, span := tracer.Start(ctx, "chat.stream_answer")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := s.run(ctx, userID, req, geo, emit); err != nil {
		if ctx.Err() != nil {
			// The client is gone; there is no stream left to terminate.
			s.logger.Info("stream canceled by client", "user_id", userID)
			return
		}
		s.logger.Error("stream failed", "user_id", userID, "error", err)
		// Best effort: the write that failed may have been the frame itself.
		_ = emit(model.NewErrorEvent(GenericErrorMessage))
	}
}

func (s *ChatService) run(ctx context.Context, userID string, req *model.ChatRequest, geo string, emit Emit) error {
	conv, err := s.store.GetOrCreate(ctx, userID, req.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}
	if req.ConversationID == "" {
		metrics.ConversationsTotal.Inc()
	}
	if err := emit(model.NewConversationIDEvent(conv.ID)); err != nil {
		return fmt.Errorf("failed to emit conversation id: %w", err)
	}

	// The question is persisted before any context work so a failure
	// during gathering or generation never loses the user's input.
	if err := s.store.AppendMessage(ctx, userID, conv.ID, model.RoleUser, req.Prompt); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	if conv.Title == model.SentinelTitle {
		title := deriveTitle(req.Prompt)
		if err := s.store.Rename(ctx, userID, conv.ID, title); err != nil {
			return fmt.Errorf("failed to set conversation title: %w", err)
		}
	}

	contexts, err := s.gatherContext(ctx, req.Prompt, emit)
	if err != nil {
		return err
	}

	history, err := s.store.History(ctx, userID, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	history = dropCurrentTurn(history, req.Prompt)

	finalPrompt := prompt.Assemble(geo, contexts, req.Prompt)

	answer := s.streamer.Stream(ctx, prompt.SystemPrompt, finalPrompt, history, func(fragment string) error {
		return emit(model.NewTextEvent(fragment))
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if answer != "" {
		if err := s.store.AppendMessage(ctx, userID, conv.ID, model.RoleModel, answer); err != nil {
			return fmt.Errorf("failed to persist model message: %w", err)
		}
		metrics.MessagesTotal.WithLabelValues(string(model.RoleModel)).Inc()
	}

	if err := emit(model.NewDoneEvent()); err != nil {
		return fmt.Errorf("failed to emit done: %w", err)
	}
	return nil
}

type providerResult struct {
	name string
	text string
}

// gatherContext fans out all providers concurrently and merges their
// results in completion order, emitting one status frame per completion.
// The blocks are self-contained sections whose relative order carries no
// meaning in the prompt; a fixed-priority merge would be equally valid.
func (s *ChatService) gatherContext(ctx context.Context, query string, emit Emit) ([]string, error) {
	results := make(chan providerResult, len(s.providers))
	for _, p := range s.providers {
		go func(p search.Provider) {
			results <- providerResult{name: p.Name(), text: p.Search(ctx, query)}
		}(p)
	}

	contexts := make([]string, 0, len(s.providers))
	for range s.providers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-results:
			contexts = append(contexts, r.text)
			if err := emit(model.NewStatusEvent(fmt.Sprintf("Contexto recibido: %s", r.name))); err != nil {
				return nil, fmt.Errorf("failed to emit status: %w", err)
			}
		}
	}
	return contexts, nil
}

// dropCurrentTurn removes the just-appended user message from the
// model-facing history; the question is carried in the prompt itself.
func dropCurrentTurn(history []model.ChatMessage, currentPrompt string) []model.ChatMessage {
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == model.RoleUser && last.Content == currentPrompt {
			return history[:n-1]
		}
	}
	return history
}

// deriveTitle builds a short title from the first words of the prompt.
func deriveTitle(userPrompt string) string {
	words := strings.Fields(userPrompt)
	if len(words) <= maxTitleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxTitleWords], " ") + "..."
}
