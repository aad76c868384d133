package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/internal/search"
	"github.com/iiresodh/pida-backend/internal/store"
	"github.com/iiresodh/pida-backend/pkg/logger"
)

// stubProvider is a controllable context provider.
type stubProvider struct {
	name     string
	text     string
	delay    time.Duration
	onSearch func()
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Search(ctx context.Context, query string) string {
	if p.onSearch != nil {
		p.onSearch()
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
		}
	}
	return p.text
}

// stubStreamer captures the assembled prompt and emits fixed fragments.
type stubStreamer struct {
	fragments []string
	gotSystem string
	gotPrompt string
	gotTurns  []model.ChatMessage
}

func (s *stubStreamer) Stream(ctx context.Context, systemPrompt, finalPrompt string, history []model.ChatMessage, emit func(string) error) string {
	s.gotSystem = systemPrompt
	s.gotPrompt = finalPrompt
	s.gotTurns = history

	var acc strings.Builder
	for _, f := range s.fragments {
		if ctx.Err() != nil {
			return acc.String()
		}
		if err := emit(f); err != nil {
			return acc.String()
		}
		acc.WriteString(f)
	}
	return acc.String()
}

// frameRecorder collects emitted frames and can start failing on demand.
type frameRecorder struct {
	frames   []any
	failFrom int32 // fail once this many frames were recorded; 0 disables
}

func (r *frameRecorder) emit(frame any) error {
	if r.failFrom > 0 && int32(len(r.frames)) >= r.failFrom {
		return errors.New("client gone")
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *frameRecorder) textConcat() string {
	var b strings.Builder
	for _, f := range r.frames {
		if te, ok := f.(model.TextEvent); ok {
			b.WriteString(te.Text)
		}
	}
	return b.String()
}

func (r *frameRecorder) terminalCount() (count int, lastIsTerminal bool) {
	for i, f := range r.frames {
		switch f.(type) {
		case model.DoneEvent, model.ErrorEvent:
			count++
			lastIsTerminal = i == len(r.frames)-1
		}
	}
	return count, lastIsTerminal
}

func providersOf(ps ...search.Provider) []search.Provider {
	return ps
}

func TestStreamAnswerHappyPath(t *testing.T) {
	st := store.NewMemoryStore()
	streamer := &stubStreamer{fragments: []string{"El control ", "de convencionalidad ", "es..."}}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "### Contexto de Búsqueda Externa:\nweb\n"},
		&stubProvider{name: "documentos-internos", text: "### Contexto de Documentos Internos (RAG):\nrag\n"},
	), streamer, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{
		Prompt: "¿Qué es el control de convencionalidad?",
	}, "CR", rec.emit)

	// First frame binds the conversation.
	require.NotEmpty(t, rec.frames)
	idEvent, ok := rec.frames[0].(model.ConversationIDEvent)
	require.True(t, ok, "first frame must be the conversation_id event")
	require.NotEmpty(t, idEvent.ID)

	// Exactly one terminal frame, and it is the last one.
	count, last := rec.terminalCount()
	assert.Equal(t, 1, count)
	assert.True(t, last)
	assert.IsType(t, model.DoneEvent{}, rec.frames[len(rec.frames)-1])

	// At least one text frame was forwarded.
	assert.NotEmpty(t, rec.textConcat())

	// One status frame per provider completion.
	statuses := 0
	for _, f := range rec.frames {
		if _, ok := f.(model.StatusEvent); ok {
			statuses++
		}
	}
	assert.Equal(t, 2, statuses)

	// The user turn and the model turn were persisted in order.
	history, err := st.History(context.Background(), "u1", idEvent.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "¿Qué es el control de convencionalidad?", history[0].Content)
	assert.Equal(t, model.RoleModel, history[1].Role)

	// Title derived from the first five words of the prompt.
	conv, err := st.GetOrCreate(context.Background(), "u1", idEvent.ID)
	require.NoError(t, err)
	assert.Equal(t, "¿Qué es el control de...", conv.Title)

	// Both context blocks reached the prompt; the question is literal.
	assert.Contains(t, streamer.gotPrompt, "web")
	assert.Contains(t, streamer.gotPrompt, "rag")
	assert.Contains(t, streamer.gotPrompt, "Pregunta del usuario: ¿Qué es el control de convencionalidad?")
	assert.Contains(t, streamer.gotPrompt, "Contexto geográfico: CR")
}

func TestUserMessagePersistedBeforeProviders(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	conv, err := st.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)

	var sawUserMessage atomic.Bool
	failing := &stubProvider{name: "busqueda-web", text: "Hubo un error al realizar la búsqueda externa."}
	failing.onSearch = func() {
		history, err := st.History(ctx, "u1", conv.ID)
		if err == nil && len(history) == 1 && history[0].Role == model.RoleUser {
			sawUserMessage.Store(true)
		}
	}

	svc := NewChatService(st, providersOf(failing), &stubStreamer{fragments: []string{"x"}}, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(ctx, "u1", &model.ChatRequest{Prompt: "pregunta", ConversationID: conv.ID}, "", rec.emit)

	assert.True(t, sawUserMessage.Load(), "user message must be durable before any provider call returns")

	history, err := st.History(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, "pregunta", history[0].Content)
}

func TestAllProvidersFailingStillCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	streamer := &stubStreamer{fragments: []string{"respuesta degradada"}}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "Hubo un error al realizar la búsqueda externa."},
		&stubProvider{name: "documentos-internos", text: "\n\n### Contexto de Documentos Internos (RAG):\nError de conexión al buscar en los documentos internos.\n"},
	), streamer, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{Prompt: "pregunta"}, "", rec.emit)

	count, last := rec.terminalCount()
	assert.Equal(t, 1, count)
	assert.True(t, last)
	assert.IsType(t, model.DoneEvent{}, rec.frames[len(rec.frames)-1])

	// Placeholders reached the prompt instead of being dropped.
	assert.Contains(t, streamer.gotPrompt, "Hubo un error al realizar la búsqueda externa.")
	assert.Contains(t, streamer.gotPrompt, "Error de conexión al buscar en los documentos internos.")
}

func TestFragmentConcatenationMatchesPersistedAnswer(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "ctx"},
	), &stubStreamer{fragments: []string{"Hola", " ", "mundo", "!"}}, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{Prompt: "pregunta"}, "", rec.emit)

	idEvent := rec.frames[0].(model.ConversationIDEvent)
	history, err := st.History(context.Background(), "u1", idEvent.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "Hola mundo!", rec.textConcat())
	assert.Equal(t, rec.textConcat(), history[1].Content)
}

func TestTitleAssignmentIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "ctx"},
	), &stubStreamer{fragments: []string{"r"}}, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{Prompt: "primera pregunta del usuario aquí mismo"}, "", rec.emit)
	convID := rec.frames[0].(model.ConversationIDEvent).ID

	conv, err := st.GetOrCreate(context.Background(), "u1", convID)
	require.NoError(t, err)
	assert.Equal(t, "primera pregunta del usuario aquí...", conv.Title)

	// The user customizes the title; a second run must not overwrite it.
	require.NoError(t, st.Rename(context.Background(), "u1", convID, "Mi título"))

	rec2 := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{
		Prompt:         "segunda pregunta totalmente distinta",
		ConversationID: convID,
	}, "", rec2.emit)

	conv, err = st.GetOrCreate(context.Background(), "u1", convID)
	require.NoError(t, err)
	assert.Equal(t, "Mi título", conv.Title)
}

func TestHistoryExcludesCurrentTurn(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	conv, err := st.GetOrCreate(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, st.AppendMessage(ctx, "u1", conv.ID, model.RoleUser, "antes"))
	require.NoError(t, st.AppendMessage(ctx, "u1", conv.ID, model.RoleModel, "respuesta previa"))

	streamer := &stubStreamer{fragments: []string{"r"}}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "ctx"},
	), streamer, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(ctx, "u1", &model.ChatRequest{Prompt: "ahora", ConversationID: conv.ID}, "", rec.emit)

	// The just-appended question is carried in the prompt, not the history.
	require.Len(t, streamer.gotTurns, 2)
	assert.Equal(t, "antes", streamer.gotTurns[0].Content)
	assert.Equal(t, "respuesta previa", streamer.gotTurns[1].Content)
}

func TestClientDisconnectStopsStreaming(t *testing.T) {
	st := store.NewMemoryStore()
	streamer := &stubStreamer{fragments: []string{"uno", "dos", "tres", "cuatro"}}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "ctx"},
	), streamer, logger.NewNop())

	// Writes start failing after the conversation_id, one status and two
	// text frames have been delivered.
	rec := &frameRecorder{failFrom: 4}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{Prompt: "pregunta"}, "", rec.emit)

	texts := 0
	for _, f := range rec.frames {
		switch f.(type) {
		case model.TextEvent:
			texts++
		case model.DoneEvent:
			t.Fatal("done must not be emitted after the client disconnected")
		}
	}
	assert.Equal(t, 2, texts)
}

func TestCanceledContextEndsSilently(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	streamer := &stubStreamer{fragments: []string{"uno", "dos", "tres"}}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "ctx"},
	), streamer, logger.NewNop())

	rec := &frameRecorder{}
	emit := func(frame any) error {
		if err := rec.emit(frame); err != nil {
			return err
		}
		if rec.textConcat() == "unodos" {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	svc.StreamAnswer(ctx, "u1", &model.ChatRequest{Prompt: "pregunta"}, "", emit)

	count, _ := rec.terminalCount()
	assert.Zero(t, count, "a canceled stream gets no terminal frame; the client is gone")
}

func TestStoreFailureEmitsGenericError(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore()}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "ctx"},
	), &stubStreamer{fragments: []string{"r"}}, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{Prompt: "pregunta"}, "", rec.emit)

	count, last := rec.terminalCount()
	require.Equal(t, 1, count)
	require.True(t, last)
	errEvent, ok := rec.frames[len(rec.frames)-1].(model.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, GenericErrorMessage, errEvent.Error)
}

func TestContextMergeUsesCompletionOrder(t *testing.T) {
	st := store.NewMemoryStore()
	streamer := &stubStreamer{fragments: []string{"r"}}
	svc := NewChatService(st, providersOf(
		&stubProvider{name: "busqueda-web", text: "BLOQUE-WEB", delay: 100 * time.Millisecond},
		&stubProvider{name: "documentos-internos", text: "BLOQUE-RAG"},
	), streamer, logger.NewNop())

	rec := &frameRecorder{}
	svc.StreamAnswer(context.Background(), "u1", &model.ChatRequest{Prompt: "pregunta"}, "", rec.emit)

	// Both blocks are present; their order is a merge-policy detail that
	// tests must not pin down.
	assert.Contains(t, streamer.gotPrompt, "BLOQUE-WEB")
	assert.Contains(t, streamer.gotPrompt, "BLOQUE-RAG")
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "corta", deriveTitle("corta"))
	assert.Equal(t, "una dos tres cuatro cinco", deriveTitle("una dos tres cuatro cinco"))
	assert.Equal(t, "una dos tres cuatro cinco...", deriveTitle("una dos tres cuatro cinco seis"))
}

// failingStore fails every message append.
type failingStore struct {
	store.Store
}

func (f *failingStore) AppendMessage(ctx context.Context, userID, conversationID string, role model.Role, content string) error {
	return errors.New("store unavailable")
}
