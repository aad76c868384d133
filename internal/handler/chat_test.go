package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/internal/service"
	"github.com/iiresodh/pida-backend/pkg/logger"
)

// scriptedChat emits a fixed frame sequence and records what it was called with.
type scriptedChat struct {
	frames  []any
	gotReq  *model.ChatRequest
	gotGeo  string
	gotUser string
}

func (s *scriptedChat) StreamAnswer(ctx context.Context, userID string, req *model.ChatRequest, geo string, emit service.Emit) {
	s.gotUser = userID
	s.gotReq = req
	s.gotGeo = geo
	for _, f := range s.frames {
		if err := emit(f); err != nil {
			return
		}
	}
}

func TestChatStreamFraming(t *testing.T) {
	chat := &scriptedChat{frames: []any{
		model.NewConversationIDEvent("c1"),
		model.NewStatusEvent("Contexto recibido: busqueda-web"),
		model.NewTextEvent("Hola"),
		model.NewTextEvent(" mundo"),
		model.NewDoneEvent(),
	}}
	h := NewChatHandler(chat, logger.NewNop())

	body := strings.NewReader(`{"prompt":"¿Qué es el debido proceso?"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", body)
	r.Header.Set(GeoHeader, "CR")
	w := httptest.NewRecorder()

	h.Stream(w, r)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
	assert.True(t, w.Flushed)

	assert.Equal(t, "¿Qué es el debido proceso?", chat.gotReq.Prompt)
	assert.Equal(t, "CR", chat.gotGeo)

	// Every frame is one "data: <json>" line followed by a blank line.
	raw := w.Body.String()
	require.True(t, strings.HasSuffix(raw, "\n\n"))
	lines := strings.Split(strings.TrimSuffix(raw, "\n\n"), "\n\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "data: "), "line %q", line)
		assert.NotContains(t, line, "event:", "frames carry no SSE event field")
	}

	assert.JSONEq(t, `{"event":"conversation_id","id":"c1"}`, strings.TrimPrefix(lines[0], "data: "))
	assert.JSONEq(t, `{"text":"Hola"}`, strings.TrimPrefix(lines[2], "data: "))
	assert.JSONEq(t, `{"event":"done"}`, strings.TrimPrefix(lines[4], "data: "))
}

func TestChatStreamRejectsEmptyPrompt(t *testing.T) {
	chat := &scriptedChat{}
	h := NewChatHandler(chat, logger.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{"prompt":"   "}`))
	w := httptest.NewRecorder()
	h.Stream(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Nil(t, chat.gotReq, "validation must fail before any streaming starts")
}

func TestChatStreamRejectsInvalidBody(t *testing.T) {
	h := NewChatHandler(&scriptedChat{}, logger.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	h.Stream(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamRejectsMalformedConversationID(t *testing.T) {
	chat := &scriptedChat{}
	h := NewChatHandler(chat, logger.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream",
		strings.NewReader(`{"prompt":"hola","conversation_id":"not-a-uuid"}`))
	w := httptest.NewRecorder()
	h.Stream(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, chat.gotReq)
}
