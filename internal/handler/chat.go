// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/iiresodh/pida-backend/internal/middleware"
	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/internal/service"
	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/metrics"
)

// GeoHeader carries the optional geographic hint. Absence never errors.
const GeoHeader = "X-Country-Code"

// ChatStreamer runs the answer pipeline for one request.
type ChatStreamer interface {
	StreamAnswer(ctx context.Context, userID string, req *model.ChatRequest, geo string, emit service.Emit)
}

// ChatHandler handles the streaming chat endpoint.
type ChatHandler struct {
	chat   ChatStreamer
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat ChatStreamer, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: log}
}

// Stream handles POST /api/v1/chat/stream. The response is a long-lived
// event stream carrying one JSON object per data line; the handler flushes
// after every frame so fragments reach the network promptly.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidatePrompt(req.Prompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	geo := r.Header.Get(GeoHeader)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable proxy buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	h.chat.StreamAnswer(ctx, userID, &req, geo, func(frame any) error {
		return writeFrame(w, flusher, frame)
	})
}

// writeFrame writes one stream frame as a single data line and flushes it.
func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
