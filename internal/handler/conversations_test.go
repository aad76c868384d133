package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiresodh/pida-backend/internal/middleware"
	"github.com/iiresodh/pida-backend/internal/model"
	"github.com/iiresodh/pida-backend/internal/service"
	"github.com/iiresodh/pida-backend/internal/store"
	"github.com/iiresodh/pida-backend/pkg/logger"
)

// newConversationRouter wires the handler against a real in-memory store,
// with identity taken from the X-User-ID header.
func newConversationRouter(st store.Store) http.Handler {
	svc := service.NewConversationService(st, logger.NewNop())
	h := NewConversationHandler(svc, logger.NewNop())

	r := chi.NewRouter()
	r.Use(middleware.Identity(middleware.NewHeaderResolver("")))
	r.Get("/conversations", h.List)
	r.Post("/conversations", h.Create)
	r.Get("/conversations/{id}/messages", h.Messages)
	r.Put("/conversations/{id}", h.Rename)
	r.Delete("/conversations/{id}", h.Delete)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestConversationLifecycle(t *testing.T) {
	st := store.NewMemoryStore()
	router := newConversationRouter(st)

	// Create with an explicit title.
	w := doRequest(t, router, http.MethodPost, "/conversations", "u1", `{"title":"Caso López"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, "Caso López", conv.Title)

	// It shows up in the listing.
	w = doRequest(t, router, http.MethodGet, "/conversations", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listing model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Conversations, 1)
	assert.Equal(t, conv.ID, listing.Conversations[0].ID)

	// Messages of an empty conversation are an empty array, not null.
	w = doRequest(t, router, http.MethodGet, "/conversations/"+conv.ID+"/messages", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)

	// Rename.
	w = doRequest(t, router, http.MethodPut, "/conversations/"+conv.ID, "u1", `{"title":"Caso López v2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got, err := st.GetOrCreate(context.Background(), "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Caso López v2", got.Title)

	// Delete, then the listing is empty again.
	w = doRequest(t, router, http.MethodDelete, "/conversations/"+conv.ID, "u1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doRequest(t, router, http.MethodGet, "/conversations", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conversations":[]`)
}

func TestConversationCreateWithoutTitleUsesSentinel(t *testing.T) {
	router := newConversationRouter(store.NewMemoryStore())

	w := doRequest(t, router, http.MethodPost, "/conversations", "u1", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, model.SentinelTitle, conv.Title)
}

func TestConversationOwnershipIsScoped(t *testing.T) {
	st := store.NewMemoryStore()
	router := newConversationRouter(st)

	w := doRequest(t, router, http.MethodPost, "/conversations", "u1", `{"title":"Privada"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	// Another user neither lists nor renames nor deletes it.
	w = doRequest(t, router, http.MethodGet, "/conversations", "u2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conversations":[]`)

	w = doRequest(t, router, http.MethodPut, "/conversations/"+conv.ID, "u2", `{"title":"robada"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/conversations/"+conv.ID, "u2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationValidationErrors(t *testing.T) {
	router := newConversationRouter(store.NewMemoryStore())

	w := doRequest(t, router, http.MethodGet, "/conversations/not-a-uuid/messages", "u1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPut, "/conversations/not-a-uuid", "u1", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPost, "/conversations", "u1", `{"title":"`+strings.Repeat("a", 300)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No identity at all.
	w = doRequest(t, router, http.MethodGet, "/conversations", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
