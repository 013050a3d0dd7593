// Package api exposes the daemon's local control surface over HTTP, for
// frontends running on the same machine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/store"
	"github.com/sancheet230/get-chat/internal/sync"
)

// Engine is the slice of the sync engine the API drives.
type Engine interface {
	Snapshot() sync.Snapshot
	Send(ctx context.Context, conversationKey, content, mediaURL, mediaType string) (string, error)
	Focus(ctx context.Context, conversationKey string) error
	Blur()
	Authenticate(ctx context.Context, token, userID string) error
}

// Handler serves the local API.
type Handler struct {
	engine Engine
	db     *store.DB
	logger *zap.Logger
}

// New creates a handler.
func New(engine Engine, db *store.DB, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, db: db, logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/v1/status", h.getStatus)
	r.Post("/v1/session", h.postSession)
	r.Delete("/v1/focus", h.deleteFocus)
	r.Route("/v1/conversations", func(r chi.Router) {
		r.Get("/", h.listConversations)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/messages", h.getMessages)
			r.Post("/messages", h.postMessage)
			r.Post("/focus", h.postFocus)
		})
	})
	return r
}

func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

type sessionRequest struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func (h *Handler) postSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.engine.Authenticate(r.Context(), req.Token, req.UserID); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

type conversationView struct {
	Key                string `json:"key"`
	Kind               string `json:"kind"`
	Title              string `json:"title,omitempty"`
	UnreadCount        int    `json:"unread_count"`
	LastMessageAt      int64  `json:"last_message_at"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	convos, err := h.db.ListConversations(limit, offset)
	if err != nil {
		h.serverError(w, "list conversations", err)
		return
	}
	out := make([]conversationView, len(convos))
	for i, c := range convos {
		out[i] = conversationView{
			Key:                c.Key,
			Kind:               c.Kind,
			Title:              c.Title,
			UnreadCount:        c.UnreadCount,
			LastMessageAt:      c.LastMessageAt,
			LastMessagePreview: c.LastMessagePreview,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type messageView struct {
	MsgID     string `json:"msg_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	IsRead    bool   `json:"is_read"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	msgs, err := h.db.Query(key)
	if err != nil {
		h.serverError(w, "query messages", err)
		return
	}
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView{
			MsgID:     m.MsgID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			MediaURL:  m.MediaURL,
			MediaType: m.MediaType,
			IsRead:    m.IsRead,
			Timestamp: m.Timestamp,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type sendRequest struct {
	Content   string `json:"content"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

type sendResponse struct {
	TempKey string `json:"temp_key"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tempKey, err := h.engine.Send(r.Context(), key, req.Content, req.MediaURL, req.MediaType)
	if err != nil {
		switch {
		case errors.Is(err, rest.ErrUnauthorized):
			h.writeError(w, http.StatusUnauthorized, "session expired")
		case tempKey != "":
			// Recorded but undelivered; the caller can watch for the ack.
			h.writeJSON(w, http.StatusAccepted, sendResponse{TempKey: tempKey})
		default:
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, sendResponse{TempKey: tempKey})
}

func (h *Handler) postFocus(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Focus(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteFocus(w http.ResponseWriter, _ *http.Request) {
	h.engine.Blur()
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, errorResponse{Error: msg})
}

func (h *Handler) serverError(w http.ResponseWriter, what string, err error) {
	h.logger.Error(what, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, what+" failed")
}
