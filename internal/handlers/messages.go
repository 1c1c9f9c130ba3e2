package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidfriends/watchparty/internal/apierr"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/chat"
	"github.com/vidfriends/watchparty/internal/models"
)

// MessageHandler exposes global and private chat over HTTP. The live socket
// carries the same operations for connected clients.
type MessageHandler struct {
	Chat    ChatService
	Limiter RateLimiter
}

type sendRequest struct {
	Content string `json:"content" validate:"required"`
	ReplyTo string `json:"replyTo" validate:"omitempty,uuid"`
}

type editRequest struct {
	Content string `json:"content" validate:"required"`
}

type clearResponse struct {
	Removed int64 `json:"removed"`
}

// Global handles GET /api/v1/messages.
func (h MessageHandler) Global(w http.ResponseWriter, r *http.Request) {
	messages, err := h.Chat.GlobalMessages(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	respondJSON(r.Context(), w, http.StatusOK, messages)
}

// SendGlobal handles POST /api/v1/messages.
func (h MessageHandler) SendGlobal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := auth.IdentityFromContext(ctx)
	if !allowRequest(h.Limiter, r, "chat:"+identity.UserID) {
		respondError(ctx, w, apierr.ErrRateLimited)
		return
	}
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	msg, err := h.Chat.SendGlobal(ctx, identity, req.Content, req.ReplyTo, chat.SendOptions{})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, msg)
}

// Clear handles DELETE /api/v1/messages. Admins only.
func (h MessageHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.Chat.ClearGlobal(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clearResponse{Removed: removed})
}

// Conversation handles GET /api/v1/messages/private/{userID}.
func (h MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	messages, err := h.Chat.Conversation(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	respondJSON(ctx, w, http.StatusOK, messages)
}

// SendPrivate handles POST /api/v1/messages/private/{userID}.
func (h MessageHandler) SendPrivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := auth.IdentityFromContext(ctx)
	if !allowRequest(h.Limiter, r, "chat:"+identity.UserID) {
		respondError(ctx, w, apierr.ErrRateLimited)
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	msg, err := h.Chat.SendPrivate(ctx, identity, chi.URLParam(r, "userID"), req.Content)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, msg)
}

// Edit handles PATCH /api/v1/messages/{messageID}.
func (h MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	msg, err := h.Chat.Edit(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "messageID"), req.Content)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/{messageID}.
func (h MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Chat.Delete(ctx, auth.IdentityFromContext(ctx), chi.URLParam(r, "messageID")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
