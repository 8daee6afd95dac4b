package http

import (
	"net/http"

	"courtside/internal/domain"
	"courtside/internal/service"

	"github.com/google/uuid"
)

type openChatRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type chatDetail struct {
	*service.ChatSummary
	Messages []domain.Message `json:"messages"`
}

func (h *handler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Services.Chats.List(r.Context(), identity(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *handler) openChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	chat, err := h.Services.Chats.Open(r.Context(), identity(r), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *handler) getChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id := identity(r)
	summary, err := h.Services.Chats.Get(r.Context(), id, chatID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msgs, err := h.Services.Chats.Messages(r.Context(), id, chatID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatDetail{ChatSummary: summary, Messages: msgs})
}

func (h *handler) sendChatMessage(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.Services.Chats.Send(r.Context(), identity(r), chatID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
