package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/chat"
	"github.com/dukerupert/cleanwarts/internal/model"
)

type ChatHandler struct {
	chat   *chat.Service
	users  UserLookup
	logger *slog.Logger
}

func NewChatHandler(svc *chat.Service, users UserLookup, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, users: users, logger: logger}
}

// List handles GET /api/chat. Members only read their own house's room.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	house := houseOrDefault(auth.House(r.Context()))
	msgs, err := h.chat.Recent(r.Context(), house)
	if err != nil {
		writeServiceError(w, h.logger, "failed to load chat", err)
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type chatRequest struct {
	Text string `json:"text"`
}

// Post handles POST /api/chat
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := currentUser(w, r, h.users, h.logger)
	if user == nil {
		return
	}

	msg, err := h.chat.Post(r.Context(), user, req.Text)
	if err != nil {
		writeServiceError(w, h.logger, "failed to post message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
