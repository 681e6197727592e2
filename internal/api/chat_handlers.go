package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gwi.com/chattyagent/internal/core"
)

type CreateChatRequest struct {
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
}

type SendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	chat, err := h.chats.Create(r.Context(), currentUser(r).ID, req.ProjectID, req.Title)
	if err != nil {
		h.fail(w, r, err, "Error creating chat")
		return
	}
	respond(w, http.StatusCreated, "Chat created successfully", M{"chat": chat})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	page := core.NewPage(queryInt(r, "page"), queryInt(r, "limit"), core.DefaultChatPageSize)
	chats, pagination, err := h.chats.List(r.Context(), currentUser(r).ID, r.URL.Query().Get("projectId"), page)
	if err != nil {
		h.fail(w, r, err, "Error fetching chats")
		return
	}
	respond(w, http.StatusOK, "", M{"chats": chats, "pagination": pagination})
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chats.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "chatID"))
	if err != nil {
		h.fail(w, r, err, "Error fetching chat")
		return
	}
	respond(w, http.StatusOK, "", M{"chat": chat})
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	exchange, err := h.chats.SendMessage(r.Context(), currentUser(r).ID, req.ChatID, req.Message)
	if err != nil {
		h.fail(w, r, err, "Error sending message")
		return
	}
	respond(w, http.StatusOK, "", exchange)
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "chatID")); err != nil {
		h.fail(w, r, err, "Error deleting chat")
		return
	}
	respond(w, http.StatusOK, "Chat deleted successfully", nil)
}
