package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"beacon/internal/db"
)

type MessageHandler struct {
	messages *db.MessageRepository
	users    *db.UserRepository
}

func NewMessageHandler(messages *db.MessageRepository, users *db.UserRepository) *MessageHandler {
	return &MessageHandler{messages: messages, users: users}
}

// GET /api/v1/messages?with=<userID>&limit=<n>&before=<messageID>
//
// Returns the conversation between the caller and the other user, newest
// first. before pages backwards through history.
func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	otherID := r.URL.Query().Get("with")
	if otherID == "" {
		badRequest(w, "with query parameter is required")
		return
	}

	if _, err := h.users.FindByID(otherID); err != nil {
		notFound(w, "User not found")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := h.messages.Conversation(userID, otherID, r.URL.Query().Get("before"), limit)
	if err != nil {
		slog.Error("error loading conversation", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
