package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"beacon/internal/auth"
	"beacon/internal/db"
	"beacon/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub        *ws.Hub
	jwtService *auth.JWTService
	users      *db.UserRepository
}

func NewWebSocketHandler(hub *ws.Hub, jwtService *auth.JWTService, users *db.UserRepository) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		jwtService: jwtService,
		users:      users,
	}
}

// GET /ws?token=<accessToken>
//
// Browsers cannot set an Authorization header on a WebSocket upgrade, so the
// access token travels as a query parameter.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil || claims.Subject == "" {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.FindByID(claims.Subject)
	if err != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, user.ID)
	h.hub.Register(client)
	go client.Run()
}
