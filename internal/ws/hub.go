// Package ws relays direct messages between connected clients. Messages are
// persisted before delivery so an offline recipient sees them in history.
package ws

import (
	"log/slog"
	"strings"
	"sync"

	"beacon/internal/db"
)

const maxMessageContentLength = 4000

type Hub struct {
	messages *db.MessageRepository

	mu      sync.RWMutex
	clients map[string]*Client // user id -> active connection
	closed  bool
}

func NewHub(messages *db.MessageRepository) *Hub {
	return &Hub{
		messages: messages,
		clients:  make(map[string]*Client),
	}
}

// Register attaches a client, displacing any previous connection for the
// same user (one live connection per user, latest wins).
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return
	}
	previous := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	c.sendEvent(EventReady, ReadyPayload{UserID: c.userID})
	slog.Info("ws client connected", "component", "ws", "user_id", c.userID)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	slog.Info("ws client disconnected", "component", "ws", "user_id", c.userID)
}

func (h *Hub) GetClient(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// SendDirect persists a direct message and delivers it to the recipient's
// live connection, if any. The sender always receives an ack with the stored
// message.
func (h *Hub) SendDirect(sender *Client, to, content string) {
	content = strings.TrimSpace(content)
	if content == "" || to == "" {
		sender.sendEvent(EventError, ErrorPayload{Code: ErrCodeInvalidPayload, Message: "recipient and content are required"})
		return
	}
	if len(content) > maxMessageContentLength {
		sender.sendEvent(EventError, ErrorPayload{Code: ErrCodeMessageTooLong, Message: "message content too long"})
		return
	}

	msg, err := h.messages.Create(sender.userID, to, content)
	if err != nil {
		slog.Error("error storing relayed message", "component", "ws", "error", err)
		sender.sendEvent(EventError, ErrorPayload{Code: ErrCodeInvalidRecipient, Message: "message could not be delivered"})
		return
	}

	if recipient := h.GetClient(to); recipient != nil {
		recipient.sendEvent(EventMessageCreate, msg)
	}

	sender.sendEvent(EventMessageAck, msg)
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
