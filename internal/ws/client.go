package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	sendBufferSize = 64
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	send      chan []byte
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run pumps the connection until either side goes away.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) sendEvent(eventType string, data any) {
	payload, err := json.Marshal(OutEnvelope{Type: eventType, Data: data})
	if err != nil {
		slog.Error("error encoding ws event", "component", "ws", "error", err)
		return
	}

	defer func() {
		// Sending on a closed channel panics; a client torn down mid-send
		// just drops the event.
		_ = recover()
	}()

	select {
	case c.send <- payload:
	default:
		// Slow consumer; drop rather than block the hub.
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("ws read error", "component", "ws", "user_id", c.userID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendEvent(EventError, ErrorPayload{Code: ErrCodeInvalidPayload, Message: "invalid message envelope"})
			continue
		}

		switch env.Type {
		case CmdMessageSend:
			var payload MessageSendPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				c.sendEvent(EventError, ErrorPayload{Code: ErrCodeInvalidPayload, Message: "invalid message payload"})
				continue
			}
			c.hub.SendDirect(c, payload.To, payload.Content)
		default:
			c.sendEvent(EventError, ErrorPayload{Code: ErrCodeInvalidPayload, Message: "unknown command"})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
