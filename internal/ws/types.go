package ws

import "encoding/json"

// Event types (server -> client)
const (
	EventMessageCreate = "MESSAGE_CREATE"
	EventMessageAck    = "MESSAGE_ACK"
	EventReady         = "READY"
	EventError         = "ERROR"
)

// Command types (client -> server)
const (
	CmdMessageSend = "MESSAGE_SEND"
)

const (
	ErrCodeMessageTooLong   = "MESSAGE_TOO_LONG"
	ErrCodeInvalidRecipient = "INVALID_RECIPIENT"
	ErrCodeInvalidPayload   = "INVALID_PAYLOAD"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type OutEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type MessageSendPayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ReadyPayload struct {
	UserID string `json:"userId"`
}
