// Package ws implements the real-time delivery core: per-connection
// session state machines, the connection registry and room index, the
// message ingestion pipeline, room broadcast, and history replay, all
// behind a websocket gateway.
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client-to-server event names.
const (
	EventAuthenticate = "authenticate"
	EventJoin         = "join"
	EventSendMessage  = "sendMessage"
)

// Server-to-client event names.
const (
	EventAuthenticated  = "authenticated"
	EventUnauthorized   = "unauthorized"
	EventMessageHistory = "messageHistory"
	EventMessage        = "message"
	EventError          = "error"
)

// Event is the JSON envelope for everything crossing the socket, in
// both directions: {"event": "...", "data": {...}}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent wraps a payload into an envelope.
func NewEvent(name string, data any) (Event, error) {
	if data == nil {
		return Event{Name: name}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", name, err)
	}
	return Event{Name: name, Data: raw}, nil
}

// AuthenticatePayload carries the bearer token for the out-of-band
// authentication step after connect.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// JoinPayload asks to join the live room of a persisted chat.
type JoinPayload struct {
	ChatID uuid.UUID `json:"chat_id"`
}

// SendMessagePayload is the untrusted inbound message. The sender is
// always taken from the session's principal, never from the payload.
type SendMessagePayload struct {
	Content    string     `json:"content"`
	ChatID     uuid.UUID  `json:"chat_id"`
	ReceiverID *uuid.UUID `json:"receiver_id,omitempty"`
}

// reasonPayload is the body of unauthorized and error events.
type reasonPayload struct {
	Message string `json:"message"`
}

func errorEvent(msg string) Event {
	ev, _ := NewEvent(EventError, reasonPayload{Message: msg})
	return ev
}

func unauthorizedEvent(msg string) Event {
	ev, _ := NewEvent(EventUnauthorized, reasonPayload{Message: msg})
	return ev
}
