// Package models holds the data model shared by the REST surface, the
// repositories, and the real-time delivery core.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. PasswordHash never leaves the server;
// the json tag makes sure it can't leak through a handler response.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chat is a persisted conversation between two or more users. Its ID
// doubles as the room identifier for live delivery: joining a chat's
// room requires being one of its participants.
type Chat struct {
	ID           uuid.UUID   `json:"id"`
	Participants []uuid.UUID `json:"participants"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Message is one durably appended chat message.
//
// IDs are bigserial, not UUIDs: a single sequence keeps them
// monotonically increasing in append order, which makes the ID the
// ordering authority within a chat and a natural pagination cursor.
// ReceiverID is set only for directed messages in group chats.
type Message struct {
	ID         int64      `json:"id"`
	ChatID     uuid.UUID  `json:"chat_id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	ReceiverID *uuid.UUID `json:"receiver_id,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

// OutboundMessage is the canonical form delivered to clients: the
// persisted record enriched with the sender's display name. It is
// derived at delivery time, never stored.
type OutboundMessage struct {
	Message
	SenderDisplayName string `json:"sender_display_name"`
}
