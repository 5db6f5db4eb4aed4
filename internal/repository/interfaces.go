// Package repository defines the persistence contracts. Implementations
// live in repository/postgres; the real-time core and the REST handlers
// depend only on these interfaces so tests can swap in fakes.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/models"
)

// UserRepository handles account data.
type UserRepository interface {
	// Create inserts a new user and returns it with ID and CreatedAt
	// populated.
	Create(ctx context.Context, username, displayName, passwordHash string) (*models.User, error)

	// GetByID returns a user by ID. Returns nil, nil if not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByUsername looks a user up for login. Returns nil, nil if not
	// found.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ChatRepository handles persisted conversations and their membership.
type ChatRepository interface {
	// Create inserts a chat with the given participants (at least two).
	Create(ctx context.Context, participantIDs []uuid.UUID) (*models.Chat, error)

	// GetByID returns a chat with its participants. Returns nil, nil if
	// not found.
	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)

	// ListByUser returns every chat the user participates in, newest
	// first. Returns an empty slice, not nil, when there are none.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)

	// Delete removes a chat, its participant rows, and its messages.
	Delete(ctx context.Context, chatID uuid.UUID) error

	// IsParticipant checks chat membership. Hot path: called before
	// every room join and every history read.
	IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// MessageRepository is the durable message store. Create is the single
// ordering authority for a chat: message IDs come from one sequence, so
// append order and ID order agree.
type MessageRepository interface {
	// Create appends a message and returns it with ID and CreatedAt
	// assigned. receiverID may be nil.
	Create(ctx context.Context, chatID, senderID uuid.UUID, receiverID *uuid.UUID, content string) (*models.Message, error)

	// ListByChat returns messages newest first, using the message ID as
	// cursor. before=0 means "from the latest".
	ListByChat(ctx context.Context, chatID uuid.UUID, before int64, limit int) ([]models.Message, error)

	// ListRecent returns the newest messages already enriched with the
	// sender's display name, newest first. Used for history replay.
	ListRecent(ctx context.Context, chatID uuid.UUID, limit int) ([]models.OutboundMessage, error)
}
