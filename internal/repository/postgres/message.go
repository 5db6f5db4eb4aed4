package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiran-v/ripplechat/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Create appends a message. The id comes from a bigserial sequence, so
// insertion order and id order agree and the store stays the ordering
// authority for a chat.
func (s *MessageStore) Create(ctx context.Context, chatID, senderID uuid.UUID, receiverID *uuid.UUID, content string) (*models.Message, error) {
	query := `
		INSERT INTO messages (chat_id, sender_id, receiver_id, content, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, chat_id, sender_id, receiver_id, content, created_at`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, chatID, senderID, receiverID, content).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListByChat(ctx context.Context, chatID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	// Cursor pagination on the id: before=0 means "from the latest",
	// otherwise "older than this id". Both paths are newest first.
	var query string
	var args []any

	if before > 0 {
		query = `
			SELECT id, chat_id, sender_id, receiver_id, content, created_at
			FROM messages
			WHERE chat_id = $1 AND id < $2
			ORDER BY id DESC
			LIMIT $3`
		args = []any{chatID, before, limit}
	} else {
		query = `
			SELECT id, chat_id, sender_id, receiver_id, content, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY id DESC
			LIMIT $2`
		args = []any{chatID, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// ListRecent returns the newest messages with the sender display name
// joined in, newest first. This is the history-replay read path when
// the redis cache can't serve the window.
func (s *MessageStore) ListRecent(ctx context.Context, chatID uuid.UUID, limit int) ([]models.OutboundMessage, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, m.receiver_id, m.content, m.created_at,
		       u.display_name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.OutboundMessage, 0)
	for rows.Next() {
		var msg models.OutboundMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Content,
			&msg.CreatedAt,
			&msg.SenderDisplayName,
		); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	return messages, nil
}
