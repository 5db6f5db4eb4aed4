// Package cache keeps a bounded per-chat window of recent messages in
// redis so history replay on join usually avoids a Postgres read.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/models"
	"github.com/redis/go-redis/v9"
)

// History is a newest-first redis list per chat, trimmed to a fixed
// depth. It is a read optimization only: Postgres stays the source of
// truth, and every caller treats cache errors as a miss.
type History struct {
	rdb  *redis.Client
	keep int
}

func NewHistory(rdb *redis.Client, keep int) *History {
	return &History{rdb: rdb, keep: keep}
}

func historyKey(chatID uuid.UUID) string {
	return "chat:history:" + chatID.String()
}

// Push prepends a freshly persisted message and trims the list back to
// the retention depth.
func (h *History) Push(ctx context.Context, chatID uuid.UUID, msg models.OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal cached message: %w", err)
	}

	key := historyKey(chatID)
	pipe := h.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(h.keep-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push cached message: %w", err)
	}
	return nil
}

// Recent returns up to limit cached messages, newest first. A missing
// key yields an empty slice, not an error.
func (h *History) Recent(ctx context.Context, chatID uuid.UUID, limit int) ([]models.OutboundMessage, error) {
	raw, err := h.rdb.LRange(ctx, historyKey(chatID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read cached history: %w", err)
	}

	messages := make([]models.OutboundMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.OutboundMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal cached message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Replace rewrites the whole window from an authoritative newest-first
// read of the store. Used after a miss so later joins hit the cache.
func (h *History) Replace(ctx context.Context, chatID uuid.UUID, msgs []models.OutboundMessage) error {
	key := historyKey(chatID)

	pipe := h.rdb.TxPipeline()
	pipe.Del(ctx, key)
	// RPush in newest-first order keeps index 0 the newest, matching
	// what Push maintains.
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal cached message: %w", err)
		}
		pipe.RPush(ctx, key, payload)
	}
	pipe.LTrim(ctx, key, 0, int64(h.keep-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace cached history: %w", err)
	}
	return nil
}
