package ws

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/models"
	"github.com/kiran-v/ripplechat/internal/repository"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// History serves the replay window sent to a connection when it joins a
// room: the newest messages in chronological order.
//
// The cache is trusted only when it holds a full window. A shorter list
// is ambiguous (young chat, or a cache flushed while the chat kept
// growing), so anything short goes back to the store and the cache is
// rewritten from that authoritative read.
type History struct {
	cache    HistoryCache
	messages repository.MessageRepository
	limit    int
	logger   *zap.Logger
}

func NewHistory(cache HistoryCache, messages repository.MessageRepository, limit int, logger *zap.Logger) *History {
	return &History{
		cache:    cache,
		messages: messages,
		limit:    limit,
		logger:   logger,
	}
}

// Recent returns the last page of messages for a chat, oldest first.
func (h *History) Recent(ctx context.Context, chatID uuid.UUID) ([]models.OutboundMessage, error) {
	if h.cache != nil {
		cached, err := h.cache.Recent(ctx, chatID, h.limit)
		if err != nil {
			h.logger.Warn("history cache read failed",
				zap.String("chat_id", chatID.String()),
				zap.Error(err),
			)
		} else if len(cached) == h.limit {
			return lo.Reverse(cached), nil
		}
	}

	recent, err := h.messages.ListRecent(ctx, chatID, h.limit)
	if err != nil {
		return nil, fmt.Errorf("read recent messages: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.Replace(ctx, chatID, recent); err != nil {
			h.logger.Warn("history cache rewrite failed",
				zap.String("chat_id", chatID.String()),
				zap.Error(err),
			)
		}
	}

	// Store reads are newest first; clients want chronological.
	return lo.Reverse(recent), nil
}
