package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/middleware"
	"github.com/kiran-v/ripplechat/internal/repository"
	"go.uber.org/zap"
)

// MessageHandler serves paginated history over persisted messages.
// The live path never goes through here; this is the catch-up read for
// scrollback beyond the replay window.
type MessageHandler struct {
	messages repository.MessageRepository
	chats    repository.ChatRepository
	logger   *zap.Logger
}

func NewMessageHandler(messages repository.MessageRepository, chats repository.ChatRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, chats: chats, logger: logger}
}

// List handles GET /v1/chats/:id/messages?before=123&limit=50
//
// Cursor pagination on the message id: before=0 (or absent) starts from
// the latest; otherwise messages older than the cursor are returned.
// Default page 50, capped at 100.
func (h *MessageHandler) List(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("failed to check chat membership", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	if !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 100 {
			limit = 100
		}
	}

	messages, err := h.messages.ListByChat(c.Request.Context(), chatID, before, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}
