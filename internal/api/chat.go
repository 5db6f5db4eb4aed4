package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/middleware"
	"github.com/kiran-v/ripplechat/internal/repository"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ChatHandler manages persisted conversations. Every endpoint is
// scoped to the authenticated caller: you only see and touch chats you
// participate in.
type ChatHandler struct {
	chats  repository.ChatRepository
	logger *zap.Logger
}

func NewChatHandler(chats repository.ChatRepository, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

type createChatRequest struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids" binding:"required,min=1"`
}

// Create handles POST /v1/chats
//
// The caller is always a participant of the chat they create, whether
// or not they listed themselves.
func (h *ChatHandler) Create(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.GetUserID(c)
	participants := lo.Uniq(append(req.ParticipantIDs, userID))
	if len(participants) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a chat needs at least two participants"})
		return
	}

	chat, err := h.chats.Create(c.Request.Context(), participants)
	if err != nil {
		h.logger.Error("failed to create chat", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chat"})
		return
	}

	c.JSON(http.StatusCreated, chat)
}

// List handles GET /v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	chats, err := h.chats.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}

	c.JSON(http.StatusOK, chats)
}

// GetByID handles GET /v1/chats/:id
func (h *ChatHandler) GetByID(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	chat, err := h.chats.GetByID(c.Request.Context(), chatID)
	if err != nil {
		h.logger.Error("failed to get chat", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get chat"})
		return
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	// Non-participants get the same 404 as a missing chat, so chat ids
	// can't be probed.
	if !lo.Contains(chat.Participants, middleware.GetUserID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	c.JSON(http.StatusOK, chat)
}

// Delete handles DELETE /v1/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("failed to check chat membership", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return
	}
	if !member {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}

	if err := h.chats.Delete(c.Request.Context(), chatID); err != nil {
		h.logger.Error("failed to delete chat", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "chat deleted"})
}
