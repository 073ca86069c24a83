package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/chat"
	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/telemetry"
)

// MessageService is the direct-message protocol the handlers expose.
type MessageService interface {
	Send(ctx context.Context, req chat.SendRequest) (models.Message, error)
	ToggleLike(ctx context.Context, req chat.LikeRequest) (models.Message, error)
	History(ctx context.Context, rawChatID, callerID string) ([]models.Message, error)
}

// MessageHandler serves the send, like and history endpoints.
type MessageHandler struct {
	service MessageService
	audit   *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler. audit may be nil.
func NewMessageHandler(service MessageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{service: service, audit: audit}
}

type sendRequest struct {
	Text       string  `json:"text"`
	ChatID     string  `json:"chatId"`
	ReplyingTo *string `json:"replyingTo"`
}

type likeRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// Send handles POST /api/message/send.
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	msg, err := h.service.Send(c.Request.Context(), chat.SendRequest{
		ChatID:     req.ChatID,
		SenderID:   userID,
		Text:       req.Text,
		ReplyingTo: req.ReplyingTo,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.EmitWith(c.Request.Context(), "INFO", "message sent", requestIDFromContext(c), userIDFromContext(c), map[string]string{
		"chat_id":    req.ChatID,
		"message_id": msg.ID,
	})
	c.String(http.StatusOK, "OK")
}

// Like handles PUT /api/message/like.
func (h *MessageHandler) Like(c *gin.Context) {
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid request payload")
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	msg, err := h.service.ToggleLike(c.Request.Context(), chat.LikeRequest{
		ChatID:   req.ChatID,
		CallerID: userID,
		Target:   models.MessageRef{ID: req.MessageID, Timestamp: req.Timestamp},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	text := "message unliked"
	if msg.IsLiked {
		text = "message liked"
	}
	h.audit.EmitWith(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c), map[string]string{
		"chat_id":    req.ChatID,
		"message_id": msg.ID,
	})
	c.String(http.StatusOK, "OK")
}

// History handles GET /api/chats/:chat_id/messages.
func (h *MessageHandler) History(c *gin.Context) {
	msgs, err := h.service.History(c.Request.Context(), c.Param("chat_id"), c.GetString(middleware.UserIDKey))
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		c.String(http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, chat.ErrValidation):
		c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrMessageNotFound):
		c.String(http.StatusNotFound, "Message not found")
	case errors.Is(err, chat.ErrConflict):
		c.String(http.StatusConflict, "Message changed concurrently, try again")
	default:
		zap.L().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "Internal Server Error")
	}
}
