package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-router/internal/logging"
	"chat-router/internal/models"
	"chat-router/internal/persistence"
	"chat-router/internal/router"
	"chat-router/internal/telemetry"
)

// MessageRouter is the routing surface used by the HTTP ingress.
type MessageRouter interface {
	RoutePublic(ctx context.Context, msg models.ChatMessage) (router.Delivery, error)
	RoutePrivate(ctx context.Context, msg models.ChatMessage) (router.Delivery, error)
}

// HistoryReader answers history queries.
type HistoryReader interface {
	History(ctx context.Context, userA, userB string) ([]models.StoredMessage, error)
}

// MessageHandler exposes routing and history over HTTP.
type MessageHandler struct {
	router  MessageRouter
	history HistoryReader
	audit   *telemetry.AuditEmitter
}

func NewMessageHandler(r MessageRouter, history HistoryReader, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{router: r, history: history, audit: audit}
}

type messageRequest struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	Media     string `json:"media"`
	MediaType string `json:"media_type"`
	Status    string `json:"status"`
}

type deliveryResponse struct {
	Message   models.ChatMessage `json:"message"`
	ID        int64              `json:"id"`
	Timestamp string             `json:"timestamp"`
	Delivered int                `json:"delivered"`
	Failed    int                `json:"failed"`
	Offline   bool               `json:"offline,omitempty"`
}

// PostPublic routes a message from the authenticated user to the public room.
func (h *MessageHandler) PostPublic(c *gin.Context) {
	msg, ok := h.bind(c)
	if !ok {
		return
	}
	msg.Recipient = ""

	d, err := h.router.RoutePublic(c.Request.Context(), msg)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.emitAudit(c, "INFO", "Public message routed")
	c.JSON(http.StatusCreated, toResponse(d))
}

// PostPrivate routes a message from the authenticated user to one recipient.
func (h *MessageHandler) PostPrivate(c *gin.Context) {
	msg, ok := h.bind(c)
	if !ok {
		return
	}

	d, err := h.router.RoutePrivate(c.Request.Context(), msg)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.emitAudit(c, "INFO", "Private message routed")
	c.JSON(http.StatusCreated, toResponse(d))
}

// GetHistory returns every record involving either user, oldest first.
func (h *MessageHandler) GetHistory(c *gin.Context) {
	user1, user2 := c.Param("user1"), c.Param("user2")
	if user1 == "" || user2 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two users are required"})
		return
	}

	msgs, err := h.history.History(c.Request.Context(), user1, user2)
	if errors.Is(err, persistence.ErrInvalidQuery) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger := logging.Ctx(c.Request.Context())
		logger.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) bind(c *gin.Context) (models.ChatMessage, bool) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.ChatMessage{}, false
	}
	return models.ChatMessage{
		Sender:    usernameFromContext(c),
		Recipient: req.Recipient,
		Body:      req.Body,
		Media:     req.Media,
		MediaType: req.MediaType,
		Status:    req.Status,
	}, true
}

func (h *MessageHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, router.ErrPersistenceFailed):
		logger := logging.Ctx(c.Request.Context())
		logger.Error().Err(err).Msg("message not stored")
		h.emitAudit(c, "ERROR", "message not stored")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message could not be stored"})
	default:
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), usernameFromContext(c))
}

func toResponse(d router.Delivery) deliveryResponse {
	return deliveryResponse{
		Message:   d.Message,
		ID:        d.Stored.ID,
		Timestamp: d.Stored.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Delivered: d.Delivered,
		Failed:    d.Failed,
		Offline:   d.Offline,
	}
}
