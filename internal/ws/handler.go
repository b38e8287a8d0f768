// Package ws adapts websocket connections to the router: each connection is
// registered as its user's delivery handle and every inbound frame is routed.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-router/internal/config"
	"chat-router/internal/logging"
	"chat-router/internal/middleware"
	"chat-router/internal/models"
	"chat-router/internal/observability"
	"chat-router/internal/registry"
	"chat-router/internal/router"
)

// MessageRouter routes frames read from clients.
type MessageRouter interface {
	RoutePublic(ctx context.Context, msg models.ChatMessage) (router.Delivery, error)
	RoutePrivate(ctx context.Context, msg models.ChatMessage) (router.Delivery, error)
}

type Handler struct {
	router    MessageRouter
	registry  *registry.Registry
	validator middleware.TokenValidator
	cfg       config.WebSocketConfig
}

func NewHandler(r MessageRouter, reg *registry.Registry, validator middleware.TokenValidator, cfg config.WebSocketConfig) *Handler {
	return &Handler{router: r, registry: reg, validator: validator, cfg: cfg}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades and serves one connection until it closes.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-router/ws").Start(c.Request.Context(), "ws.handshake")

	username, err := h.validator.Validate(tokenFromRequest(c.Request))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Username:    username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   logging.RequestID(ctx),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	if info.RequestID == "" {
		info.RequestID = observability.RequestIDFromRequest(c.Request)
	}
	logger := logging.Ctx(ctx).With().
		Str(logging.FieldUsername, username).
		Str(logging.FieldConnID, info.ConnID).
		Logger()
	ctx = logging.WithLogger(ctx, logger)

	client := NewClient(conn, info, h.cfg)
	if prev := h.registry.Register(username, client); prev != nil {
		if old, ok := prev.(*Client); ok {
			logger.Info().Str("superseded_conn_id", old.Info.ConnID).Msg("closing superseded connection")
			old.Close()
		}
	}
	observability.SetRegisteredUsers(h.registry.Len())
	observability.IncWSActive()
	publishWSEvent(ctx, info, "ws_connect", "")
	logger.Info().Msg("websocket connected")
	span.End()

	go client.WritePump()
	err = client.ReadPump(func(cl *Client, data []byte) {
		h.handleFrame(ctx, cl, data)
	})

	h.registry.Unregister(username, client)
	client.Close()
	observability.SetRegisteredUsers(h.registry.Len())
	observability.DecWSActive()

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		publishWSEvent(ctx, info, "ws_error", reason)
	}
	publishWSEvent(ctx, info, "ws_disconnect", reason)
	logger.Info().Str("reason", reason).Msg("websocket disconnected")
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, data []byte) {
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(ctx, client, models.ChatEvent{Type: models.EventError, Error: "malformed frame"})
		return
	}

	msg := models.ChatMessage{
		Sender:    client.Info.Username,
		Recipient: frame.Recipient,
		Body:      frame.Body,
		Media:     frame.Media,
		MediaType: frame.MediaType,
		Status:    frame.Status,
	}

	var (
		d   router.Delivery
		err error
	)
	switch frame.Type {
	case models.FramePublic:
		d, err = h.router.RoutePublic(ctx, msg)
	case models.FramePrivate:
		d, err = h.router.RoutePrivate(ctx, msg)
	default:
		h.reply(ctx, client, models.ChatEvent{Type: models.EventError, Error: "unknown frame type"})
		return
	}

	if err != nil {
		h.reply(ctx, client, models.ChatEvent{Type: models.EventError, Error: frameError(err)})
		return
	}
	h.reply(ctx, client, models.ChatEvent{Type: models.EventAck, MessageID: d.Stored.ID, Delivered: d.Delivered})
}

func (h *Handler) reply(ctx context.Context, client *Client, event models.ChatEvent) {
	if err := client.SendEvent(event); err != nil {
		logger := logging.Ctx(ctx)
		logger.Debug().Err(err).Str("event", event.Type).Msg("reply dropped")
	}
}

func frameError(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidMessage):
		return err.Error()
	case errors.Is(err, router.ErrPersistenceFailed):
		return "message could not be stored"
	default:
		return "internal error"
	}
}
