// Package router decides where a chat message goes and makes sure it is recorded.
//
// Public messages are persisted first and then fanned out to every registered
// handle, the sender's own included. Private messages are delivered to the
// recipient's handle when one is registered and are always persisted.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-router/internal/logging"
	"chat-router/internal/models"
	"chat-router/internal/observability"
	"chat-router/internal/registry"
)

var (
	// ErrPersistenceFailed wraps any storage error surfaced by a route.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrDeliveryFailed marks a handle that could not accept a message. It never fails a route.
	ErrDeliveryFailed = errors.New("delivery failed")
)

const (
	routePublic  = "public"
	routePrivate = "private"
)

// Writer is the persistence side of a route.
type Writer interface {
	Append(ctx context.Context, msg models.ChatMessage) (models.StoredMessage, error)
}

// Registry resolves delivery handles.
type Registry interface {
	Resolve(userID string) (registry.Handle, bool)
	Snapshot() []registry.Entry
}

type Config struct {
	// PublicLatency delays every public route before persistence. Zero disables it.
	PublicLatency time.Duration
}

// Delivery reports the outcome of one route call.
type Delivery struct {
	Message   models.ChatMessage
	Stored    models.StoredMessage
	Delivered int
	Failed    int
	// Offline is set when a private recipient had no registered handle.
	Offline bool
	// Errors holds one ErrDeliveryFailed per failed handle.
	Errors []error
}

type Router struct {
	writer   Writer
	registry Registry
	cfg      Config
	tracer   trace.Tracer
}

func New(writer Writer, reg Registry, cfg Config) *Router {
	return &Router{
		writer:   writer,
		registry: reg,
		cfg:      cfg,
		tracer:   otel.Tracer("chat-router/router"),
	}
}

// RoutePublic persists msg and then delivers it to every registered handle.
// If persistence fails nothing is delivered and the error wraps ErrPersistenceFailed.
func (r *Router) RoutePublic(ctx context.Context, msg models.ChatMessage) (Delivery, error) {
	msg = msg.Normalize()
	msg.Recipient = ""
	ctx, span := r.tracer.Start(ctx, "router.RoutePublic", trace.WithAttributes(
		attribute.String("chat.sender", msg.Sender),
	))
	defer span.End()

	result := Delivery{Message: msg}
	if err := msg.Validate(); err != nil {
		observability.IncRouted(routePublic, "invalid")
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if err := r.injectLatency(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	stored, err := r.writer.Append(ctx, msg)
	if err != nil {
		observability.IncRouted(routePublic, "persist_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return result, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	result.Stored = stored

	seen := make(map[registry.Handle]struct{})
	for _, entry := range r.registry.Snapshot() {
		if _, dup := seen[entry.Handle]; dup {
			continue
		}
		seen[entry.Handle] = struct{}{}
		r.deliver(ctx, entry.UserID, entry.Handle, msg, &result)
	}

	observability.IncRouted(routePublic, "delivered")
	observability.AddDeliveries(routePublic, result.Delivered, result.Failed)
	span.SetAttributes(
		attribute.Int64("chat.message_id", stored.ID),
		attribute.Int("chat.delivered", result.Delivered),
		attribute.Int("chat.failed", result.Failed),
	)
	r.publishRouted(ctx, observability.RoutingKeyMessagesPublic, result)
	return result, nil
}

// RoutePrivate delivers msg to its recipient when registered and always persists it.
// An offline recipient is not an error. Persistence errors wrap ErrPersistenceFailed;
// the delivery outcome is still reported in that case.
func (r *Router) RoutePrivate(ctx context.Context, msg models.ChatMessage) (Delivery, error) {
	msg = msg.Normalize()
	ctx, span := r.tracer.Start(ctx, "router.RoutePrivate", trace.WithAttributes(
		attribute.String("chat.sender", msg.Sender),
		attribute.String("chat.recipient", msg.Recipient),
	))
	defer span.End()

	result := Delivery{Message: msg}
	if err := msg.Validate(); err != nil {
		observability.IncRouted(routePrivate, "invalid")
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	if msg.IsPublic() {
		err := fmt.Errorf("%w: recipient is required", models.ErrInvalidMessage)
		observability.IncRouted(routePrivate, "invalid")
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if handle, ok := r.registry.Resolve(msg.Recipient); ok {
		r.deliver(ctx, msg.Recipient, handle, msg, &result)
	} else {
		result.Offline = true
	}
	observability.AddDeliveries(routePrivate, result.Delivered, result.Failed)

	stored, err := r.writer.Append(ctx, msg)
	if err != nil {
		observability.IncRouted(routePrivate, "persist_failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return result, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	result.Stored = stored

	outcome := "delivered"
	if result.Offline {
		outcome = "offline"
	}
	observability.IncRouted(routePrivate, outcome)
	span.SetAttributes(
		attribute.Int64("chat.message_id", stored.ID),
		attribute.Bool("chat.offline", result.Offline),
	)
	r.publishRouted(ctx, observability.RoutingKeyPrivate, result)
	return result, nil
}

func (r *Router) deliver(ctx context.Context, userID string, handle registry.Handle, msg models.ChatMessage, result *Delivery) {
	if err := handle.Deliver(msg); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, userID, err))
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Str(logging.FieldUsername, userID).Msg("delivery failed")
		return
	}
	result.Delivered++
}

func (r *Router) injectLatency(ctx context.Context) error {
	if r.cfg.PublicLatency <= 0 {
		return nil
	}
	timer := time.NewTimer(r.cfg.PublicLatency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) publishRouted(ctx context.Context, routingKey string, result Delivery) {
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	envelope := observability.EventEnvelope{
		EventType: "chat",
		EventName: "message_routed",
		Payload: map[string]interface{}{
			"message_id": result.Stored.ID,
			"sender":     result.Message.Sender,
			"recipient":  result.Message.Recipient,
			"delivered":  result.Delivered,
			"failed":     result.Failed,
			"offline":    result.Offline,
		},
	}
	if err := observability.PublishEvent(ctx, routingKey, envelope, observability.BuildHeaders(logging.RequestID(ctx), traceID)); err != nil {
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Str(logging.FieldRoute, routingKey).Msg("routed event publish failed")
	}
}
