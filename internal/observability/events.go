package observability

// Routing keys for events published on the events exchange.
const (
	RoutingKeyWSEvents       = "ws_events.chat"
	RoutingKeyMessagesPublic = "messages.public"
	RoutingKeyPrivate        = "messages.private"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
