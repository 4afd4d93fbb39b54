package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Routing keys on the domain exchange.
const (
	RoutingMessageCreated      = "message.created"
	RoutingMessagesSeen        = "message.seen"
	RoutingNotificationCreated = "notification.created"
	RoutingWSEvents            = "ws_events.users"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewEnvelope(eventType, eventName string, payload interface{}) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
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

// HeadersFromContext fills the trace header from the active span, if any.
func HeadersFromContext(ctx context.Context, requestID string) map[string]string {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return BuildHeaders(requestID, traceID)
}
