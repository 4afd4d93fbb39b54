package telemetry

import (
	"context"
	"time"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter sends audit_log envelopes to the audit exchange. A nil
// emitter, or one without a publisher, drops everything.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string            `json:"level"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.EmitWithFields(ctx, level, text, requestID, userID, nil)
}

// EmitWithFields attaches string fields to the audit payload, e.g. the
// notification id a user deleted.
func (e *AuditEmitter) EmitWithFields(ctx context.Context, level, text, requestID string, userID *string, fields map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}

	event := logger.Debug().Str("level", level).Str("request_id", requestID).Str("text", text)
	if userID != nil {
		event = event.Str("user_id", *userID)
	}
	event.Msg("audit emit")

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Text:   text,
			Fields: fields,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		logger.Warn().Err(err).Str("request_id", requestID).Msg("audit publish failed")
	}
}
