// Package telemetry ships audit records for user-visible chat actions.
package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dm-service/internal/observability"
)

const auditSchemaVersion = 1

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit envelopes on a fixed routing key. A nil
// emitter drops everything.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level      string            `json:"level"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.EmitWith(ctx, level, text, requestID, userID, nil)
}

// EmitWith publishes an audit record carrying extra attributes such as the
// chat or message it concerns. Publish failures are logged, never returned.
func (e *AuditEmitter) EmitWith(ctx context.Context, level, text, requestID string, userID *string, attrs map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := e.envelope(ctx, level, text, requestID, userID, attrs)
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		zap.L().Warn("audit publish failed",
			zap.String("routing_key", e.routingKey),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("audit emitted", zap.String("text", text), zap.Stringp("user_id", userID))
}

func (e *AuditEmitter) envelope(ctx context.Context, level, text, requestID string, userID *string, attrs map[string]string) AuditEnvelope {
	return AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		TraceID:       observability.TraceIDFromContext(ctx),
		UserID:        userID,
		Payload: AuditPayload{
			Level:      level,
			Text:       text,
			Attributes: attrs,
		},
	}
}
