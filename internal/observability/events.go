package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	RequestID  string      `json:"request_id,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
	Payload    interface{} `json:"payload"`
}

// NewEventEnvelope stamps the envelope with the time and the active trace, if any.
func NewEventEnvelope(ctx context.Context, eventType, eventName string, payload any) EventEnvelope {
	env := EventEnvelope{
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:  RequestIDFromContext(ctx),
		Payload:    payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return env
}

// DomainEvents publishes chat domain events through the default publisher.
type DomainEvents struct{}

func (DomainEvents) Publish(ctx context.Context, routingKey string, event any) error {
	return PublishEvent(ctx, routingKey, NewEventEnvelope(ctx, "domain_event", routingKey, event))
}
