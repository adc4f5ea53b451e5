package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/store"
)

// Message header names.
const (
	HeaderType          = "type"
	HeaderCorrelationID = "correlation_id"
)

// Publisher is the outbound event port used by all service cores.
type Publisher interface {
	// Publish serializes payload and records it for delivery under
	// (topic, key). Delivery is asynchronous; Publish returning nil means
	// the event is durably queued, not that the broker has seen it.
	Publish(ctx context.Context, topic, key, eventType string, payload any) error
}

// OutboxPublisher implements Publisher on a persistent outbox. Events become
// visible on the broker when a Flusher ships the pending rows.
type OutboxPublisher struct {
	outbox store.Outbox
}

// NewOutboxPublisher creates a publisher writing into the given outbox.
func NewOutboxPublisher(outbox store.Outbox) *OutboxPublisher {
	return &OutboxPublisher{outbox: outbox}
}

func (p *OutboxPublisher) Publish(ctx context.Context, topic, key, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s event: %w", eventType, err)
	}

	correlationID := logger.CorrelationIDFrom(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	ev := store.PersistentEvent{
		Topic:   topic,
		Key:     key,
		Type:    eventType,
		Payload: body,
		Headers: map[string]string{
			HeaderType:          eventType,
			HeaderCorrelationID: correlationID,
		},
	}
	if err := p.outbox.Record(ctx, ev); err != nil {
		return err
	}

	logger.DebugCtx(ctx, "event queued",
		logger.Topic(topic),
		logger.EventKey(key),
		logger.EventType(eventType))
	return nil
}

var _ Publisher = (*OutboxPublisher)(nil)
