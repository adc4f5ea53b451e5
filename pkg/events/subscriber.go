package events

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/metrics"
	"github.com/fedarchive/genarc/pkg/store"
)

// Header carried on dead-lettered messages naming the topic they came from.
const HeaderOriginalTopic = "original_topic"

// Envelope is one consumed event as handed to a Handler.
type Envelope struct {
	Topic         string
	Key           string
	Type          string
	CorrelationID string
	Payload       []byte
}

// Handler processes one consumed event. A returned error dead-letters the
// message; handlers must keep their work idempotent because delivery is
// at-least-once.
type Handler func(ctx context.Context, env Envelope) error

// BrokerReader is the subset of kafka.Reader the subscriber needs.
type BrokerReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader creates a kafka.Reader consuming one topic in a group.
// minBytes and maxBytes bound the broker fetch requests.
func NewKafkaReader(brokers []string, groupID, topic string, minBytes, maxBytes int) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
	})
}

// Subscriber consumes one topic and dispatches events by type. Before a
// handler runs, the event is recorded in the idempotence store; redeliveries
// are skipped. Failing events go to the DLQ topic and the offset is
// committed, so one poison message cannot stall the partition.
type Subscriber struct {
	reader   BrokerReader
	dlq      BrokerWriter
	dlqTopic string
	idem     store.IdempotenceStore
	handlers map[string]Handler
}

// NewSubscriber creates a subscriber. dlq may be nil when no dead-letter
// queue is configured; failing events are then logged and dropped.
func NewSubscriber(reader BrokerReader, dlq BrokerWriter, dlqTopic string, idem store.IdempotenceStore) *Subscriber {
	return &Subscriber{
		reader:   reader,
		dlq:      dlq,
		dlqTopic: dlqTopic,
		idem:     idem,
		handlers: make(map[string]Handler),
	}
}

// On registers the handler for one event type. Must be called before Run.
func (s *Subscriber) On(eventType string, h Handler) {
	s.handlers[eventType] = h
}

// Run consumes until ctx is done or the reader is closed.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		s.process(ctx, msg)

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// Close closes the underlying reader, unblocking Run.
func (s *Subscriber) Close() error {
	return s.reader.Close()
}

func (s *Subscriber) process(ctx context.Context, msg kafka.Message) {
	env := envelopeFrom(msg)

	lc := logger.NewLogContext(env.CorrelationID).WithEventType(env.Type)
	ctx = logger.WithContext(ctx, lc)

	handler, ok := s.handlers[env.Type]
	if !ok {
		logger.DebugCtx(ctx, "no handler for event type, skipping",
			logger.Topic(env.Topic),
			logger.EventKey(env.Key))
		return
	}

	fresh, err := s.idem.MarkProcessed(ctx, env.CorrelationID, env.Key, env.Type)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to check idempotence record", logger.Err(err))
		s.deadLetter(ctx, msg, env, err)
		return
	}
	if !fresh {
		logger.DebugCtx(ctx, "event already processed, skipping",
			logger.Topic(env.Topic),
			logger.EventKey(env.Key))
		return
	}

	if err := handler(ctx, env); err != nil {
		logger.ErrorCtx(ctx, "event handler failed",
			logger.Topic(env.Topic),
			logger.EventKey(env.Key),
			logger.Err(err))
		s.deadLetter(ctx, msg, env, err)
		return
	}

	metrics.EventsConsumed.WithLabelValues(env.Topic, env.Type).Inc()
}

func (s *Subscriber) deadLetter(ctx context.Context, msg kafka.Message, env Envelope, cause error) {
	metrics.EventsDeadLettered.WithLabelValues(env.Topic, env.Type).Inc()

	if s.dlq == nil || s.dlqTopic == "" {
		logger.WarnCtx(ctx, "no DLQ configured, dropping failed event",
			logger.Topic(env.Topic),
			logger.EventKey(env.Key))
		return
	}

	headers := append(msg.Headers, kafka.Header{
		Key:   HeaderOriginalTopic,
		Value: []byte(env.Topic),
	})
	dead := kafka.Message{
		Topic:   s.dlqTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
	if err := s.dlq.WriteMessages(ctx, dead); err != nil {
		logger.CriticalCtx(ctx, "failed to dead-letter event",
			logger.Topic(env.Topic),
			logger.EventKey(env.Key),
			"cause", cause.Error(),
			logger.Err(err))
	}
}

func envelopeFrom(msg kafka.Message) Envelope {
	env := Envelope{
		Topic:   msg.Topic,
		Key:     string(msg.Key),
		Payload: msg.Value,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case HeaderType:
			env.Type = string(h.Value)
		case HeaderCorrelationID:
			env.CorrelationID = string(h.Value)
		}
	}
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}
	return env
}
