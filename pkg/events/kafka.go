package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/metrics"
	"github.com/fedarchive/genarc/pkg/store"
)

// BrokerWriter is the subset of kafka.Writer the flusher needs.
type BrokerWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter creates a kafka.Writer for the given brokers. Messages
// carry their topic explicitly, so the writer is not bound to one.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Flusher ships pending outbox rows to the broker. Rows are marked published
// only after the broker acknowledged the write, so a crash between the two
// steps causes a redelivery, never a loss.
type Flusher struct {
	outbox   store.Outbox
	writer   BrokerWriter
	interval time.Duration
}

// NewFlusher creates a flusher. interval is the poll period of Run;
// zero means one second.
func NewFlusher(outbox store.Outbox, writer BrokerWriter, interval time.Duration) *Flusher {
	if interval == 0 {
		interval = time.Second
	}
	return &Flusher{outbox: outbox, writer: writer, interval: interval}
}

// PublishPending ships all rows with published=false and flips their flag.
// The first broker failure stops the pass; remaining rows stay pending.
func (f *Flusher) PublishPending(ctx context.Context) error {
	pending, err := f.outbox.Pending(ctx)
	if err != nil {
		return err
	}

	for _, ev := range pending {
		if err := f.ship(ctx, ev); err != nil {
			return err
		}
		if err := f.outbox.MarkPublished(ctx, ev.ID); err != nil {
			return err
		}
	}
	return nil
}

// Republish re-emits every outbox row regardless of its published flag.
// Operational tool for rebuilding downstream state.
func (f *Flusher) Republish(ctx context.Context) error {
	all, err := f.outbox.All(ctx)
	if err != nil {
		return err
	}

	for _, ev := range all {
		if err := f.ship(ctx, ev); err != nil {
			return err
		}
		if err := f.outbox.MarkPublished(ctx, ev.ID); err != nil {
			return err
		}
	}

	logger.Info("republished outbox", "events", len(all))
	return nil
}

func (f *Flusher) ship(ctx context.Context, ev store.PersistentEvent) error {
	headers := make([]kafka.Header, 0, len(ev.Headers))
	for k, v := range ev.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   ev.Topic,
		Key:     []byte(ev.Key),
		Value:   ev.Payload,
		Headers: headers,
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.ID, err)
	}

	metrics.EventsPublished.WithLabelValues(ev.Topic, ev.Type).Inc()
	logger.Debug("event published",
		logger.Topic(ev.Topic),
		logger.EventKey(ev.Key),
		logger.EventType(ev.Type))
	return nil
}

// Run flushes pending events on the configured interval until ctx is done.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.PublishPending(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("failed to flush outbox", logger.Err(err))
			}
		}
	}
}
