package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/fedarchive/genarc/pkg/store"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	fail     bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

type fakeReader struct {
	msgs      []kafka.Message
	next      int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(_ context.Context) (kafka.Message, error) {
	if r.next >= len(r.msgs) {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[r.next]
	r.next++
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func message(topic, key, eventType, correlationID string, payload any) kafka.Message {
	body, _ := json.Marshal(payload)
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderType, Value: []byte(eventType)},
			{Key: HeaderCorrelationID, Value: []byte(correlationID)},
		},
	}
}

func TestOutboxPublisher(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryOutbox()
	pub := NewOutboxPublisher(outbox)

	payload := FileRegisteredForDownload{FileID: "examplefile001", DecryptedSHA256: "abc"}
	if err := pub.Publish(ctx, TopicFileDownloads, "examplefile001", TypeFileRegisteredForDownload, payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	// Same key again: compacted, still one row.
	if err := pub.Publish(ctx, TopicFileDownloads, "examplefile001", TypeFileRegisteredForDownload, payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	pending, err := outbox.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending() len = %d, want 1", len(pending))
	}

	ev := pending[0]
	if ev.Headers[HeaderType] != TypeFileRegisteredForDownload {
		t.Errorf("type header = %q", ev.Headers[HeaderType])
	}
	if ev.Headers[HeaderCorrelationID] == "" {
		t.Error("correlation id header is empty")
	}

	var decoded FileRegisteredForDownload
	if err := json.Unmarshal(ev.Payload, &decoded); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if decoded.FileID != "examplefile001" {
		t.Errorf("FileID = %q", decoded.FileID)
	}
}

func TestFlusherPublishPending(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryOutbox()
	pub := NewOutboxPublisher(outbox)
	writer := &fakeWriter{}
	flusher := NewFlusher(outbox, writer, 0)

	for _, key := range []string{"f1", "f2"} {
		if err := pub.Publish(ctx, TopicFileDownloads, key, TypeFileDownloadServed, FileDownloadServed{FileID: key}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	if err := flusher.PublishPending(ctx); err != nil {
		t.Fatalf("PublishPending() error = %v", err)
	}
	if writer.count() != 2 {
		t.Errorf("broker received %d messages, want 2", writer.count())
	}

	// Second pass finds nothing pending.
	if err := flusher.PublishPending(ctx); err != nil {
		t.Fatalf("PublishPending() error = %v", err)
	}
	if writer.count() != 2 {
		t.Errorf("broker received %d messages after second pass, want 2", writer.count())
	}

	t.Run("broker failure keeps rows pending", func(t *testing.T) {
		if err := pub.Publish(ctx, TopicFileDownloads, "f3", TypeFileDownloadServed, FileDownloadServed{FileID: "f3"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		writer.fail = true
		if err := flusher.PublishPending(ctx); err == nil {
			t.Fatal("PublishPending() error = nil, want broker error")
		}
		writer.fail = false

		pending, _ := outbox.Pending(ctx)
		if len(pending) != 1 {
			t.Fatalf("Pending() len = %d, want 1", len(pending))
		}
		if err := flusher.PublishPending(ctx); err != nil {
			t.Fatalf("retried PublishPending() error = %v", err)
		}
	})
}

func TestFlusherRepublish(t *testing.T) {
	ctx := context.Background()
	outbox := store.NewMemoryOutbox()
	pub := NewOutboxPublisher(outbox)
	writer := &fakeWriter{}
	flusher := NewFlusher(outbox, writer, 0)

	if err := pub.Publish(ctx, TopicFileDownloads, "f1", TypeFileDownloadServed, FileDownloadServed{FileID: "f1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := flusher.PublishPending(ctx); err != nil {
		t.Fatalf("PublishPending() error = %v", err)
	}

	if err := flusher.Republish(ctx); err != nil {
		t.Fatalf("Republish() error = %v", err)
	}
	if writer.count() != 2 {
		t.Errorf("broker received %d messages, want 2 (initial + republish)", writer.count())
	}
}

func TestSubscriberDispatch(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(TopicFileRegistrations, "GHGA001", TypeFileInternallyRegistered, "corr-1",
			FileInternallyRegistered{Accession: "GHGA001", FileID: "f1"}),
		// Redelivery under the same correlation id.
		message(TopicFileRegistrations, "GHGA001", TypeFileInternallyRegistered, "corr-1",
			FileInternallyRegistered{Accession: "GHGA001", FileID: "f1"}),
		// Unknown type is skipped.
		message(TopicFileRegistrations, "GHGA001", "SomethingElse", "corr-2", map[string]string{}),
	}}

	var handled []string
	sub := NewSubscriber(reader, nil, "", store.NewMemoryIdempotenceStore())
	sub.On(TypeFileInternallyRegistered, func(_ context.Context, env Envelope) error {
		var payload FileInternallyRegistered
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		handled = append(handled, payload.Accession)
		return nil
	})

	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(handled) != 1 {
		t.Errorf("handler ran %d times, want 1 (redelivery deduplicated)", len(handled))
	}
	if len(reader.committed) != 3 {
		t.Errorf("committed %d offsets, want 3", len(reader.committed))
	}
}

func TestSubscriberDeadLetters(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(TopicFileRegistrations, "GHGA001", TypeFileInternallyRegistered, "corr-1",
			FileInternallyRegistered{Accession: "GHGA001"}),
	}}
	dlq := &fakeWriter{}

	sub := NewSubscriber(reader, dlq, "dlq", store.NewMemoryIdempotenceStore())
	sub.On(TypeFileInternallyRegistered, func(context.Context, Envelope) error {
		return errors.New("poison")
	})

	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if dlq.count() != 1 {
		t.Fatalf("DLQ received %d messages, want 1", dlq.count())
	}
	dead := dlq.messages[0]
	if dead.Topic != "dlq" {
		t.Errorf("dead letter topic = %q, want dlq", dead.Topic)
	}
	var original string
	for _, h := range dead.Headers {
		if h.Key == HeaderOriginalTopic {
			original = string(h.Value)
		}
	}
	if original != TopicFileRegistrations {
		t.Errorf("original topic header = %q, want %q", original, TopicFileRegistrations)
	}
	// Offset committed despite the failure.
	if len(reader.committed) != 1 {
		t.Errorf("committed %d offsets, want 1", len(reader.committed))
	}
}
