package download

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/store"
)

type scriptedReader struct {
	msgs []kafka.Message
	next int
}

func (r *scriptedReader) FetchMessage(_ context.Context) (kafka.Message, error) {
	if r.next >= len(r.msgs) {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[r.next]
	r.next++
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, _ ...kafka.Message) error { return nil }
func (r *scriptedReader) Close() error                                               { return nil }

func consume(t *testing.T, f *downloadFixture, msgs ...kafka.Message) {
	t.Helper()
	sub := events.NewSubscriber(&scriptedReader{msgs: msgs}, nil, "", store.NewMemoryIdempotenceStore())
	f.svc.RegisterHandlers(sub)
	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func eventMessage(t *testing.T, topic, key, eventType, correlationID string, payload any) kafka.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: events.HeaderType, Value: []byte(eventType)},
			{Key: events.HeaderCorrelationID, Value: []byte(correlationID)},
		},
	}
}

func TestConsumeFileInternallyRegistered(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)

	ev := events.FileInternallyRegistered{
		Accession:       "EGAF001",
		FileID:          "examplefile001",
		ObjectID:        "object-001",
		SecretID:        "secret-1",
		StorageAlias:    "test",
		BucketID:        "permanent",
		DecryptedSHA256: "0677de3c3f7e6b1a9b9e38a0f6a5c4a3d096",
		DecryptedSize:   12345,
		EncryptedSize:   12357,
	}
	consume(t, f, eventMessage(t, events.TopicFileRegistrations, ev.Accession,
		events.TypeFileInternallyRegistered, "corr-1", ev))

	obj, err := f.objects.Get(ctx, "examplefile001")
	if err != nil {
		t.Fatalf("no DRS object was registered: %v", err)
	}
	if obj.Accession != "EGAF001" || obj.SecretID != "secret-1" || obj.EncryptedSize != 12357 {
		t.Errorf("registered object = %+v", obj)
	}

	queued, err := f.queue.All(ctx)
	if err != nil {
		t.Fatalf("queue.All() error = %v", err)
	}
	if len(queued) != 1 || queued[0].Type != events.TypeFileRegisteredForDownload {
		t.Fatalf("outbox = %+v, want one FileRegisteredForDownload", queued)
	}
	var out events.FileRegisteredForDownload
	if err := json.Unmarshal(queued[0].Payload, &out); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if out.FileID != ev.FileID || out.DecryptedSHA256 != ev.DecryptedSHA256 {
		t.Errorf("emitted event = %+v", out)
	}
}

func TestConsumeFileDeletionRequested(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)
	if err := f.svc.RegisterNewFile(ctx, sampleObject()); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}
	f.outbox.PutObject("test-outbox", "object-001", []byte("payload"))

	consume(t, f, eventMessage(t, events.TopicFileDeletions, "examplefile001",
		events.TypeFileDeletionRequested, "corr-2", events.FileDeletionRequested{FileID: "examplefile001"}))

	if f.objects.Len() != 0 {
		t.Error("DRS object record survived the deletion event")
	}
	if len(f.keys.deleted) != 1 || f.keys.deleted[0] != "secret-1" {
		t.Errorf("deleted secrets = %v, want [secret-1]", f.keys.deleted)
	}
	if got := f.countEvents(t, events.TypeFileDeleted); got != 1 {
		t.Errorf("FileDeleted events = %d, want 1", got)
	}
}

func TestConsumeIgnoresForeignEvents(t *testing.T) {
	f := newDownloadFixture(t)

	// Download-served events circulate on the same broker but have no
	// handler here; the subscriber must skip them without side effects.
	consume(t, f, eventMessage(t, events.TopicFileDownloads, "examplefile001",
		events.TypeFileDownloadServed, "corr-3", events.FileDownloadServed{FileID: "examplefile001"}))

	if f.objects.Len() != 0 {
		t.Errorf("objects.Len() = %d, want 0", f.objects.Len())
	}
}
