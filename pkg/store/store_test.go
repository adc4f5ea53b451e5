package store

import (
	"context"
	"errors"
	"testing"
)

type testBox struct {
	ID     string `bson:"_id"`
	Alias  string `bson:"storage_alias"`
	Locked bool   `bson:"locked"`
}

func (b testBox) DocumentID() string { return b.ID }

func TestMemoryDAO(t *testing.T) {
	ctx := context.Background()
	dao := NewMemoryDAO[testBox]()

	t.Run("get missing", func(t *testing.T) {
		_, err := dao.Get(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	if err := dao.Upsert(ctx, testBox{ID: "b1", Alias: "test"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := dao.Upsert(ctx, testBox{ID: "b2", Alias: "other"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	t.Run("upsert replaces", func(t *testing.T) {
		if err := dao.Upsert(ctx, testBox{ID: "b1", Alias: "test", Locked: true}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		got, err := dao.Get(ctx, "b1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !got.Locked {
			t.Error("Get() returned stale document after upsert")
		}
		if dao.Len() != 2 {
			t.Errorf("Len() = %d, want 2", dao.Len())
		}
	})

	t.Run("find by bson field", func(t *testing.T) {
		matched, err := dao.FindBy(ctx, "storage_alias", "test")
		if err != nil {
			t.Fatalf("FindBy() error = %v", err)
		}
		if len(matched) != 1 || matched[0].ID != "b1" {
			t.Errorf("FindBy() = %v, want [b1]", matched)
		}
	})

	t.Run("exists and delete", func(t *testing.T) {
		exists, err := dao.Exists(ctx, "b2")
		if err != nil || !exists {
			t.Errorf("Exists() = %v, %v, want true, nil", exists, err)
		}
		if err := dao.Delete(ctx, "b2"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		// Deleting again is a no-op.
		if err := dao.Delete(ctx, "b2"); err != nil {
			t.Errorf("repeated Delete() error = %v, want nil", err)
		}
		exists, _ = dao.Exists(ctx, "b2")
		if exists {
			t.Error("Exists() = true after delete")
		}
	})
}

func TestDAOChangeHook(t *testing.T) {
	ctx := context.Background()

	var changes []string
	dao := NewMemoryDAO[testBox]().WithChangeHook(func(_ context.Context, kind ChangeKind, id string) error {
		changes = append(changes, string(kind)+":"+id)
		return nil
	})

	if err := dao.Upsert(ctx, testBox{ID: "b1"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := dao.Delete(ctx, "b1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	want := []string{"upserted:b1", "deleted:b1"}
	if len(changes) != len(want) {
		t.Fatalf("hook calls = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("hook call %d = %q, want %q", i, changes[i], want[i])
		}
	}
}

func TestOutboxCompaction(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()

	ev := PersistentEvent{
		Topic:   "file-registrations",
		Key:     "examplefile001",
		Type:    "FileInternallyRegistered",
		Payload: []byte(`{"v":1}`),
	}
	if err := outbox.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	t.Run("same key compacts to one row", func(t *testing.T) {
		ev.Payload = []byte(`{"v":2}`)
		if err := outbox.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}

		all, err := outbox.All(ctx)
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("All() len = %d, want 1", len(all))
		}
		if all[0].ID != CompactionKey("file-registrations", "examplefile001") {
			t.Errorf("ID = %q, want compaction key", all[0].ID)
		}
		if string(all[0].Payload) != `{"v":2}` {
			t.Errorf("Payload = %s, want latest", all[0].Payload)
		}
	})

	t.Run("publish flips pending", func(t *testing.T) {
		pending, err := outbox.Pending(ctx)
		if err != nil {
			t.Fatalf("Pending() error = %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("Pending() len = %d, want 1", len(pending))
		}

		if err := outbox.MarkPublished(ctx, pending[0].ID); err != nil {
			t.Fatalf("MarkPublished() error = %v", err)
		}

		pending, _ = outbox.Pending(ctx)
		if len(pending) != 0 {
			t.Errorf("Pending() len = %d after publish, want 0", len(pending))
		}
	})

	t.Run("re-record resets published", func(t *testing.T) {
		if err := outbox.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		pending, _ := outbox.Pending(ctx)
		if len(pending) != 1 {
			t.Errorf("Pending() len = %d, want 1", len(pending))
		}
	})

	t.Run("mark unknown event", func(t *testing.T) {
		err := outbox.MarkPublished(ctx, "nope:nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("MarkPublished() error = %v, want ErrNotFound", err)
		}
	})
}

func TestIdempotenceStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotenceStore()

	fresh, err := store.MarkProcessed(ctx, "corr-1", "examplefile001", "FileInternallyRegistered")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !fresh {
		t.Error("MarkProcessed() = false on first delivery, want true")
	}

	fresh, err = store.MarkProcessed(ctx, "corr-1", "examplefile001", "FileInternallyRegistered")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if fresh {
		t.Error("MarkProcessed() = true on redelivery, want false")
	}

	// A different correlation id is a fresh delivery.
	fresh, _ = store.MarkProcessed(ctx, "corr-2", "examplefile001", "FileInternallyRegistered")
	if !fresh {
		t.Error("MarkProcessed() = false for new correlation id, want true")
	}
}
