package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryDAO is an in-memory DAO used by tests. FindBy matches against the
// document's bson field names, mirroring the MongoDB implementation.
type MemoryDAO[T Document] struct {
	mu   sync.Mutex
	docs map[string]T
	hook ChangeHook
}

// NewMemoryDAO creates an empty in-memory DAO.
func NewMemoryDAO[T Document]() *MemoryDAO[T] {
	return &MemoryDAO[T]{docs: make(map[string]T)}
}

// WithChangeHook registers a hook invoked after every successful mutation.
func (d *MemoryDAO[T]) WithChangeHook(hook ChangeHook) *MemoryDAO[T] {
	d.hook = hook
	return d
}

func (d *MemoryDAO[T]) notify(ctx context.Context, kind ChangeKind, id string) error {
	if d.hook == nil {
		return nil
	}
	return d.hook(ctx, kind, id)
}

func (d *MemoryDAO[T]) Upsert(ctx context.Context, doc T) error {
	d.mu.Lock()
	d.docs[doc.DocumentID()] = doc
	d.mu.Unlock()
	return d.notify(ctx, ChangeUpserted, doc.DocumentID())
}

func (d *MemoryDAO[T]) Get(_ context.Context, id string) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

func (d *MemoryDAO[T]) All(_ context.Context) ([]T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.docs))
	for id := range d.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]T, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, d.docs[id])
	}
	return docs, nil
}

func (d *MemoryDAO[T]) FindBy(ctx context.Context, field string, value any) ([]T, error) {
	all, err := d.All(ctx)
	if err != nil {
		return nil, err
	}

	want := fmt.Sprintf("%v", value)

	var matched []T
	for _, doc := range all {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document: %w", err)
		}
		var m bson.M
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
		if got, ok := m[field]; ok && fmt.Sprintf("%v", got) == want {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

func (d *MemoryDAO[T]) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	delete(d.docs, id)
	d.mu.Unlock()
	return d.notify(ctx, ChangeDeleted, id)
}

func (d *MemoryDAO[T]) Exists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.docs[id]
	return ok, nil
}

// Len returns the number of stored documents.
func (d *MemoryDAO[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.docs)
}
