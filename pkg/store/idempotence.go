package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// IdempotenceRecord marks one consumed event as processed. The document id
// combines correlation id, resource id, and event schema so a redelivery of
// the same event is detected regardless of which field varies.
type IdempotenceRecord struct {
	ID            string    `bson:"_id"`
	CorrelationID string    `bson:"correlation_id"`
	ResourceID    string    `bson:"resource_id"`
	EventSchema   string    `bson:"event_schema"`
	ProcessedAt   time.Time `bson:"processed_at"`
}

func idempotenceID(correlationID, resourceID, eventSchema string) string {
	return correlationID + ":" + resourceID + ":" + eventSchema
}

// IdempotenceStore records consumed events. MarkProcessed is check-then-insert:
// the first call for a given triple returns fresh=true, every later call
// returns fresh=false.
type IdempotenceStore interface {
	MarkProcessed(ctx context.Context, correlationID, resourceID, eventSchema string) (fresh bool, err error)
}

// MongoIdempotenceStore implements IdempotenceStore on one collection.
type MongoIdempotenceStore struct {
	coll *mongo.Collection
}

// NewIdempotenceStore creates an idempotence store over the named collection.
func NewIdempotenceStore(client *Client, collection string) *MongoIdempotenceStore {
	return &MongoIdempotenceStore{coll: client.Collection(collection)}
}

func (s *MongoIdempotenceStore) MarkProcessed(ctx context.Context, correlationID, resourceID, eventSchema string) (bool, error) {
	rec := IdempotenceRecord{
		ID:            idempotenceID(correlationID, resourceID, eventSchema),
		CorrelationID: correlationID,
		ResourceID:    resourceID,
		EventSchema:   eventSchema,
		ProcessedAt:   time.Now().UTC(),
	}

	_, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert idempotence record %s: %w", rec.ID, err)
	}
	return true, nil
}

// MemoryIdempotenceStore is an in-memory IdempotenceStore used by tests.
type MemoryIdempotenceStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryIdempotenceStore creates an empty in-memory idempotence store.
func NewMemoryIdempotenceStore() *MemoryIdempotenceStore {
	return &MemoryIdempotenceStore{seen: make(map[string]struct{})}
}

func (s *MemoryIdempotenceStore) MarkProcessed(_ context.Context, correlationID, resourceID, eventSchema string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := idempotenceID(correlationID, resourceID, eventSchema)
	if _, dup := s.seen[id]; dup {
		return false, nil
	}
	s.seen[id] = struct{}{}
	return true, nil
}

var _ IdempotenceStore = (*MongoIdempotenceStore)(nil)
var _ IdempotenceStore = (*MemoryIdempotenceStore)(nil)
