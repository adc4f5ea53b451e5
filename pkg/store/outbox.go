package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// PersistentEvent is one row of a service's event outbox. The document id is
// the compaction key "topic:key": re-recording an event for the same key
// replaces the previous row, so consumers only ever see the latest state per
// key once the pending rows are flushed.
type PersistentEvent struct {
	ID        string            `bson:"_id"`
	Topic     string            `bson:"topic"`
	Key       string            `bson:"key"`
	Type      string            `bson:"type"`
	Payload   []byte            `bson:"payload"`
	Headers   map[string]string `bson:"headers,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
	Published bool              `bson:"published"`
}

// CompactionKey builds the outbox document id for a topic and message key.
func CompactionKey(topic, key string) string {
	return topic + ":" + key
}

// Outbox is the persistent event outbox of one service.
type Outbox interface {
	// Record upserts the event under its compaction key with published=false.
	Record(ctx context.Context, ev PersistentEvent) error

	// Pending returns all events with published=false, oldest first.
	Pending(ctx context.Context) ([]PersistentEvent, error)

	// All returns every recorded event, oldest first, for republishing.
	All(ctx context.Context) ([]PersistentEvent, error)

	// MarkPublished flips the published flag of the event with the given id.
	MarkPublished(ctx context.Context, id string) error
}

// MongoOutbox implements Outbox on one MongoDB collection.
type MongoOutbox struct {
	coll *mongo.Collection
}

// NewOutbox creates an outbox over the named collection.
func NewOutbox(client *Client, collection string) *MongoOutbox {
	return &MongoOutbox{coll: client.Collection(collection)}
}

func (o *MongoOutbox) Record(ctx context.Context, ev PersistentEvent) error {
	ev.ID = CompactionKey(ev.Topic, ev.Key)
	ev.Published = false
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := o.coll.ReplaceOne(ctx,
		bson.M{"_id": ev.ID},
		ev,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to record outbox event %s: %w", ev.ID, err)
	}
	return nil
}

func (o *MongoOutbox) Pending(ctx context.Context) ([]PersistentEvent, error) {
	return o.find(ctx, bson.M{"published": false})
}

func (o *MongoOutbox) All(ctx context.Context) ([]PersistentEvent, error) {
	return o.find(ctx, bson.M{})
}

func (o *MongoOutbox) find(ctx context.Context, filter bson.M) ([]PersistentEvent, error) {
	cursor, err := o.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox %s: %w", o.coll.Name(), err)
	}

	var events []PersistentEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events from %s: %w", o.coll.Name(), err)
	}
	return events, nil
}

func (o *MongoOutbox) MarkPublished(ctx context.Context, id string) error {
	res, err := o.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"published": true}})
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s published: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: outbox event %s", ErrNotFound, id)
	}
	return nil
}

// MemoryOutbox is an in-memory Outbox used by tests.
type MemoryOutbox struct {
	mu     sync.Mutex
	events map[string]PersistentEvent
	order  []string
}

// NewMemoryOutbox creates an empty in-memory outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{events: make(map[string]PersistentEvent)}
}

func (o *MemoryOutbox) Record(_ context.Context, ev PersistentEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ev.ID = CompactionKey(ev.Topic, ev.Key)
	ev.Published = false
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if _, seen := o.events[ev.ID]; !seen {
		o.order = append(o.order, ev.ID)
	}
	o.events[ev.ID] = ev
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context) ([]PersistentEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var pending []PersistentEvent
	for _, id := range o.order {
		if ev := o.events[id]; !ev.Published {
			pending = append(pending, ev)
		}
	}
	return pending, nil
}

func (o *MemoryOutbox) All(_ context.Context) ([]PersistentEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	all := make([]PersistentEvent, 0, len(o.order))
	for _, id := range o.order {
		all = append(all, o.events[id])
	}
	return all, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ev, ok := o.events[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %s", ErrNotFound, id)
	}
	ev.Published = true
	o.events[id] = ev
	return nil
}

var _ Outbox = (*MongoOutbox)(nil)
var _ Outbox = (*MemoryOutbox)(nil)
