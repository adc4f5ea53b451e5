package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is implemented by every persisted aggregate.
type Document interface {
	// DocumentID returns the document's natural key, stored as _id.
	DocumentID() string
}

// ChangeKind classifies a DAO mutation for change hooks.
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeHook observes successful DAO mutations. Services use it to emit
// outbox events whenever an aggregate changes.
type ChangeHook func(ctx context.Context, kind ChangeKind, id string) error

// DAO is the persistence port for one aggregate type.
type DAO[T Document] interface {
	// Upsert inserts or fully replaces the document under its id.
	Upsert(ctx context.Context, doc T) error

	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (T, error)

	// All returns every document in the collection.
	All(ctx context.Context) ([]T, error)

	// FindBy returns all documents whose field equals value.
	FindBy(ctx context.Context, field string, value any) ([]T, error)

	// Delete removes the document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, id string) error

	// Exists reports whether a document with the given id exists.
	Exists(ctx context.Context, id string) (bool, error)
}

// MongoDAO implements DAO on one MongoDB collection.
type MongoDAO[T Document] struct {
	coll *mongo.Collection
	hook ChangeHook
}

// NewDAO creates a DAO over the named collection.
func NewDAO[T Document](client *Client, collection string) *MongoDAO[T] {
	return &MongoDAO[T]{coll: client.Collection(collection)}
}

// WithChangeHook registers a hook invoked after every successful mutation.
func (d *MongoDAO[T]) WithChangeHook(hook ChangeHook) *MongoDAO[T] {
	d.hook = hook
	return d
}

func (d *MongoDAO[T]) notify(ctx context.Context, kind ChangeKind, id string) error {
	if d.hook == nil {
		return nil
	}
	return d.hook(ctx, kind, id)
}

func (d *MongoDAO[T]) Upsert(ctx context.Context, doc T) error {
	id := doc.DocumentID()

	_, err := d.coll.ReplaceOne(ctx,
		bson.M{"_id": id},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s in %s: %w", id, d.coll.Name(), err)
	}

	return d.notify(ctx, ChangeUpserted, id)
}

func (d *MongoDAO[T]) Get(ctx context.Context, id string) (T, error) {
	var doc T

	err := d.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, fmt.Errorf("%w: %s in %s", ErrNotFound, id, d.coll.Name())
		}
		return doc, fmt.Errorf("failed to load document %s from %s: %w", id, d.coll.Name(), err)
	}

	return doc, nil
}

func (d *MongoDAO[T]) All(ctx context.Context) ([]T, error) {
	return d.find(ctx, bson.M{})
}

func (d *MongoDAO[T]) FindBy(ctx context.Context, field string, value any) ([]T, error) {
	return d.find(ctx, bson.M{field: value})
}

func (d *MongoDAO[T]) find(ctx context.Context, filter bson.M) ([]T, error) {
	cursor, err := d.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", d.coll.Name(), err)
	}

	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents from %s: %w", d.coll.Name(), err)
	}

	return docs, nil
}

func (d *MongoDAO[T]) Delete(ctx context.Context, id string) error {
	_, err := d.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document %s from %s: %w", id, d.coll.Name(), err)
	}

	return d.notify(ctx, ChangeDeleted, id)
}

func (d *MongoDAO[T]) Exists(ctx context.Context, id string) (bool, error) {
	count, err := d.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count documents in %s: %w", d.coll.Name(), err)
	}
	return count > 0, nil
}
