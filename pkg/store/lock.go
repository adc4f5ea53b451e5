package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// lockDocumentID is the id of the single migration lock document.
const lockDocumentID = "migration-lock"

// lockDocument is held by at most one service instance at a time. Acquisition
// relies on the uniqueness of _id: the first insert wins, everyone else polls.
type lockDocument struct {
	ID         string    `bson:"_id"`
	Owner      string    `bson:"owner"`
	AcquiredAt time.Time `bson:"acquired_at"`
}

// Lock is a database-backed mutual exclusion for the migration manager.
type Lock struct {
	coll  *mongo.Collection
	owner string
}

// NewLock creates a lock over the named collection. owner identifies the
// instance in the lock document for operator inspection.
func NewLock(client *Client, collection, owner string) *Lock {
	return &Lock{coll: client.Collection(collection), owner: owner}
}

// TryAcquire attempts to take the lock without blocking.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	_, err := l.coll.InsertOne(ctx, lockDocument{
		ID:         lockDocumentID,
		Owner:      l.owner,
		AcquiredAt: time.Now().UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return true, nil
}

// Release removes the lock document. Releasing an unheld lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.coll.DeleteOne(ctx, bson.M{"_id": lockDocumentID})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
