package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/fedarchive/genarc/internal/logger"
)

// MigrationDirection tells whether a migration ran forward or in reverse.
type MigrationDirection string

const (
	DirectionForward MigrationDirection = "forward"
	DirectionReverse MigrationDirection = "reverse"
)

// DbVersionRecord documents one completed migration step.
type DbVersionRecord struct {
	Version         int                `bson:"_id"`
	Completed       bool               `bson:"completed"`
	TotalDurationMS int64              `bson:"total_duration_ms"`
	Direction       MigrationDirection `bson:"direction"`
	FinishedAt      time.Time          `bson:"finished_at"`
}

// DocumentTransform rewrites one document during a migration step.
type DocumentTransform func(doc bson.M) (bson.M, error)

// Migration is one versioned schema change. Forward maps each affected
// collection to its transform. Reverse is nil for irreversible migrations.
type Migration struct {
	Version     int
	Description string
	Forward     map[string]DocumentTransform
	Reverse     map[string]DocumentTransform
}

// ErrIrreversibleMigration indicates a downgrade crossed a migration that
// declares no reverse transforms.
var ErrIrreversibleMigration = errors.New("migration is not reversible")

// Migrator drives a service database to a target schema version. Steps are
// staged: each transform writes into a tmp_v{n}_new_* collection which is
// swapped with the live collection only after the whole step succeeded, so a
// failed step never leaves a half-migrated collection behind.
//
// Concurrent instances coordinate through a lock document: whoever holds the
// lock migrates, everyone else polls the version collection until the target
// version is reached.
type Migrator struct {
	client       *Client
	lock         *Lock
	versions     *mongo.Collection
	migrations   []Migration
	pollInterval time.Duration
}

// NewMigrator creates a migration manager. migrations must be ordered by
// ascending version starting at 1.
func NewMigrator(client *Client, lockCollection, versionCollection, owner string, migrations []Migration) *Migrator {
	return &Migrator{
		client:       client,
		lock:         NewLock(client, lockCollection, owner),
		versions:     client.Collection(versionCollection),
		migrations:   migrations,
		pollInterval: time.Second,
	}
}

// CurrentVersion returns the schema version the database sits at, or 0 for
// a fresh database. Version records are replaced in place on re-runs, so the
// most recently finished record is authoritative: a forward record at v means
// the database is at v, a reverse record at v means v was just undone.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	cursor, err := m.versions.Find(ctx, bson.M{"completed": true})
	if err != nil {
		return 0, fmt.Errorf("failed to query version collection: %w", err)
	}

	var records []DbVersionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return 0, fmt.Errorf("failed to decode version records: %w", err)
	}

	var latest *DbVersionRecord
	for i := range records {
		if latest == nil || records[i].FinishedAt.After(latest.FinishedAt) {
			latest = &records[i]
		}
	}
	if latest == nil {
		return 0, nil
	}
	if latest.Direction == DirectionReverse {
		return latest.Version - 1, nil
	}
	return latest.Version, nil
}

// Run migrates the database to the target version, forward or in reverse.
// If another instance holds the lock, Run polls until the target version is
// reached or the context expires.
func (m *Migrator) Run(ctx context.Context, target int) error {
	if target < 0 || target > len(m.migrations) {
		return fmt.Errorf("invalid target version %d: have %d migrations", target, len(m.migrations))
	}

	for {
		current, err := m.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		if current == target {
			return nil
		}

		acquired, err := m.lock.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			break
		}

		logger.Info("waiting for migration lock",
			"current_version", current,
			"target_version", target)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
	defer func() {
		if err := m.lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release migration lock", logger.Err(err))
		}
	}()

	// Re-read under the lock: another instance may have finished first.
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for current != target {
		var step Migration
		var direction MigrationDirection

		if current < target {
			step = m.migrations[current]
			direction = DirectionForward
		} else {
			step = m.migrations[current-1]
			direction = DirectionReverse
			if step.Reverse == nil {
				return fmt.Errorf("%w: v%d (%s)", ErrIrreversibleMigration, step.Version, step.Description)
			}
		}

		if err := m.applyStep(ctx, step, direction); err != nil {
			return fmt.Errorf("migration v%d (%s) failed: %w", step.Version, step.Description, err)
		}

		if direction == DirectionForward {
			current++
		} else {
			current--
		}
	}

	return nil
}

// applyStep executes one migration in the given direction: stage every
// affected collection into tmp_v{n}_new_*, swap all of them, then record the
// version.
func (m *Migrator) applyStep(ctx context.Context, step Migration, direction MigrationDirection) error {
	transforms := step.Forward
	if direction == DirectionReverse {
		transforms = step.Reverse
	}

	logger.Info("applying migration",
		"version", step.Version,
		"direction", string(direction),
		"description", step.Description)
	start := time.Now()

	staged := make([]string, 0, len(transforms))
	for collection, transform := range transforms {
		if err := m.stageCollection(ctx, step.Version, collection, transform); err != nil {
			m.dropStaged(ctx, step.Version, staged)
			return err
		}
		staged = append(staged, collection)
	}

	for _, collection := range staged {
		if err := m.swapCollection(ctx, step.Version, collection); err != nil {
			return err
		}
	}

	record := DbVersionRecord{
		Version:         step.Version,
		Completed:       true,
		TotalDurationMS: time.Since(start).Milliseconds(),
		Direction:       direction,
		FinishedAt:      time.Now().UTC(),
	}
	if _, err := m.versions.ReplaceOne(ctx,
		bson.M{"_id": record.Version},
		record,
		options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to record version %d: %w", record.Version, err)
	}

	logger.Info("migration applied",
		"version", step.Version,
		"duration_ms", record.TotalDurationMS)
	return nil
}

func stagingName(version int, collection string) string {
	return fmt.Sprintf("tmp_v%d_new_%s", version, collection)
}

func retiredName(version int, collection string) string {
	return fmt.Sprintf("tmp_v%d_old_%s", version, collection)
}

// stageCollection copies every document of collection through the transform
// into the staging collection.
func (m *Migrator) stageCollection(ctx context.Context, version int, collection string, transform DocumentTransform) error {
	src := m.client.Collection(collection)
	dst := m.client.Collection(stagingName(version, collection))

	// Restarted steps reuse the staging name; clear leftovers first.
	if err := dst.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop stale staging collection %s: %w", dst.Name(), err)
	}

	cursor, err := src.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode document in %s: %w", collection, err)
		}

		migrated, err := transform(doc)
		if err != nil {
			return fmt.Errorf("failed to transform document %v in %s: %w", doc["_id"], collection, err)
		}

		if _, err := dst.InsertOne(ctx, migrated); err != nil {
			return fmt.Errorf("failed to write migrated document to %s: %w", dst.Name(), err)
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("failed to iterate %s: %w", collection, err)
	}

	return nil
}

// swapCollection atomically replaces the live collection with its staged
// successor, parking the old data under tmp_v{n}_old_* until the swap is done.
func (m *Migrator) swapCollection(ctx context.Context, version int, collection string) error {
	old := retiredName(version, collection)

	if err := m.client.renameCollection(ctx, collection, old); err != nil {
		return fmt.Errorf("failed to retire %s: %w", collection, err)
	}
	if err := m.client.renameCollection(ctx, stagingName(version, collection), collection); err != nil {
		return fmt.Errorf("failed to promote staged %s: %w", collection, err)
	}
	if err := m.client.Collection(old).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop retired collection %s: %w", old, err)
	}
	return nil
}

func (m *Migrator) dropStaged(ctx context.Context, version int, collections []string) {
	for _, collection := range collections {
		name := stagingName(version, collection)
		if err := m.client.Collection(name).Drop(ctx); err != nil {
			logger.Error("failed to drop staging collection",
				logger.Collection(name),
				logger.Err(err))
		}
	}
}

// renameCollection renames within the service database, replacing any
// existing target.
func (c *Client) renameCollection(ctx context.Context, from, to string) error {
	admin := c.client.Database("admin")
	cmd := bson.D{
		{Key: "renameCollection", Value: c.db.Name() + "." + from},
		{Key: "to", Value: c.db.Name() + "." + to},
		{Key: "dropTarget", Value: true},
	}
	if err := admin.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to rename collection %s to %s: %w", from, to, err)
	}
	return nil
}
