// Package migrations holds the versioned schema migrations of the pipeline
// services. All services share one migration history; transforms only touch
// the collections that exist in the service's own database.
package migrations

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/fedarchive/genarc/pkg/store"
)

// All returns the migrations in ascending version order.
func All() []store.Migration {
	return []store.Migration{
		timestampsToDates(),
	}
}

// timestampsToDates is v1: early deployments persisted timestamps as
// RFC3339 strings. Native BSON dates make range queries on access and
// interrogation times work without client-side parsing.
func timestampsToDates() store.Migration {
	return store.Migration{
		Version:     1,
		Description: "convert string-typed timestamps to BSON dates",
		Forward: map[string]store.DocumentTransform{
			"s3UploadDetails":         datify("initiated_at", "completed_at"),
			"filesUnderInterrogation": datify("updated_at"),
			"drsObjects":              datify("created_at", "last_accessed"),
		},
		Reverse: map[string]store.DocumentTransform{
			"s3UploadDetails":         stringify("initiated_at", "completed_at"),
			"filesUnderInterrogation": stringify("updated_at"),
			"drsObjects":              stringify("created_at", "last_accessed"),
		},
	}
}

// datify parses the named string fields as RFC3339 and replaces them with
// time values. Fields that are absent or already dates pass through.
func datify(fields ...string) store.DocumentTransform {
	return func(doc bson.M) (bson.M, error) {
		for _, field := range fields {
			raw, ok := doc[field]
			if !ok {
				continue
			}
			s, ok := raw.(string)
			if !ok {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("field %s holds %q, not an RFC3339 timestamp: %w", field, s, err)
			}
			doc[field] = t.UTC()
		}
		return doc, nil
	}
}

// stringify renders the named date fields back as RFC3339 strings.
func stringify(fields ...string) store.DocumentTransform {
	return func(doc bson.M) (bson.M, error) {
		for _, field := range fields {
			raw, ok := doc[field]
			if !ok {
				continue
			}
			switch t := raw.(type) {
			case time.Time:
				doc[field] = t.UTC().Format(time.RFC3339)
			case bson.DateTime:
				doc[field] = t.Time().UTC().Format(time.RFC3339)
			}
		}
		return doc, nil
	}
}
