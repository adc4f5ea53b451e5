package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all services so that one log query
// can follow a file through upload, ingest, archival and download.
const (
	// Correlation & identity
	KeyService       = "service"        // emitting service: ucs, fis, ifrs, dcs
	KeyCorrelationID = "correlation_id" // event/request correlation id
	KeyCritical      = "critical"       // marks operator-intervention errors

	// File lifecycle identifiers
	KeyFileID    = "file_id"   // upload file id (UUID)
	KeyBoxID     = "box_id"    // file upload box id (UUID)
	KeyAccession = "accession" // stable external file identifier
	KeyObjectID  = "object_id" // object key in permanent/outbox storage
	KeySecretID  = "secret_id" // key store secret id

	// Object storage
	KeyStorageAlias = "storage_alias" // configured storage alias
	KeyBucket       = "bucket"        // bucket id
	KeyUploadID     = "upload_id"     // S3 multipart upload id
	KeyPartNumber   = "part_number"   // multipart part number
	KeySize         = "size"          // size in bytes

	// Events
	KeyTopic     = "topic"      // broker topic
	KeyEventType = "event_type" // event schema name
	KeyEventKey  = "event_key"  // broker message key

	// HTTP
	KeyClientIP  = "client_ip"
	KeyRequestID = "request_id"
	KeyStatus    = "status"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
	KeyCollection = "collection" // document store collection
)

// Field constructors for type safety.

// FileID returns a slog.Attr for the upload file id
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// BoxID returns a slog.Attr for the file upload box id
func BoxID(id string) slog.Attr {
	return slog.String(KeyBoxID, id)
}

// Accession returns a slog.Attr for the external file identifier
func Accession(a string) slog.Attr {
	return slog.String(KeyAccession, a)
}

// ObjectID returns a slog.Attr for the storage object key
func ObjectID(id string) slog.Attr {
	return slog.String(KeyObjectID, id)
}

// SecretID returns a slog.Attr for the key store secret id
func SecretID(id string) slog.Attr {
	return slog.String(KeySecretID, id)
}

// StorageAlias returns a slog.Attr for a configured storage alias
func StorageAlias(alias string) slog.Attr {
	return slog.String(KeyStorageAlias, alias)
}

// Bucket returns a slog.Attr for a bucket id
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// UploadID returns a slog.Attr for an S3 multipart upload id
func UploadID(id string) slog.Attr {
	return slog.String(KeyUploadID, id)
}

// PartNumber returns a slog.Attr for a multipart part number
func PartNumber(n int) slog.Attr {
	return slog.Int(KeyPartNumber, n)
}

// Size returns a slog.Attr for a size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Topic returns a slog.Attr for a broker topic
func Topic(t string) slog.Attr {
	return slog.String(KeyTopic, t)
}

// EventType returns a slog.Attr for an event schema name
func EventType(t string) slog.Attr {
	return slog.String(KeyEventType, t)
}

// EventKey returns a slog.Attr for a broker message key
func EventKey(k string) slog.Attr {
	return slog.String(KeyEventKey, k)
}

// CorrelationID returns a slog.Attr for a correlation id
func CorrelationID(id string) slog.Attr {
	return slog.String(KeyCorrelationID, id)
}

// Collection returns a slog.Attr for a document store collection name
func Collection(name string) slog.Attr {
	return slog.String(KeyCollection, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
