// Package storage defines the object storage port used by all pipeline
// services and its S3 implementation.
//
// All cross-service references to storage use aliases, never URLs. An alias
// names one configured S3 endpoint; buckets are addressed explicitly per
// operation because a single endpoint hosts several bucket roles (inbox,
// permanent, outbox).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ObjectStorage is the outbound port for one S3-compatible endpoint.
//
// Implementations must be safe for concurrent use. All operations honor the
// idempotence contracts documented per method so that crashed and retried
// handlers converge.
type ObjectStorage interface {
	// InitMultipartUpload starts a multipart upload for bucket/object and
	// returns the opaque upload id. Fails with ErrMultipartInProgress if an
	// in-progress upload for the same key already exists.
	InitMultipartUpload(ctx context.Context, bucket, object string) (string, error)

	// PartUploadURL returns a presigned PUT URL for the given part number,
	// valid for the configured TTL. Fails with ErrUploadNotFound if the
	// multipart upload is unknown to the storage.
	PartUploadURL(ctx context.Context, uploadID, bucket, object string, partNumber int32) (string, error)

	// CompleteMultipartUpload finishes the multipart upload. If the storage
	// reports the upload as unknown but the object exists, the completion is
	// treated as already done (crash-recovery idempotence) and nil is
	// returned.
	CompleteMultipartUpload(ctx context.Context, uploadID, bucket, object string) error

	// AbortMultipartUpload aborts the multipart upload. An unknown upload is
	// swallowed; any other failure surfaces as *AbortError.
	AbortMultipartUpload(ctx context.Context, uploadID, bucket, object string) error

	// GetObjectSize returns the size of the object in bytes, or
	// ErrObjectNotFound.
	GetObjectSize(ctx context.Context, bucket, object string) (int64, error)

	// DoesObjectExist reports whether bucket/object exists.
	DoesObjectExist(ctx context.Context, bucket, object string) (bool, error)

	// CopyObject copies srcBucket/srcObject to dstBucket/dstObject. A
	// pre-existing destination object is a no-op (idempotent re-stage). A
	// missing source surfaces ErrObjectNotFound; any other failure surfaces
	// as *CopyError.
	CopyObject(ctx context.Context, srcBucket, srcObject, dstBucket, dstObject string) error

	// DeleteObject removes the object. Deleting a missing object is a no-op.
	DeleteObject(ctx context.Context, bucket, object string) error

	// PresignedDownloadURL returns a presigned GET URL valid for expiresAfter.
	PresignedDownloadURL(ctx context.Context, bucket, object string, expiresAfter time.Duration) (string, error)

	// ListObjectIDs returns the keys of all objects in the bucket.
	ListObjectIDs(ctx context.Context, bucket string) ([]string, error)
}

// Sentinel errors shared by all implementations.
var (
	// ErrObjectNotFound indicates the addressed object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUploadNotFound indicates the multipart upload id is unknown to the
	// storage backend (expired, aborted, or never created).
	ErrUploadNotFound = errors.New("multipart upload not found")

	// ErrMultipartInProgress indicates another multipart upload already
	// exists for the same object key.
	ErrMultipartInProgress = errors.New("multipart upload already in progress for object")
)

// AbortError wraps a failure to abort a multipart upload. The stray upload
// keeps accumulating parts on the backend until an operator aborts it with
// the recorded upload id.
type AbortError struct {
	Bucket   string
	Object   string
	UploadID string
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("failed to abort multipart upload %s for %s/%s: %v", e.UploadID, e.Bucket, e.Object, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// CopyError wraps a failure to copy an object between buckets.
type CopyError struct {
	SrcBucket string
	SrcObject string
	DstBucket string
	DstObject string
	Err       error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("failed to copy %s/%s to %s/%s: %v", e.SrcBucket, e.SrcObject, e.DstBucket, e.DstObject, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// UnknownAliasError indicates a storage alias that is not configured.
// This is a configuration fault; callers log it at critical level.
type UnknownAliasError struct {
	Alias string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("unknown storage alias %q", e.Alias)
}

// Endpoint binds one configured alias to its storage client and the bucket
// it addresses.
type Endpoint struct {
	Storage ObjectStorage
	Bucket  string
}

// Aliases resolves storage aliases to configured endpoints.
type Aliases struct {
	endpoints map[string]Endpoint
}

// NewAliases builds an alias registry from pre-constructed endpoints.
func NewAliases(endpoints map[string]Endpoint) *Aliases {
	m := make(map[string]Endpoint, len(endpoints))
	for alias, e := range endpoints {
		m[alias] = e
	}
	return &Aliases{endpoints: m}
}

// Get returns the endpoint configured under alias, or *UnknownAliasError.
func (a *Aliases) Get(alias string) (Endpoint, error) {
	e, ok := a.endpoints[alias]
	if !ok {
		return Endpoint{}, &UnknownAliasError{Alias: alias}
	}
	return e, nil
}

// Names returns the configured alias names.
func (a *Aliases) Names() []string {
	names := make([]string, 0, len(a.endpoints))
	for alias := range a.endpoints {
		names = append(names, alias)
	}
	return names
}
