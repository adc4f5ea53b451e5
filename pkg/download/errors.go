package download

import (
	"fmt"
	"time"
)

// DrsObjectNotFoundError indicates no DRS object exists under the id.
type DrsObjectNotFoundError struct {
	ObjectID string
}

func (e *DrsObjectNotFoundError) Error() string {
	return fmt.Sprintf("no DRS object %s", e.ObjectID)
}

// RetryAccessLaterError indicates the object is not staged yet; the caller
// should retry once staging has had time to finish.
type RetryAccessLaterError struct {
	RetryAfter time.Duration
}

func (e *RetryAccessLaterError) Error() string {
	return fmt.Sprintf("object not staged yet, retry after %s", e.RetryAfter)
}

// EnvelopeNotFoundError indicates the key store holds no secret for the
// object.
type EnvelopeNotFoundError struct {
	SecretID string
}

func (e *EnvelopeNotFoundError) Error() string {
	return fmt.Sprintf("no envelope for secret %s", e.SecretID)
}

// APICommunicationError indicates the key store could not be reached.
type APICommunicationError struct {
	Err error
}

func (e *APICommunicationError) Error() string {
	return fmt.Sprintf("key store communication failed: %v", e.Err)
}

func (e *APICommunicationError) Unwrap() error { return e.Err }

// CleanupError indicates an outbox object with no matching DRS object
// record: storage and registry have diverged.
type CleanupError struct {
	Bucket   string
	ObjectID string
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("outbox object %s/%s has no DRS object record", e.Bucket, e.ObjectID)
}
