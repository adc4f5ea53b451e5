package upload

import "fmt"

// BoxNotFoundError indicates the addressed box does not exist.
type BoxNotFoundError struct {
	BoxID string
}

func (e *BoxNotFoundError) Error() string {
	return fmt.Sprintf("upload box %s not found", e.BoxID)
}

// LockedBoxError indicates a mutating operation hit a locked box.
type LockedBoxError struct {
	BoxID string
}

func (e *LockedBoxError) Error() string {
	return fmt.Sprintf("upload box %s is locked", e.BoxID)
}

// IncompleteUploadsError indicates a box cannot be locked because uploads
// are still in flight.
type IncompleteUploadsError struct {
	BoxID   string
	FileIDs []string
}

func (e *IncompleteUploadsError) Error() string {
	return fmt.Sprintf("upload box %s has %d incomplete uploads", e.BoxID, len(e.FileIDs))
}

// FileUploadAlreadyExistsError indicates the box already holds a FileUpload
// under the alias.
type FileUploadAlreadyExistsError struct {
	BoxID string
	Alias string
}

func (e *FileUploadAlreadyExistsError) Error() string {
	return fmt.Sprintf("upload box %s already has a file upload for alias %q", e.BoxID, e.Alias)
}

// FileUploadNotFoundError indicates the addressed file upload does not exist
// in the box.
type FileUploadNotFoundError struct {
	BoxID  string
	FileID string
}

func (e *FileUploadNotFoundError) Error() string {
	return fmt.Sprintf("file upload %s not found in box %s", e.FileID, e.BoxID)
}

// OrphanedMultipartUploadError indicates the storage still holds the
// multipart upload an interrupted initiate left on the file's key. The
// registration has been rolled back; the next attempt starts over under a
// fresh key, and an operator aborts the stray upload using the wrapped
// storage error's upload id.
type OrphanedMultipartUploadError struct {
	FileID string
	Bucket string
	Err    error
}

func (e *OrphanedMultipartUploadError) Error() string {
	return fmt.Sprintf("orphaned multipart upload for file %s in bucket %s: %v", e.FileID, e.Bucket, e.Err)
}

func (e *OrphanedMultipartUploadError) Unwrap() error { return e.Err }

// S3UploadNotFoundError indicates the storage has forgotten the multipart
// upload; the client must delete the file upload and start over.
type S3UploadNotFoundError struct {
	FileID     string
	S3UploadID string
}

func (e *S3UploadNotFoundError) Error() string {
	return fmt.Sprintf("multipart upload %s for file %s no longer exists in storage", e.S3UploadID, e.FileID)
}

// UploadCompletionError indicates the storage failed to complete the
// multipart upload for a reason other than a survivable crash.
type UploadCompletionError struct {
	FileID string
	Err    error
}

func (e *UploadCompletionError) Error() string {
	return fmt.Sprintf("failed to complete upload of file %s: %v", e.FileID, e.Err)
}

func (e *UploadCompletionError) Unwrap() error { return e.Err }
