package archive

import "fmt"

// FileNotInInterrogationError indicates the source object the registration
// refers to is absent from the inbox bucket.
type FileNotInInterrogationError struct {
	FileID string
	Bucket string
}

func (e *FileNotInInterrogationError) Error() string {
	return fmt.Sprintf("file %s is not present in inbox bucket %s", e.FileID, e.Bucket)
}

// SizeMismatchError indicates the inbox object's size contradicts the
// registration metadata.
type SizeMismatchError struct {
	FileID   string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("file %s has size %d in storage, expected %d", e.FileID, e.Actual, e.Expected)
}

// CopyOperationError indicates the archival copy failed for a reason other
// than a missing source.
type CopyOperationError struct {
	FileID string
	Err    error
}

func (e *CopyOperationError) Error() string {
	return fmt.Sprintf("failed to archive file %s: %v", e.FileID, e.Err)
}

func (e *CopyOperationError) Unwrap() error { return e.Err }

// FileNotInRegistryError indicates no file is registered under the accession.
type FileNotInRegistryError struct {
	Accession string
}

func (e *FileNotInRegistryError) Error() string {
	return fmt.Sprintf("no file registered under accession %s", e.Accession)
}

// ChecksumMismatchError indicates a staging request named a checksum that
// contradicts the registered one.
type ChecksumMismatchError struct {
	Accession string
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for accession %s: got %s, registered %s", e.Accession, e.Actual, e.Expected)
}

// FileInRegistryButNotInStorageError indicates the registry names an object
// that is gone from permanent storage. Requires operator intervention.
type FileInRegistryButNotInStorageError struct {
	Accession string
	Bucket    string
	ObjectID  string
}

func (e *FileInRegistryButNotInStorageError) Error() string {
	return fmt.Sprintf("accession %s is registered but object %s is missing from bucket %s", e.Accession, e.ObjectID, e.Bucket)
}
