// Package upload implements the upload controller: resumable S3 multipart
// uploads into an inbox bucket, grouped into lockable file upload boxes.
package upload

import "time"

// FileUploadBox groups related file uploads. Size and FileCount are derived
// from the completed uploads in the box and recomputed from scratch on every
// change, never incremented blindly.
type FileUploadBox struct {
	ID           string `bson:"_id"`
	StorageAlias string `bson:"storage_alias"`
	Locked       bool   `bson:"locked"`
	Size         int64  `bson:"size"`
	FileCount    int64  `bson:"file_count"`
}

func (b FileUploadBox) DocumentID() string { return b.ID }

// FileUpload is one file being uploaded into a box. Alias is the caller's
// name for the file, unique within the box.
type FileUpload struct {
	ID        string `bson:"_id"`
	BoxID     string `bson:"box_id"`
	Alias     string `bson:"alias"`
	Checksum  string `bson:"checksum"`
	Size      int64  `bson:"size"`
	Completed bool   `bson:"completed"`
}

func (f FileUpload) DocumentID() string { return f.ID }

// S3UploadDetails mirrors the remote multipart upload of one FileUpload.
// Deleted together with its FileUpload.
type S3UploadDetails struct {
	ID           string     `bson:"_id"` // equals FileUpload.ID
	StorageAlias string     `bson:"storage_alias"`
	S3UploadID   string     `bson:"s3_upload_id"`
	InitiatedAt  time.Time  `bson:"initiated_at"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
}

func (d S3UploadDetails) DocumentID() string { return d.ID }
