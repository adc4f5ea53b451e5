// Package events defines the wire event schemas exchanged between the
// pipeline services and the broker adapter that carries them: an
// outbox-backed publisher, a Kafka flusher, and a subscriber with
// idempotent delivery and a dead-letter queue.
package events

// Event type names as carried in the "type" message header.
const (
	TypeFileUploadValidationSuccess = "FileUploadValidationSuccess"
	TypeFileInternallyRegistered    = "FileInternallyRegistered"
	TypeFileRegisteredForDownload   = "FileRegisteredForDownload"
	TypeFileDownloadServed          = "FileDownloadServed"
	TypeNonStagedFileRequested      = "NonStagedFileRequested"
	TypeFileDeletionRequested       = "FileDeletionRequested"
	TypeFileDeleted                 = "FileDeleted"
	TypeBoxCreated                  = "FileUploadBoxCreated"
	TypeBoxUpdated                  = "FileUploadBoxUpdated"
)

// Default topic names, overridable per service configuration.
const (
	TopicFileInterrogations  = "file-interrogations"
	TopicFileRegistrations   = "file-registrations"
	TopicFileDownloads       = "file-downloads"
	TopicFileStagingRequests = "file-staging-requests"
	TopicFileDeletions       = "file-deletions"
	TopicUploadBoxes         = "file-upload-boxes"
)

// FileUploadValidationSuccess is published by the ingest service once an
// upload's metadata envelope was decrypted and its file secret deposited.
// Keyed by FileID.
type FileUploadValidationSuccess struct {
	FileID            string   `json:"file_id"`
	BoxID             string   `json:"box_id,omitempty"`
	SecretID          string   `json:"secret_id"`
	StorageAlias      string   `json:"s3_endpoint_alias"`
	BucketID          string   `json:"bucket_id"`
	ObjectID          string   `json:"object_id"`
	DecryptedSize     int64    `json:"decrypted_size"`
	EncryptedSize     int64    `json:"encrypted_size"`
	PartSize          int64    `json:"part_size"`
	PartChecksumsMD5  []string `json:"encrypted_part_md5"`
	PartChecksumsSHA2 []string `json:"encrypted_part_sha256"`
	DecryptedSHA256   string   `json:"decrypted_sha256"`
}

// FileInternallyRegistered is published by the registry service after a file
// was copied into permanent storage. Keyed by Accession.
type FileInternallyRegistered struct {
	Accession         string   `json:"accession"`
	FileID            string   `json:"file_id"`
	ObjectID          string   `json:"object_id"`
	SecretID          string   `json:"decryption_secret_id"`
	StorageAlias      string   `json:"s3_endpoint_alias"`
	BucketID          string   `json:"bucket_id"`
	DecryptedSHA256   string   `json:"decrypted_sha256"`
	DecryptedSize     int64    `json:"decrypted_size"`
	EncryptedSize     int64    `json:"encrypted_size"`
	PartSize          int64    `json:"part_size"`
	PartChecksumsMD5  []string `json:"encrypted_part_md5"`
	PartChecksumsSHA2 []string `json:"encrypted_part_sha256"`
	ArchiveDate       string   `json:"archive_date"`
}

// FileRegisteredForDownload is published by the download service once a DRS
// object exists for a registered file. Keyed by FileID.
type FileRegisteredForDownload struct {
	FileID          string `json:"file_id"`
	DecryptedSHA256 string `json:"decrypted_sha256"`
	DrsURI          string `json:"drs_uri"`
}

// FileDownloadServed is published for every successfully served download.
// Keyed by FileID.
type FileDownloadServed struct {
	FileID          string `json:"file_id"`
	DecryptedSHA256 string `json:"decrypted_sha256"`
	TargetBucketID  string `json:"target_bucket_id"`
}

// NonStagedFileRequested asks the registry service to stage a file into the
// download outbox. Keyed by FileID; the registry resolves the accession
// through its join.
type NonStagedFileRequested struct {
	FileID          string `json:"file_id"`
	DecryptedSHA256 string `json:"decrypted_sha256"`
	TargetObjectID  string `json:"target_object_id"`
	TargetBucketID  string `json:"target_bucket_id"`
}

// FileDeletionRequested asks all services to forget a file. Keyed by FileID.
type FileDeletionRequested struct {
	FileID string `json:"file_id"`
}

// FileDeleted confirms one service has forgotten a file. Keyed by FileID.
type FileDeleted struct {
	FileID string `json:"file_id"`
}

// BoxCreated is published when an upload box comes into existence. Keyed by BoxID.
type BoxCreated struct {
	BoxID        string `json:"box_id"`
	StorageAlias string `json:"storage_alias"`
}

// BoxUpdated carries the recomputed box stats after any change. Keyed by BoxID.
type BoxUpdated struct {
	BoxID     string `json:"box_id"`
	Locked    bool   `json:"locked"`
	Size      int64  `json:"size"`
	FileCount int64  `json:"file_count"`
}
