// Package ingest implements the file ingest service: decrypting upload
// metadata envelopes with the service's Crypt4GH key, depositing file
// secrets with the key store, and announcing validated uploads to the rest
// of the pipeline.
package ingest

import "time"

// UploadMetadata describes one validated upload. It arrives either inside
// the encrypted legacy payload or as the plaintext half of a federated
// ingest.
type UploadMetadata struct {
	FileID            string   `json:"file_id"`
	BoxID             string   `json:"box_id,omitempty"`
	ObjectID          string   `json:"object_id"`
	BucketID          string   `json:"bucket_id"`
	StorageAlias      string   `json:"s3_endpoint_alias"`
	PartSize          int64    `json:"part_size"`
	DecryptedSize     int64    `json:"unencrypted_size"`
	EncryptedSize     int64    `json:"encrypted_size"`
	PartChecksumsMD5  []string `json:"encrypted_md5_checksums"`
	PartChecksumsSHA2 []string `json:"encrypted_sha256_checksums"`
	DecryptedSHA256   string   `json:"unencrypted_checksum"`
}

// legacyPayload is the decrypted shape of a legacy ingest: the metadata with
// the file secret embedded.
type legacyPayload struct {
	UploadMetadata
	FileSecret string `json:"file_secret"`
}

// InterrogationState is the lifecycle state of a file under interrogation.
type InterrogationState string

const (
	StateInit         InterrogationState = "init"
	StateInbox        InterrogationState = "inbox"
	StateInterrogated InterrogationState = "interrogated"
	StateFailed       InterrogationState = "failed"
	StateArchived     InterrogationState = "archived"
	StateCancelled    InterrogationState = "cancelled"
)

// stateRank orders states for monotonic transitions. A received state with a
// lower rank than the stored one is stale and ignored.
var stateRank = map[InterrogationState]int{
	StateInit:         0,
	StateInbox:        1,
	StateInterrogated: 2,
	StateFailed:       2,
	StateArchived:     3,
	StateCancelled:    3,
}

// FileUnderInterrogation tracks one ingested file through interrogation.
// CanRemove tells janitorial callers the inbox copy is no longer needed.
type FileUnderInterrogation struct {
	ID              string             `bson:"_id"` // file id
	State           InterrogationState `bson:"state"`
	SecretID        string             `bson:"secret_id"`
	StorageAlias    string             `bson:"storage_alias"`
	BucketID        string             `bson:"bucket_id"`
	ObjectID        string             `bson:"object_id"`
	DecryptedSize   int64              `bson:"decrypted_size"`
	EncryptedSize   int64              `bson:"encrypted_size"`
	DecryptedSHA256 string             `bson:"decrypted_sha256"`
	Interrogated    bool               `bson:"interrogated"`
	CanRemove       bool               `bson:"can_remove"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func (f FileUnderInterrogation) DocumentID() string { return f.ID }

// InterrogationReport is the outcome posted by an interrogation worker.
type InterrogationReport struct {
	FileID  string `json:"file_id"`
	Outcome string `json:"outcome"` // "pass" or "fail"
}
