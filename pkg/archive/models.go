// Package archive implements the internal file registry: archival copies
// from the inbox into permanent storage, staging into the download outbox,
// deletion, and the accession-to-file join that drives registration.
package archive

import "slices"

// FileMetadata is the authoritative record of one archived file, keyed by
// its accession.
type FileMetadata struct {
	Accession         string   `bson:"_id"`
	FileID            string   `bson:"file_id"`
	ObjectID          string   `bson:"object_id"`
	SecretID          string   `bson:"decryption_secret_id"`
	StorageAlias      string   `bson:"storage_alias"`
	BucketID          string   `bson:"bucket_id"`
	DecryptedSHA256   string   `bson:"decrypted_sha256"`
	DecryptedSize     int64    `bson:"decrypted_size"`
	EncryptedSize     int64    `bson:"encrypted_size"`
	PartSize          int64    `bson:"part_size"`
	PartChecksumsMD5  []string `bson:"parts_md5"`
	PartChecksumsSHA2 []string `bson:"parts_sha256"`
	ArchiveDate       string   `bson:"archive_date"`
}

func (m FileMetadata) DocumentID() string { return m.Accession }

// equalContent reports whether two records describe the same file. Storage
// location and archive timestamp are rewritten during registration, so only
// the identity fields are compared.
func (m FileMetadata) equalContent(other FileMetadata) bool {
	return m.Accession == other.Accession &&
		m.FileID == other.FileID &&
		m.ObjectID == other.ObjectID &&
		m.SecretID == other.SecretID &&
		m.DecryptedSHA256 == other.DecryptedSHA256 &&
		m.DecryptedSize == other.DecryptedSize &&
		m.EncryptedSize == other.EncryptedSize &&
		m.PartSize == other.PartSize &&
		slices.Equal(m.PartChecksumsMD5, other.PartChecksumsMD5) &&
		slices.Equal(m.PartChecksumsSHA2, other.PartChecksumsSHA2)
}

// PendingFileUpload is the file half of the registration join: a validated
// upload waiting for its accession. Keyed by file id.
type PendingFileUpload struct {
	FileID            string   `bson:"_id"`
	ObjectID          string   `bson:"object_id"`
	SecretID          string   `bson:"secret_id"`
	StorageAlias      string   `bson:"storage_alias"`
	BucketID          string   `bson:"bucket_id"`
	DecryptedSHA256   string   `bson:"decrypted_sha256"`
	DecryptedSize     int64    `bson:"decrypted_size"`
	EncryptedSize     int64    `bson:"encrypted_size"`
	PartSize          int64    `bson:"part_size"`
	PartChecksumsMD5  []string `bson:"parts_md5"`
	PartChecksumsSHA2 []string `bson:"parts_sha256"`
}

func (p PendingFileUpload) DocumentID() string { return p.FileID }

// AccessionMapping is the accession half of the registration join. Keyed by
// file id so either half can find the other.
type AccessionMapping struct {
	FileID    string `bson:"_id"`
	Accession string `bson:"accession"`
}

func (a AccessionMapping) DocumentID() string { return a.FileID }
