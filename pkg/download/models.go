// Package download implements the download controller: a GA4GH DRS surface
// serving presigned URLs from a staging outbox, envelope delivery, and the
// janitorial cleanup of expired outbox objects.
package download

import "time"

// DrsObject is the download-side projection of a registered file, keyed by
// the public file id a DRS URI resolves to. LastAccessed drives the outbox
// cache expiry.
type DrsObject struct {
	ID              string    `bson:"_id"` // public file id
	Accession       string    `bson:"accession"`
	ObjectID        string    `bson:"object_id"`
	SecretID        string    `bson:"decryption_secret_id"`
	StorageAlias    string    `bson:"storage_alias"`
	DecryptedSHA256 string    `bson:"decrypted_sha256"`
	DecryptedSize   int64     `bson:"decrypted_size"`
	EncryptedSize   int64     `bson:"encrypted_size"`
	CreatedAt       time.Time `bson:"created_at"`
	LastAccessed    time.Time `bson:"last_accessed"`
}

func (o DrsObject) DocumentID() string { return o.ID }

// equalContent reports whether two records describe the same file, ignoring
// the access bookkeeping.
func (o DrsObject) equalContent(other DrsObject) bool {
	return o.ID == other.ID &&
		o.Accession == other.Accession &&
		o.ObjectID == other.ObjectID &&
		o.SecretID == other.SecretID &&
		o.DecryptedSHA256 == other.DecryptedSHA256 &&
		o.DecryptedSize == other.DecryptedSize &&
		o.EncryptedSize == other.EncryptedSize
}

// Access is a successful DRS object resolution: the response body plus the
// cache lifetime the edge should advertise.
type Access struct {
	Object    DrsObjectBody
	URLMaxAge time.Duration
}

// DrsObjectBody is the GA4GH DRS wire shape of one object.
type DrsObjectBody struct {
	ID            string         `json:"id"`
	SelfURI       string         `json:"self_uri"`
	Size          int64          `json:"size"`
	CreatedTime   time.Time      `json:"created_time"`
	Checksums     []DrsChecksum  `json:"checksums"`
	AccessMethods []AccessMethod `json:"access_methods"`
}

// DrsChecksum is one checksum entry of a DRS object.
type DrsChecksum struct {
	Checksum string `json:"checksum"`
	Type     string `json:"type"`
}

// AccessMethod is one way to fetch a DRS object's bytes.
type AccessMethod struct {
	Type      string    `json:"type"`
	AccessURL AccessURL `json:"access_url"`
}

// AccessURL carries the presigned URL of an access method.
type AccessURL struct {
	URL string `json:"url"`
}
