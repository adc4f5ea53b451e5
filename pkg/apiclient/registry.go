package apiclient

// AccessionPair binds one accession to one public file id.
type AccessionPair struct {
	Accession string `json:"accession"`
	FileID    string `json:"file_id"`
}

// RegisteredFile is the registry's record of one archived file.
type RegisteredFile struct {
	Accession         string   `json:"accession"`
	FileID            string   `json:"file_id"`
	ObjectID          string   `json:"object_id"`
	StorageAlias      string   `json:"s3_endpoint_alias"`
	BucketID          string   `json:"bucket_id"`
	DecryptedSHA256   string   `json:"decrypted_sha256"`
	DecryptedSize     int64    `json:"decrypted_size"`
	EncryptedSize     int64    `json:"encrypted_size"`
	PartSize          int64    `json:"part_size"`
	PartChecksumsMD5  []string `json:"parts_md5"`
	PartChecksumsSHA2 []string `json:"parts_sha256"`
	ArchiveDate       string   `json:"archive_date"`
}

// StoreAccessions deposits accession assignments with the registry. The
// registry validates the whole batch before storing any of it.
func (c *Client) StoreAccessions(pairs []AccessionPair) error {
	body := map[string][]AccessionPair{"accessions": pairs}
	return c.post("/accessions", body, nil)
}

// GetRegisteredFile fetches the registry record for one accession.
func (c *Client) GetRegisteredFile(accession string) (*RegisteredFile, error) {
	var file RegisteredFile
	if err := c.get("/files/"+accession, &file); err != nil {
		return nil, err
	}
	return &file, nil
}
