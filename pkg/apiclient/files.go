package apiclient

// InterrogatedFile describes one file in the ingest service's inbox.
type InterrogatedFile struct {
	FileID          string `json:"file_id"`
	State           string `json:"state"`
	StorageAlias    string `json:"s3_endpoint_alias"`
	BucketID        string `json:"bucket_id"`
	ObjectID        string `json:"object_id"`
	DecryptedSize   int64  `json:"decrypted_size"`
	EncryptedSize   int64  `json:"encrypted_size"`
	DecryptedSHA256 string `json:"decrypted_sha256"`
	Interrogated    bool   `json:"interrogated"`
	CanRemove       bool   `json:"can_remove"`
}

// ListFiles returns every file the ingest service is tracking.
func (c *Client) ListFiles() ([]InterrogatedFile, error) {
	var resp struct {
		Files []InterrogatedFile `json:"files"`
	}
	err := c.get("/files", &resp)
	return resp.Files, err
}

// GetIngestedFile fetches one file from the ingest service by its public id.
func (c *Client) GetIngestedFile(fileID string) (*InterrogatedFile, error) {
	var file InterrogatedFile
	if err := c.get("/files/"+fileID, &file); err != nil {
		return nil, err
	}
	return &file, nil
}
