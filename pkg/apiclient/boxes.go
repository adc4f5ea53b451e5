package apiclient

import "fmt"

// Box describes one upload box as reported by the upload controller.
type Box struct {
	BoxID        string `json:"box_id"`
	StorageAlias string `json:"storage_alias"`
	Locked       bool   `json:"locked"`
	Size         int64  `json:"size"`
	FileCount    int64  `json:"file_count"`
}

// CreateBox opens a new upload box on the given storage endpoint.
func (c *Client) CreateBox(storageAlias string) (string, error) {
	var resp struct {
		BoxID string `json:"box_id"`
	}
	err := c.post("/boxes", map[string]string{"storage_alias": storageAlias}, &resp)
	return resp.BoxID, err
}

// GetBox fetches one box.
func (c *Client) GetBox(boxID string) (*Box, error) {
	var box Box
	if err := c.get("/boxes/"+boxID, &box); err != nil {
		return nil, err
	}
	return &box, nil
}

// SetBoxLock locks or unlocks a box.
func (c *Client) SetBoxLock(boxID string, lock bool) error {
	return c.patch("/boxes/"+boxID, map[string]bool{"lock": lock}, nil)
}

// ListUploads returns the file ids of every upload in a box.
func (c *Client) ListUploads(boxID string) ([]string, error) {
	var resp struct {
		FileIDs []string `json:"file_ids"`
	}
	err := c.get(fmt.Sprintf("/boxes/%s/uploads", boxID), &resp)
	return resp.FileIDs, err
}

// RemoveUpload deletes one file upload from a box.
func (c *Client) RemoveUpload(boxID, fileID string) error {
	return c.delete(fmt.Sprintf("/boxes/%s/uploads/%s", boxID, fileID))
}
