package apiclient

import (
	"net/http"
	"strconv"
	"time"
)

// DrsObject is the GA4GH DRS wire shape of one downloadable object.
type DrsObject struct {
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

// ObjectStagingError reports that the object exists but is still being
// staged; the server asked the caller to come back later.
type ObjectStagingError struct {
	ObjectID   string
	RetryAfter time.Duration
}

func (e *ObjectStagingError) Error() string {
	return "object " + e.ObjectID + " is being staged, retry after " + e.RetryAfter.String()
}

// GetObject resolves one DRS object. When the object is still staging the
// call fails with ObjectStagingError carrying the server's Retry-After.
func (c *Client) GetObject(objectID string) (*DrsObject, error) {
	resp, body, err := c.roundTrip(http.MethodGet, "/ga4gh/drs/v1/objects/"+objectID, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusAccepted {
		retryAfter := 30 * time.Second
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, &ObjectStagingError{ObjectID: objectID, RetryAfter: retryAfter}
	}
	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	var obj DrsObject
	if err := decodeInto(body, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// GetEnvelope fetches the base64 Crypt4GH envelope of one object, encrypted
// for the recipient key carried by the caller's token.
func (c *Client) GetEnvelope(objectID string) (string, error) {
	var resp struct {
		Content string `json:"content"`
	}
	err := c.get("/ga4gh/drs/v1/objects/"+objectID+"/envelopes", &resp)
	return resp.Content, err
}
