package apiclient

import "net/http"

// ReadinessStatus is the readiness endpoint's body: an overall verdict plus
// the per-dependency probe results.
type ReadinessStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Alive probes the liveness endpoint.
func (c *Client) Alive() error {
	return c.get("/health", nil)
}

// Ready probes the readiness endpoint. The boolean reports whether the
// service answered ready; the status carries the per-dependency results
// either way, since a degraded service still explains itself in the body.
func (c *Client) Ready() (bool, *ReadinessStatus, error) {
	resp, body, err := c.roundTrip(http.MethodGet, "/health/ready", nil)
	if err != nil {
		return false, nil, err
	}

	var st ReadinessStatus
	if err := decodeInto(body, &st); err != nil {
		return false, nil, err
	}
	return resp.StatusCode == http.StatusOK, &st, nil
}
