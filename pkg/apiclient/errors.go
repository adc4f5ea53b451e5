package apiclient

import "fmt"

// APIError is the decoded error body of a failed request. ExceptionID values
// mirror the service error envelope.
type APIError struct {
	StatusCode  int            `json:"-"`
	ExceptionID string         `json:"exception_id"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

func (e *APIError) Error() string {
	if e.ExceptionID != "" {
		return fmt.Sprintf("%s: %s", e.ExceptionID, e.Description)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Description)
}

// IsNotFound reports whether the server answered 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsConflict reports whether the server answered 409.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == 409
}

// IsAuthError reports whether the request was rejected for missing or
// insufficient credentials.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
