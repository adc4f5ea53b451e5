// Package api provides the shared HTTP surface of the pipeline services:
// server lifecycle, routing middleware, and the machine-readable error body
// convention. Every error response carries a stable exception id so clients
// can branch on failures without parsing prose.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/fedarchive/genarc/internal/logger"
)

// Exception ids of the REST surface. The set is part of the public API;
// renaming one is a breaking change.
const (
	ExcNoSuchStorage           = "noSuchStorage"
	ExcBoxNotFound             = "boxNotFound"
	ExcBoxAlreadyExists        = "boxAlreadyExists"
	ExcIncompleteUploads       = "incompleteUploads"
	ExcLockedBox               = "lockedBox"
	ExcFileUploadAlreadyExists = "fileUploadAlreadyExists"
	ExcMultipartUploadDupe     = "multipartUploadDupe"
	ExcFileUploadNotFound      = "fileUploadNotFound"
	ExcMultipartUploadNotFound = "multipartUploadNotFound"
	ExcUploadCompletionError   = "uploadCompletionError"
	ExcUploadAbortError        = "uploadAbortError"
	ExcDecryptionError         = "decryptionError"
	ExcWrongDecryptedFormat    = "wrongDecryptedFormatError"
	ExcVaultCommunication      = "vaultCommunicationError"
	ExcDrsObjectNotFound       = "drsObjectNotFound"
	ExcEnvelopeNotFound        = "envelopeNotFoundError"
	ExcAPICommunication        = "apiCommunicationError"
	ExcWrongFileAuthorization  = "wrongFileAuthorizationError"
	ExcUnauthorized            = "unauthorizedError"
	ExcValidation              = "validationError"
	ExcInternal                = "internalError"
)

// ErrorBody is the wire shape of every REST error response.
type ErrorBody struct {
	ExceptionID string         `json:"exception_id"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// WriteError sends an error body with the given status. data may be nil.
func WriteError(w http.ResponseWriter, status int, exceptionID, description string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	body := ErrorBody{
		ExceptionID: exceptionID,
		Description: description,
		Data:        data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode error response", logger.Err(err))
	}
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", logger.Err(err))
	}
}

// WriteInternalError sends a generic 500 without leaking details.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, ExcInternal, "internal server error", nil)
}
