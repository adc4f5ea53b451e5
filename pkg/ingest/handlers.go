package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/auth"
	"github.com/fedarchive/genarc/pkg/crypt4gh"
)

// RESTHandler exposes the ingest service over HTTP. All routes require a
// valid data hub token; the encrypted payloads carry the file identity.
type RESTHandler struct {
	svc      *Service
	verifier *auth.Verifier
}

// NewRESTHandler creates the HTTP surface of the ingest service.
func NewRESTHandler(svc *Service, verifier *auth.Verifier) *RESTHandler {
	return &RESTHandler{svc: svc, verifier: verifier}
}

// Mount registers all ingest routes on the router.
func (h *RESTHandler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireDataHubToken(h.verifier))

		r.Post("/legacy/ingest", h.legacyIngest)
		r.Post("/federated/ingest_secret", h.ingestSecret)
		r.Post("/federated/ingest_metadata", h.ingestMetadata)

		r.Get("/files", h.listFiles)
		r.Get("/files/{file_id}", h.getFile)
		r.Post("/interrogations", h.postReport)
	})
}

type encryptedPayloadRequest struct {
	Payload string `json:"payload"` // base64 Crypt4GH message
}

type ingestMetadataRequest struct {
	UploadMetadata
	SecretID string `json:"secret_id"`
}

type fileResponse struct {
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

func decodePayload(r *http.Request) ([]byte, bool) {
	var req encryptedPayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		return nil, false
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (h *RESTHandler) legacyIngest(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(r)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "payload must be a base64 string", nil)
		return
	}

	if err := h.svc.IngestLegacy(r.Context(), payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *RESTHandler) ingestSecret(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(r)
	if !ok {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "payload must be a base64 string", nil)
		return
	}

	secretID, err := h.svc.IngestSecret(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"secret_id": secretID})
}

func (h *RESTHandler) ingestMetadata(w http.ResponseWriter, r *http.Request) {
	var req ingestMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "invalid request body", nil)
		return
	}

	if err := h.svc.IngestMetadata(r.Context(), req.UploadMetadata, req.SecretID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *RESTHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListFiles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	api.WriteJSON(w, http.StatusOK, map[string][]fileResponse{"files": out})
}

func (h *RESTHandler) getFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.GetFile(r.Context(), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toFileResponse(file))
}

func (h *RESTHandler) postReport(w http.ResponseWriter, r *http.Request) {
	var report InterrogationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil || report.FileID == "" {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "file_id and outcome are required", nil)
		return
	}

	if err := h.svc.HandleReport(r.Context(), report); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toFileResponse(f FileUnderInterrogation) fileResponse {
	return fileResponse{
		FileID:          f.ID,
		State:           string(f.State),
		StorageAlias:    f.StorageAlias,
		BucketID:        f.BucketID,
		ObjectID:        f.ObjectID,
		DecryptedSize:   f.DecryptedSize,
		EncryptedSize:   f.EncryptedSize,
		DecryptedSHA256: f.DecryptedSHA256,
		Interrogated:    f.Interrogated,
		CanRemove:       f.CanRemove,
	}
}

func (h *RESTHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		decryptErr *crypt4gh.DecryptionError
		formatErr  *crypt4gh.WrongFormatError
		schemaErr  *WrongDecryptedFormatError
		vaultErr   *VaultCommunicationError
		notFound   *FileNotFoundError
	)

	switch {
	case errors.As(err, &decryptErr):
		api.WriteError(w, http.StatusBadRequest, api.ExcDecryptionError,
			"payload could not be decrypted with the service key", nil)
	case errors.As(err, &formatErr):
		api.WriteError(w, http.StatusBadRequest, api.ExcDecryptionError, err.Error(), nil)
	case errors.As(err, &schemaErr):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ExcWrongDecryptedFormat, err.Error(), nil)
	case errors.As(err, &vaultErr):
		logger.ErrorCtx(r.Context(), "key store deposit failed", logger.Err(err))
		api.WriteError(w, http.StatusBadGateway, api.ExcVaultCommunication,
			"key store is unavailable", nil)
	case errors.As(err, &notFound):
		api.WriteError(w, http.StatusNotFound, api.ExcFileUploadNotFound, err.Error(),
			map[string]any{"file_id": notFound.FileID})
	default:
		logger.ErrorCtx(r.Context(), "ingest request failed", logger.Err(err))
		api.WriteInternalError(w)
	}
}
