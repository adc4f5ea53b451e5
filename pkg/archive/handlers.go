package archive

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/auth"
)

// RESTHandler exposes the registry's operational surface: accession deposits
// and registry lookups. Both require a data hub token.
type RESTHandler struct {
	svc      *Service
	verifier *auth.Verifier
}

// NewRESTHandler creates the HTTP surface of the registry service.
func NewRESTHandler(svc *Service, verifier *auth.Verifier) *RESTHandler {
	return &RESTHandler{svc: svc, verifier: verifier}
}

// Mount registers all registry routes on the router.
func (h *RESTHandler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireDataHubToken(h.verifier))

		r.Post("/accessions", h.storeAccessions)
		r.Get("/files/{accession}", h.getFile)
	})
}

type accessionPair struct {
	Accession string `json:"accession"`
	FileID    string `json:"file_id"`
}

type storeAccessionsRequest struct {
	Accessions []accessionPair `json:"accessions"`
}

type fileMetadataResponse struct {
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

func (h *RESTHandler) storeAccessions(w http.ResponseWriter, r *http.Request) {
	var req storeAccessionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Accessions) == 0 {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "accessions list is required", nil)
		return
	}
	for _, pair := range req.Accessions {
		if pair.Accession == "" || pair.FileID == "" {
			api.WriteError(w, http.StatusBadRequest, api.ExcValidation,
				"every entry needs accession and file_id", nil)
			return
		}
	}

	for _, pair := range req.Accessions {
		if err := h.svc.StoreAccession(r.Context(), pair.Accession, pair.FileID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) getFile(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.GetFile(r.Context(), chi.URLParam(r, "accession"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, fileMetadataResponse{
		Accession:         meta.Accession,
		FileID:            meta.FileID,
		ObjectID:          meta.ObjectID,
		StorageAlias:      meta.StorageAlias,
		BucketID:          meta.BucketID,
		DecryptedSHA256:   meta.DecryptedSHA256,
		DecryptedSize:     meta.DecryptedSize,
		EncryptedSize:     meta.EncryptedSize,
		PartSize:          meta.PartSize,
		PartChecksumsMD5:  meta.PartChecksumsMD5,
		PartChecksumsSHA2: meta.PartChecksumsSHA2,
		ArchiveDate:       meta.ArchiveDate,
	})
}

func (h *RESTHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notRegistered *FileNotInRegistryError
		notInInbox    *FileNotInInterrogationError
		sizeMismatch  *SizeMismatchError
		checksum      *ChecksumMismatchError
		copyErr       *CopyOperationError
		lost          *FileInRegistryButNotInStorageError
	)

	switch {
	case errors.As(err, &notRegistered):
		api.WriteError(w, http.StatusNotFound, api.ExcFileUploadNotFound, err.Error(),
			map[string]any{"accession": notRegistered.Accession})
	case errors.As(err, &notInInbox):
		api.WriteError(w, http.StatusConflict, api.ExcValidation, err.Error(),
			map[string]any{"file_id": notInInbox.FileID, "bucket": notInInbox.Bucket})
	case errors.As(err, &sizeMismatch):
		api.WriteError(w, http.StatusConflict, api.ExcValidation, err.Error(),
			map[string]any{"file_id": sizeMismatch.FileID})
	case errors.As(err, &checksum):
		api.WriteError(w, http.StatusConflict, api.ExcValidation, err.Error(),
			map[string]any{"accession": checksum.Accession})
	case errors.As(err, &copyErr), errors.As(err, &lost):
		api.WriteInternalError(w)
	default:
		logger.ErrorCtx(r.Context(), "registry request failed", logger.Err(err))
		api.WriteInternalError(w)
	}
}
