package upload

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/auth"
	"github.com/fedarchive/genarc/pkg/storage"
)

// RESTHandler exposes the upload controller over HTTP.
type RESTHandler struct {
	ctrl     *Controller
	verifier *auth.Verifier
}

// NewRESTHandler creates the HTTP surface of the upload controller.
func NewRESTHandler(ctrl *Controller, verifier *auth.Verifier) *RESTHandler {
	return &RESTHandler{ctrl: ctrl, verifier: verifier}
}

// Mount registers all upload routes on the router. Box routes take UOS
// tokens, file upload routes take WPS tokens; each token is bound to the
// resource id in the path.
func (h *RESTHandler) Mount(r chi.Router) {
	r.Route("/boxes", func(r chi.Router) {
		r.With(auth.RequireResourceToken(h.verifier, auth.ActionCreateBox, "")).
			Post("/", h.createBox)

		r.Route("/{box_id}", func(r chi.Router) {
			r.With(auth.RequireResourceToken(h.verifier, auth.ActionViewBox, "box_id")).
				Get("/", h.getBox)
			r.With(auth.RequireResourceToken(h.verifier, auth.ActionLockBox, "box_id")).
				Patch("/", h.updateBox)

			r.Route("/uploads", func(r chi.Router) {
				r.With(auth.RequireResourceToken(h.verifier, auth.ActionViewBox, "box_id")).
					Get("/", h.listUploads)
				r.With(auth.RequireResourceToken(h.verifier, auth.ActionCreateFile, "box_id")).
					Post("/", h.createUpload)

				r.Route("/{file_id}", func(r chi.Router) {
					r.With(auth.RequireResourceToken(h.verifier, auth.ActionUploadFile, "file_id")).
						Get("/parts/{part_no}", h.partURL)
					r.With(auth.RequireResourceToken(h.verifier, auth.ActionCloseFile, "file_id")).
						Patch("/", h.completeUpload)
					r.With(auth.RequireResourceToken(h.verifier, auth.ActionDeleteFile, "file_id")).
						Delete("/", h.removeUpload)
				})
			})
		})
	})
}

type createBoxRequest struct {
	StorageAlias string `json:"storage_alias"`
}

type boxResponse struct {
	BoxID        string `json:"box_id"`
	StorageAlias string `json:"storage_alias"`
	Locked       bool   `json:"locked"`
	Size         int64  `json:"size"`
	FileCount    int64  `json:"file_count"`
}

type createUploadRequest struct {
	Alias    string `json:"alias"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

type updateBoxRequest struct {
	Lock bool `json:"lock"`
}

func (h *RESTHandler) createBox(w http.ResponseWriter, r *http.Request) {
	var req createBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StorageAlias == "" {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "storage_alias is required", nil)
		return
	}

	boxID, err := h.ctrl.CreateBox(r.Context(), req.StorageAlias)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"box_id": boxID})
}

func (h *RESTHandler) getBox(w http.ResponseWriter, r *http.Request) {
	box, err := h.ctrl.GetBox(r.Context(), chi.URLParam(r, "box_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, boxResponse{
		BoxID:        box.ID,
		StorageAlias: box.StorageAlias,
		Locked:       box.Locked,
		Size:         box.Size,
		FileCount:    box.FileCount,
	})
}

func (h *RESTHandler) updateBox(w http.ResponseWriter, r *http.Request) {
	var req updateBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "invalid request body", nil)
		return
	}

	boxID := chi.URLParam(r, "box_id")
	var err error
	if req.Lock {
		err = h.ctrl.LockBox(r.Context(), boxID)
	} else {
		err = h.ctrl.UnlockBox(r.Context(), boxID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) listUploads(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ctrl.ListFileIDs(r.Context(), chi.URLParam(r, "box_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	api.WriteJSON(w, http.StatusOK, map[string][]string{"file_ids": ids})
}

func (h *RESTHandler) createUpload(w http.ResponseWriter, r *http.Request) {
	var req createUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Alias == "" || req.Size <= 0 {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation,
			"alias and a positive size are required", nil)
		return
	}

	fileID, err := h.ctrl.InitiateFileUpload(r.Context(), chi.URLParam(r, "box_id"), req.Alias, req.Checksum, req.Size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"file_id": fileID})
}

func (h *RESTHandler) partURL(w http.ResponseWriter, r *http.Request) {
	partNo, err := strconv.ParseInt(chi.URLParam(r, "part_no"), 10, 32)
	if err != nil || partNo < 1 {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation, "part_no must be a positive integer", nil)
		return
	}

	url, err := h.ctrl.GetPartUploadURL(r.Context(),
		chi.URLParam(r, "box_id"), chi.URLParam(r, "file_id"), int32(partNo))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *RESTHandler) completeUpload(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.CompleteFileUpload(r.Context(), chi.URLParam(r, "box_id"), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) removeUpload(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.RemoveFileUpload(r.Context(), chi.URLParam(r, "box_id"), chi.URLParam(r, "file_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps the controller's error domain to stable HTTP statuses and
// exception ids.
func (h *RESTHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		aliasErr      *storage.UnknownAliasError
		boxNotFound   *BoxNotFoundError
		locked        *LockedBoxError
		incomplete    *IncompleteUploadsError
		aliasDupe     *FileUploadAlreadyExistsError
		uploadMissing *FileUploadNotFoundError
		orphaned      *OrphanedMultipartUploadError
		s3Missing     *S3UploadNotFoundError
		completion    *UploadCompletionError
		abort         *storage.AbortError
	)

	switch {
	case errors.As(err, &aliasErr):
		api.WriteError(w, http.StatusBadRequest, api.ExcNoSuchStorage, err.Error(),
			map[string]any{"storage_alias": aliasErr.Alias})
	case errors.As(err, &boxNotFound):
		api.WriteError(w, http.StatusNotFound, api.ExcBoxNotFound, err.Error(),
			map[string]any{"box_id": boxNotFound.BoxID})
	case errors.As(err, &incomplete):
		api.WriteError(w, http.StatusConflict, api.ExcIncompleteUploads, err.Error(),
			map[string]any{"box_id": incomplete.BoxID, "file_ids": incomplete.FileIDs})
	case errors.As(err, &locked):
		api.WriteError(w, http.StatusConflict, api.ExcLockedBox, err.Error(),
			map[string]any{"box_id": locked.BoxID})
	case errors.As(err, &aliasDupe):
		api.WriteError(w, http.StatusConflict, api.ExcFileUploadAlreadyExists, err.Error(),
			map[string]any{"box_id": aliasDupe.BoxID, "alias": aliasDupe.Alias})
	case errors.As(err, &orphaned):
		api.WriteError(w, http.StatusConflict, api.ExcMultipartUploadDupe, err.Error(),
			map[string]any{"file_id": orphaned.FileID, "bucket": orphaned.Bucket})
	case errors.As(err, &uploadMissing):
		api.WriteError(w, http.StatusNotFound, api.ExcFileUploadNotFound, err.Error(),
			map[string]any{"box_id": uploadMissing.BoxID, "file_id": uploadMissing.FileID})
	case errors.As(err, &s3Missing):
		api.WriteError(w, http.StatusNotFound, api.ExcMultipartUploadNotFound, err.Error(),
			map[string]any{"file_id": s3Missing.FileID})
	case errors.As(err, &completion):
		api.WriteError(w, http.StatusInternalServerError, api.ExcUploadCompletionError, err.Error(),
			map[string]any{"file_id": completion.FileID})
	case errors.As(err, &abort):
		api.WriteError(w, http.StatusInternalServerError, api.ExcUploadAbortError, err.Error(),
			map[string]any{"upload_id": abort.UploadID})
	default:
		logger.ErrorCtx(r.Context(), "upload request failed", logger.Err(err))
		api.WriteInternalError(w)
	}
}
