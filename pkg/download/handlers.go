package download

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/auth"
)

// RESTHandler exposes the GA4GH DRS surface. Every route requires a
// work-order token of type "download" bound to the object id in the path;
// the binding is enforced before any registry access.
type RESTHandler struct {
	svc      *Service
	verifier *auth.Verifier
}

// NewRESTHandler creates the DRS HTTP surface.
func NewRESTHandler(svc *Service, verifier *auth.Verifier) *RESTHandler {
	return &RESTHandler{svc: svc, verifier: verifier}
}

// Mount registers the DRS routes on the router.
func (h *RESTHandler) Mount(r chi.Router) {
	r.Route("/ga4gh/drs/v1/objects/{object_id}", func(r chi.Router) {
		r.Use(auth.RequireWorkOrder(h.verifier, auth.WorkTypeDownload, "object_id"))
		r.Get("/", h.getObject)
		r.Get("/envelopes", h.getEnvelope)
	})
}

func (h *RESTHandler) getObject(w http.ResponseWriter, r *http.Request) {
	access, err := h.svc.AccessDrsObject(r.Context(), chi.URLParam(r, "object_id"))
	if err != nil {
		var retry *RetryAccessLaterError
		if errors.As(err, &retry) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.RetryAfter.Seconds()))))
			w.WriteHeader(http.StatusAccepted)
			return
		}
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, private", int(access.URLMaxAge.Seconds())))
	api.WriteJSON(w, http.StatusOK, access.Object)
}

func (h *RESTHandler) getEnvelope(w http.ResponseWriter, r *http.Request) {
	claims := auth.WorkOrderFrom(r.Context())
	recipientKey, err := base64.StdEncoding.DecodeString(claims.UserPublicKey)
	if err != nil || len(recipientKey) == 0 {
		api.WriteError(w, http.StatusBadRequest, api.ExcValidation,
			"token carries no valid recipient public key", nil)
		return
	}

	envelope, err := h.svc.ServeEnvelope(r.Context(), chi.URLParam(r, "object_id"), recipientKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{
		"content": base64.StdEncoding.EncodeToString(envelope),
	})
}

func (h *RESTHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *DrsObjectNotFoundError
		noEnvelope *EnvelopeNotFoundError
		apiErr     *APICommunicationError
	)

	switch {
	case errors.As(err, &notFound):
		api.WriteError(w, http.StatusNotFound, api.ExcDrsObjectNotFound, err.Error(),
			map[string]any{"object_id": notFound.ObjectID})
	case errors.As(err, &noEnvelope):
		api.WriteError(w, http.StatusNotFound, api.ExcEnvelopeNotFound, err.Error(), nil)
	case errors.As(err, &apiErr):
		logger.ErrorCtx(r.Context(), "key store request failed", logger.Err(err))
		api.WriteError(w, http.StatusBadGateway, api.ExcAPICommunication,
			"key store is unavailable", nil)
	default:
		logger.ErrorCtx(r.Context(), "download request failed", logger.Err(err))
		api.WriteInternalError(w)
	}
}
