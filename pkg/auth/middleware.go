package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/api"
)

type contextKey struct{ name string }

var (
	workOrderKey = contextKey{"work-order-claims"}
	resourceKey  = contextKey{"resource-claims"}
)

// WorkOrderFrom returns the work-order claims attached by RequireWorkOrder.
func WorkOrderFrom(ctx context.Context) *WorkOrderClaims {
	claims, _ := ctx.Value(workOrderKey).(*WorkOrderClaims)
	return claims
}

// ResourceFrom returns the UOS/WPS claims attached by RequireResourceToken.
func ResourceFrom(ctx context.Context) *ResourceClaims {
	claims, _ := ctx.Value(resourceKey).(*ResourceClaims)
	return claims
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

// RequireWorkOrder guards a download endpoint. The token must carry
// type=workType and its file_id claim must equal the URL parameter; the
// check runs before any data access, so a mismatched token never touches
// the registry.
func RequireWorkOrder(v *Verifier, workType, fileIDParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				api.WriteError(w, http.StatusUnauthorized, api.ExcUnauthorized, "missing bearer token", nil)
				return
			}

			claims, err := v.VerifyWorkOrder(token)
			if err != nil {
				logger.DebugCtx(r.Context(), "work-order token rejected", logger.Err(err))
				api.WriteError(w, http.StatusUnauthorized, api.ExcUnauthorized, "invalid work-order token", nil)
				return
			}

			pathID := chi.URLParam(r, fileIDParam)
			if claims.Type != workType || claims.FileID != pathID {
				api.WriteError(w, http.StatusForbidden, api.ExcWrongFileAuthorization,
					"token not valid for this file", map[string]any{"file_id": pathID})
				return
			}

			lc := logger.FromContext(r.Context()).WithFileID(claims.FileID)
			ctx := logger.WithContext(r.Context(), lc)
			ctx = context.WithValue(ctx, workOrderKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireDataHubToken guards an ingest endpoint. Any valid token from a
// configured data hub passes; the payload itself carries the file identity.
func RequireDataHubToken(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				api.WriteError(w, http.StatusUnauthorized, api.ExcUnauthorized, "missing bearer token", nil)
				return
			}
			if err := v.VerifyDataHub(token); err != nil {
				logger.DebugCtx(r.Context(), "data hub token rejected", logger.Err(err))
				api.WriteError(w, http.StatusUnauthorized, api.ExcUnauthorized, "invalid token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireResourceToken guards an upload endpoint with a UOS or WPS token.
// action is the required token type. resourceParam names the URL parameter
// the token must be bound to ("box_id" or "file_id"); empty means the
// action addresses no existing resource (box creation).
func RequireResourceToken(v *Verifier, action, resourceParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				api.WriteError(w, http.StatusUnauthorized, api.ExcUnauthorized, "missing bearer token", nil)
				return
			}

			claims, err := v.VerifyResource(token)
			if err != nil {
				logger.DebugCtx(r.Context(), "resource token rejected", logger.Err(err))
				api.WriteError(w, http.StatusUnauthorized, api.ExcUnauthorized, "invalid token", nil)
				return
			}

			if claims.Type != action {
				api.WriteError(w, http.StatusForbidden, api.ExcWrongFileAuthorization,
					"token not valid for this action", map[string]any{"action": action})
				return
			}

			if resourceParam != "" {
				pathID := chi.URLParam(r, resourceParam)
				bound := claims.FileID
				if resourceParam == "box_id" {
					bound = claims.BoxID
				}
				if bound != pathID {
					api.WriteError(w, http.StatusForbidden, api.ExcWrongFileAuthorization,
						"token not valid for this resource", map[string]any{resourceParam: pathID})
					return
				}
			}

			ctx := context.WithValue(r.Context(), resourceKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
