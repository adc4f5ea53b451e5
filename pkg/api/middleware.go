package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/metrics"
)

// HeaderCorrelationID carries the correlation id of a request. Incoming
// values are trusted (the services sit behind an authenticating proxy);
// absent ones are generated.
const HeaderCorrelationID = "X-Correlation-ID"

// correlationContext attaches a LogContext with the request's correlation id
// and client IP, and echoes the id back to the caller.
func correlationContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		lc := logger.NewLogContext(correlationID)
		lc.ClientIP = r.RemoteAddr

		w.Header().Set(HeaderCorrelationID, correlationID)
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), lc)))
	})
}

// requestLogger logs one line per request with latency and status, and feeds
// the request duration histogram.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		logger.InfoCtx(r.Context(), "request completed",
			"method", r.Method,
			"route", route,
			logger.KeyStatus, status,
			logger.KeyDurationMs, logger.Duration(start))
	})
}
