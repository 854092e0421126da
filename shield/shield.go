// CLAUDE:SUMMARY HTTP middleware stack for the flowkeeper API: HEAD->GET, security headers, request ids with a per-request logger.
// Package shield provides the HTTP middleware applied in front of the
// flowkeeper API.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(logger, idgen.UUIDv7()) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/flowkeeper/idgen"
	"github.com/hazyhaar/flowkeeper/kit"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultAPIStack returns the middleware of the JSON API, outermost first:
// HeadToGet, SecurityHeaders(APIHeaders()), RequestID.
func DefaultAPIStack(logger *slog.Logger, ids idgen.Generator) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		RequestID(logger, ids),
	}
}

// HeadToGet converts HEAD requests to GET so that routes registered with
// r.Get() answer HEAD too. net/http drops the body of HEAD responses.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID reuses the caller's X-Request-ID or assigns one from ids. The
// id is echoed in the response, stored with kit.WithRequestID and attached
// to a per-request logger.
func RequestID(logger *slog.Logger, ids idgen.Generator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = ids()
			}
			w.Header().Set(RequestIDHeader, id)

			reqLogger := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			reqLogger.Debug("request")

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
