package httpx

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// userIDHeader carries the authenticated user's id, set by the gateway in
// front of this service. Authentication itself happens upstream.
const userIDHeader = "X-User-ID"

// callbackTokenHeader carries the shared secret the planner echoes back when
// delivering a result callback.
const callbackTokenHeader = "X-Planner-Token" //nolint:gosec // header name, not a credential

// RequestLogger logs each request with method, path, status and duration.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Recoverer converts handler panics into 500 responses instead of killing
// the connection.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "handler panic", "panic", rec, "path", r.URL.Path)
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal",
						Err:     errors.New("internal error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// UserID extracts the authenticated user id from the request, or "" when
// the header is absent or not a UUID.
func UserID(r *http.Request) string {
	id := r.Header.Get(userIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// RequireUser rejects requests without a valid user id header.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r) == "" {
			WriteError(w, ErrorParams{
				Code:    http.StatusUnauthorized,
				ErrCode: "unauthorized",
				Err:     errors.New("missing or invalid user id"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCallbackToken authenticates planner callbacks with the shared
// secret, compared in constant time.
func RequireCallbackToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(callbackTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "unauthorized",
					Err:     errors.New("invalid callback token"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
