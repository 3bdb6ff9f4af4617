// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mirrorx/vault/internal/models"
)

type ctxKey string

const sessionKey ctxKey = "session"

// Authenticator resolves a bearer token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// BearerAuth is a middleware that requires a valid session token.
//
// The token is read from the "Authorization: Bearer <token>" header. Browsers
// cannot set headers on EventSource requests, so the access_token query
// parameter is accepted as a fallback.
//
// On success the user id and session id are stored in the request context.
func BearerAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			sess, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				unauthorized(w, "invalid or expired session")
				return
			}
			ctx := models.WithUserID(r.Context(), sess.UserID)
			ctx = context.WithValue(ctx, sessionKey, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext extracts the authenticated user id from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	return models.UserIDFromContext(ctx)
}

// GetSessionIDFromContext extracts the session id of the current request.
func GetSessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionKey).(string); ok {
		return s
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mirrorx"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
