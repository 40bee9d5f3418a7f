package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"harmony-graphql/internal/observability"
)

// AdminTokenHeader may carry the admin token instead of Authorization.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken protects admin endpoints with a shared token, sent either as a
// bearer token or in AdminTokenHeader.
func AdminToken(token string, metrics *observability.SecurityMetrics) (Middleware, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	expected := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(AdminTokenHeader))
			if provided == "" {
				provided = bearerToken(r.Header.Get("Authorization"))
			}
			digest := sha256.Sum256([]byte(provided))
			ok := provided != "" && subtle.ConstantTimeCompare(digest[:], expected[:]) == 1
			metrics.RecordAdminRequest(r.Context(), r.URL.Path, ok)
			if !ok {
				writeUnauthorized(w, "unauthorized")
				return
			}
			ctx := WithAuthContext(r.Context(), AuthContext{Method: "admin_token", Subject: "admin"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
