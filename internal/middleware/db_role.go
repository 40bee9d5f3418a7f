package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/observability"
)

// DBRoleConfig picks the database role a request runs as from a claim of
// its token.
type DBRoleConfig struct {
	ClaimName string
	// AllowedRoles restricts the claim when non-empty.
	AllowedRoles []string
}

type dbRoleKey struct{}

// WithDBRole stores the database role of the request.
func WithDBRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, dbRoleKey{}, role)
}

// DBRoleFromContext returns the role stored by DBRole. Its signature matches
// dbexec.RoleExecutorConfig.RoleFromCtx.
func DBRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(dbRoleKey{}).(string)
	return role, ok && role != ""
}

// DBRole reads the role claim of the authenticated caller. It must run after
// Authenticate.
func DBRole(cfg DBRoleConfig, metrics *observability.SecurityMetrics) Middleware {
	claim := cfg.ClaimName
	if claim == "" {
		claim = "db_role"
	}
	var allowed map[string]bool
	if len(cfg.AllowedRoles) > 0 {
		allowed = make(map[string]bool, len(cfg.AllowedRoles))
		for _, role := range cfg.AllowedRoles {
			allowed[role] = true
		}
	}

	reject := func(w http.ResponseWriter, r *http.Request, status int, reason, message, code string) {
		metrics.RecordRoleRejected(r.Context(), reason)
		logging.FromContext(r.Context()).Warn("database role rejected", slog.String("reason", reason))
		writeGraphQLError(w, status, message, code)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				reject(w, r, http.StatusUnauthorized, "unauthenticated", "missing authentication", "UNAUTHENTICATED")
				return
			}
			raw, ok := auth.Claims[claim]
			if !ok {
				reject(w, r, http.StatusForbidden, "missing_claim", fmt.Sprintf("missing %s claim", claim), "FORBIDDEN")
				return
			}
			role, ok := raw.(string)
			if !ok || role == "" {
				reject(w, r, http.StatusBadRequest, "invalid_claim", fmt.Sprintf("invalid %s claim", claim), "BAD_REQUEST")
				return
			}
			if allowed != nil && !allowed[role] {
				reject(w, r, http.StatusForbidden, "not_allowed", fmt.Sprintf("invalid database role: %s", role), "FORBIDDEN")
				return
			}

			ctx := logging.WithLogger(r.Context(), logging.FromContext(r.Context()).WithFields(slog.String("db_role", role)))
			next.ServeHTTP(w, r.WithContext(WithDBRole(ctx, role)))
		})
	}
}
