package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"harmony-graphql/internal/logging"
	"harmony-graphql/internal/observability"
)

// AuthContext describes the authenticated caller.
type AuthContext struct {
	Method   string
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

type authKey struct{}

// WithAuthContext stores auth in ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authKey{}, auth)
}

// AuthFromContext returns the caller stored by Authenticate.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authKey{}).(AuthContext)
	return auth, ok
}

// TokenVerifier checks a bearer token and describes its holder.
type TokenVerifier interface {
	// Method names the verifier in logs and metrics.
	Method() string
	Verify(ctx context.Context, token string) (AuthContext, error)
}

// Reasons a token is rejected.
const (
	ReasonMissingToken  = "missing_token"
	ReasonInvalidToken  = "invalid_token"
	ReasonExpired       = "expired"
	ReasonNotYetValid   = "not_yet_valid"
	ReasonInvalidClaims = "invalid_claims"
)

// TokenError is a rejected token together with the reason reported to
// metrics.
type TokenError struct {
	Reason string
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

func rejectReason(err error) string {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr.Reason
	}
	return ReasonInvalidToken
}

// Authenticate requires a bearer token accepted by verifier. A nil verifier
// disables authentication.
func Authenticate(verifier TokenVerifier, metrics *observability.SecurityMetrics) Middleware {
	if verifier == nil {
		return passthrough
	}
	method := verifier.Method()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				metrics.RecordAuth(ctx, method, ReasonMissingToken)
				logger.Warn("authentication failed: missing bearer token", slog.String("path", r.URL.Path))
				writeUnauthorized(w, "missing bearer token")
				return
			}

			auth, err := verifier.Verify(ctx, token)
			if err != nil {
				reason := rejectReason(err)
				metrics.RecordAuth(ctx, method, reason)
				logger.Warn("authentication failed",
					slog.String("method", method),
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w, "invalid token")
				return
			}
			auth.Method = method
			metrics.RecordAuth(ctx, method, "")

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.method", method),
					attribute.String("auth.subject", auth.Subject),
					attribute.String("auth.issuer", auth.Issuer),
				)
			}
			ctx = logging.WithLogger(ctx, logger.WithFields(slog.String("subject", auth.Subject)))
			next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, auth)))
		})
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeGraphQLError(w, http.StatusUnauthorized, message, "UNAUTHENTICATED")
}
