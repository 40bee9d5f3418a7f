package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signHS(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestJWTVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(JWTConfig{Secret: testSecret, Issuer: "https://auth.example.com", Audience: "harmony", Leeway: time.Second})
	require.NoError(t, err)
	return v
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":     "user-1",
		"iss":     "https://auth.example.com",
		"aud":     "harmony",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
		"db_role": "reader",
	}
}

func TestJWTVerifier(t *testing.T) {
	v := newTestJWTVerifier(t)

	with := func(key string, value any) jwt.MapClaims {
		c := validClaims()
		c[key] = value
		return c
	}

	tests := []struct {
		name       string
		token      string
		wantReason string
	}{
		{name: "valid", token: signHS(t, jwt.SigningMethodHS256, testSecret, validClaims())},
		{name: "expired", token: signHS(t, jwt.SigningMethodHS256, testSecret, with("exp", time.Now().Add(-time.Hour).Unix())), wantReason: ReasonExpired},
		{name: "not yet valid", token: signHS(t, jwt.SigningMethodHS256, testSecret, with("nbf", time.Now().Add(time.Hour).Unix())), wantReason: ReasonNotYetValid},
		{name: "wrong secret", token: signHS(t, jwt.SigningMethodHS256, "another-secret-another-secret-xx", validClaims()), wantReason: ReasonInvalidToken},
		{name: "wrong algorithm", token: signHS(t, jwt.SigningMethodHS512, testSecret, validClaims()), wantReason: ReasonInvalidToken},
		{name: "wrong issuer", token: signHS(t, jwt.SigningMethodHS256, testSecret, with("iss", "https://other.example.com")), wantReason: ReasonInvalidClaims},
		{name: "wrong audience", token: signHS(t, jwt.SigningMethodHS256, testSecret, with("aud", "billing")), wantReason: ReasonInvalidClaims},
		{name: "garbage", token: "not.a.token", wantReason: ReasonInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := v.Verify(context.Background(), tt.token)
			if tt.wantReason == "" {
				require.NoError(t, err)
				assert.Equal(t, "user-1", auth.Subject)
				assert.Equal(t, "https://auth.example.com", auth.Issuer)
				assert.Equal(t, []string{"harmony"}, auth.Audience)
				assert.Equal(t, "reader", auth.Claims["db_role"])
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantReason, rejectReason(err))
		})
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier(JWTConfig{})
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	v := newTestJWTVerifier(t)
	var got AuthContext
	h := Authenticate(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwdw==", wantStatus: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "valid", header: "bearer " + signHS(t, jwt.SigningMethodHS256, testSecret, validClaims()), wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = AuthContext{}
			req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
				return
			}
			assert.Equal(t, "jwt", got.Method)
			assert.Equal(t, "user-1", got.Subject)
		})
	}
}

func TestAuthenticateWithoutVerifier(t *testing.T) {
	rec := httptest.NewRecorder()
	Authenticate(nil, nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckTimeClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	skew := time.Minute

	tests := []struct {
		name   string
		claims map[string]any
		want   string
	}{
		{name: "no claims", claims: map[string]any{}},
		{name: "expired within skew", claims: map[string]any{"exp": float64(now.Add(-30 * time.Second).Unix())}},
		{name: "expired beyond skew", claims: map[string]any{"exp": float64(now.Add(-2 * time.Minute).Unix())}, want: ReasonExpired},
		{name: "nbf within skew", claims: map[string]any{"nbf": float64(now.Add(30 * time.Second).Unix())}},
		{name: "nbf beyond skew", claims: map[string]any{"nbf": float64(now.Add(2 * time.Minute).Unix())}, want: ReasonNotYetValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTimeClaims(tt.claims, now, skew)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			var tokenErr *TokenError
			require.True(t, errors.As(err, &tokenErr))
			assert.Equal(t, tt.want, tokenErr.Reason)
		})
	}
}

func TestNewOIDCVerifierValidatesIssuer(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{Audience: "harmony"}, nil)
	assert.ErrorContains(t, err, "issuer/audience")

	_, err = NewOIDCVerifier(context.Background(), OIDCConfig{IssuerURL: "http://auth.example.com", Audience: "harmony"}, nil)
	assert.ErrorContains(t, err, "https")
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("  bearer   abc "))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken("Token abc"))
}
