package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key"

// newTestIssuer serves OIDC discovery and a JWKS holding key over TLS.
func newTestIssuer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"jwks_uri":                              srv.URL + "/jwks",
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		pub := key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	return srv
}

func signRS(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestOIDCVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuer := newTestIssuer(t, key)

	v, err := NewOIDCVerifier(context.Background(), OIDCConfig{
		IssuerURL:     issuer.URL,
		Audience:      "harmony",
		ClockSkew:     time.Minute,
		SkipTLSVerify: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "oidc", v.Method())

	now := time.Now()
	claims := func(overrides jwt.MapClaims) jwt.MapClaims {
		c := jwt.MapClaims{
			"iss":     issuer.URL,
			"sub":     "user-1",
			"aud":     "harmony",
			"iat":     now.Unix(),
			"exp":     now.Add(time.Hour).Unix(),
			"db_role": "reader",
		}
		for k, val := range overrides {
			c[k] = val
		}
		return c
	}

	auth, err := v.Verify(context.Background(), signRS(t, key, claims(nil)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", auth.Subject)
	assert.Equal(t, issuer.URL, auth.Issuer)
	assert.Equal(t, "reader", auth.Claims["db_role"])

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{name: "wrong audience", token: signRS(t, key, claims(jwt.MapClaims{"aud": "other"})), reason: ReasonInvalidToken},
		{name: "wrong signer", token: signRS(t, other, claims(nil)), reason: ReasonInvalidToken},
		{name: "expired beyond skew", token: signRS(t, key, claims(jwt.MapClaims{"exp": now.Add(-2 * time.Minute).Unix()})), reason: ReasonExpired},
		{name: "not yet valid", token: signRS(t, key, claims(jwt.MapClaims{"nbf": now.Add(5 * time.Minute).Unix()})), reason: ReasonNotYetValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			var tokenErr *TokenError
			require.ErrorAs(t, err, &tokenErr)
			assert.Equal(t, tt.reason, tokenErr.Reason)
		})
	}

	t.Run("expired within skew", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signRS(t, key, claims(jwt.MapClaims{"exp": now.Add(-30 * time.Second).Unix()})))
		assert.NoError(t, err)
	})
}
