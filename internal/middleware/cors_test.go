package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	base := CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposeHeaders:  []string{"X-Request-ID"},
		MaxAge:         600,
	}

	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods string
		wantCreds   string
	}{
		{name: "no origin", cfg: base, method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "allowed origin", cfg: base, method: http.MethodPost, origin: "https://app.example.com", wantStatus: http.StatusOK, wantOrigin: "https://app.example.com"},
		{name: "unknown origin", cfg: base, method: http.MethodPost, origin: "https://evil.example.com", wantStatus: http.StatusOK},
		{
			name: "preflight", cfg: base, method: http.MethodOptions, origin: "https://app.example.com",
			wantStatus: http.StatusNoContent, wantOrigin: "https://app.example.com", wantMethods: "GET, POST, OPTIONS",
		},
		{name: "preflight from unknown origin", cfg: base, method: http.MethodOptions, origin: "https://evil.example.com", wantStatus: http.StatusNoContent},
		{
			name: "wildcard never grants credentials",
			cfg: CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true},
			method: http.MethodGet, origin: "https://any.example.com", wantStatus: http.StatusOK, wantOrigin: "*",
		},
		{
			name: "credentials for listed origin",
			cfg: CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true},
			method: http.MethodGet, origin: "https://app.example.com", wantStatus: http.StatusOK,
			wantOrigin: "https://app.example.com", wantCreds: "true",
		},
		{name: "disabled", cfg: CORSConfig{AllowedOrigins: []string{"*"}}, method: http.MethodGet, origin: "https://x.example.com", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/graphql", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			CORS(tt.cfg)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
