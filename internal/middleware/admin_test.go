package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminToken(t *testing.T) {
	_, err := AdminToken("  ", nil)
	require.Error(t, err)

	mw, err := AdminToken("s3cret", nil)
	require.NoError(t, err)
	var got AuthContext
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = AuthFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", header: AdminTokenHeader, value: "nope", wantStatus: http.StatusUnauthorized},
		{name: "admin header", header: AdminTokenHeader, value: "s3cret", wantStatus: http.StatusOK},
		{name: "bearer", header: "Authorization", value: "Bearer s3cret", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = AuthContext{}
			req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "admin_token", got.Method)
			}
		})
	}
}
