package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmony-graphql/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("outer"), nil, mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestHasGraphQLErrors(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{body: `{"data":{"listCount":1}}`, want: false},
		{body: `{"data":null,"errors":[{"message":"boom"}]}`, want: true},
		{body: `{"errors":[]}`, want: false},
		{body: `{"errors":null}`, want: false},
		{body: `not json`, want: false},
		{body: ``, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hasGraphQLErrors([]byte(tt.body)), tt.body)
	}
}

func TestRequestLogging(t *testing.T) {
	var gotID string
	var gotLogger *logging.Logger
	h := RequestLogging(logging.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = logging.GetRequestID(r.Context())
		gotLogger = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, gotID)
	assert.Equal(t, gotID, rec.Header().Get(RequestIDHeader))
	assert.NotNil(t, gotLogger)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", gotID)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}
