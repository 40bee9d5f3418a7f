package gqlrequest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGET(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, `/graphql?query=%7B+listCount+%7D&operationName=Count&variables=%7B%22n%22%3A1%7D`, nil)

	got, err := Decode(req)
	require.NoError(t, err)
	assert.Equal(t, "{ listCount }", got.Query)
	assert.Equal(t, "Count", got.OperationName)
	assert.EqualValues(t, 1, got.Variables["n"])
	assert.Equal(t, len(got.Query), got.Size)
}

func TestDecodePOSTRestoresBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantQuery   string
		wantOpName  string
	}{
		{
			name:        "json",
			contentType: "application/json",
			body:        `{"query":"query Lists { listList { title } }","operationName":"Lists","variables":{"limit":2}}`,
			wantQuery:   "query Lists { listList { title } }",
			wantOpName:  "Lists",
		},
		{
			name:        "json with charset",
			contentType: "application/json; charset=utf-8",
			body:        `{"query":"{ listCount }"}`,
			wantQuery:   "{ listCount }",
		},
		{
			name:        "graphql document",
			contentType: "application/graphql",
			body:        "{ listCount }",
			wantQuery:   "{ listCount }",
		},
		{
			name:        "empty body",
			contentType: "application/json",
			body:        "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			got, err := Decode(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got.Query)
			assert.Equal(t, tt.wantOpName, got.OperationName)

			rest, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(rest))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	req.Header.Set("Content-Type", "application/json")
	_, err := Decode(req)
	assert.ErrorContains(t, err, "invalid GraphQL payload")

	_, err = Decode(httptest.NewRequest(http.MethodPut, "/graphql", nil))
	assert.ErrorIs(t, err, ErrUnsupportedMethod)

	_, err = Decode(httptest.NewRequest(http.MethodGet, "/graphql?query=x&variables=nope", nil))
	assert.ErrorContains(t, err, "invalid variables")
}
