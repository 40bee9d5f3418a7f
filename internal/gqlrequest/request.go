// Package gqlrequest decodes GraphQL HTTP payloads and derives the metadata
// the middleware chain logs, limits and measures.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrUnsupportedMethod is returned for requests that cannot carry a GraphQL
// operation.
var ErrUnsupportedMethod = errors.New("GraphQL requests must use GET or POST")

// Request is a decoded GraphQL HTTP payload.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`

	Method string `json:"-"`
	// Size is the length of the query document in bytes.
	Size int
}

// Decode reads the GraphQL payload of r. The body is restored so the
// GraphQL handler can read it again.
func Decode(r *http.Request) (Request, error) {
	if r == nil {
		return Request{}, fmt.Errorf("request is nil")
	}
	req := Request{Method: r.Method}

	switch r.Method {
	case http.MethodGet:
		params := r.URL.Query()
		req.Query = params.Get("query")
		req.OperationName = params.Get("operationName")
		if raw := params.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return req, fmt.Errorf("invalid variables: %w", err)
			}
		}
	case http.MethodPost:
		if r.Body == nil {
			break
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err := decodeBody(&req, r.Header.Get("Content-Type"), body); err != nil {
			return req, err
		}
	default:
		return req, ErrUnsupportedMethod
	}

	req.Size = len(req.Query)
	return req, nil
}

func decodeBody(req *Request, contentType string, body []byte) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	if mediaType == "application/graphql" {
		req.Query = string(body)
		return nil
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return fmt.Errorf("invalid GraphQL payload: %w", err)
	}
	return nil
}
