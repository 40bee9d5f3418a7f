// Package middleware holds the HTTP policies wrapped around the GraphQL
// handler: request logging, CORS, rate limiting, bearer authentication,
// database roles, admin tokens and GraphQL request instrumentation.
package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// statusRecorder remembers the status code written and, when capture is
// set, a copy of the body.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
	capture bool
	body    bytes.Buffer
}

func newStatusRecorder(w http.ResponseWriter, capture bool) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK, capture: capture}
}

func (rw *statusRecorder) WriteHeader(status int) {
	if rw.written {
		return
	}
	rw.status = status
	rw.written = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.capture {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps streaming responses working behind the recorder.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// writeGraphQLError answers with a GraphQL shaped error body.
func writeGraphQLError(w http.ResponseWriter, status int, message, code string) {
	payload := map[string]any{
		"errors": []map[string]any{{
			"message":    message,
			"extensions": map[string]any{"code": code},
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// hasGraphQLErrors reports whether body is a GraphQL response with a
// non-empty errors list.
func hasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
