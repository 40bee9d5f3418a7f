package resolver

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"

	"harmony-graphql/internal/adapter"
)

// ResolverError is the error surfaced to GraphQL when a scope, adapter call
// or transform fails. It carries a status and the stack at the point the
// failure was captured.
type ResolverError struct {
	Message string
	Name    string
	Status  int
	Stack   string
	Err     error
}

func (e *ResolverError) Error() string {
	return e.Message
}

func (e *ResolverError) Unwrap() error {
	return e.Err
}

// Extensions exposes the error details in the GraphQL response.
func (e *ResolverError) Extensions() map[string]interface{} {
	extensions := map[string]interface{}{
		"code":   errorCode(e.Status),
		"status": e.Status,
		"name":   e.Name,
	}
	if e.Stack != "" {
		extensions["exception"] = map[string]interface{}{
			"stacktrace": strings.Split(strings.TrimSpace(e.Stack), "\n"),
		}
	}
	return extensions
}

// NewResolverError wraps err. An error that already is a ResolverError is
// returned unchanged so the original stack survives nested calls.
func NewResolverError(err error) error {
	if err == nil {
		return nil
	}
	var existing *ResolverError
	if errors.As(err, &existing) {
		return err
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return err
	}
	return &ResolverError{
		Message: err.Error(),
		Name:    errorName(err),
		Status:  errorStatus(err),
		Stack:   string(debug.Stack()),
		Err:     err,
	}
}

// ValidationError reports a request that can never succeed, such as a
// reversed reference to a model the server does not know.
type ValidationError struct {
	Message string
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":   "GRAPHQL_VALIDATION_FAILED",
		"status": http.StatusBadRequest,
		"name":   "ValidationError",
	}
}

func errorStatus(err error) int {
	var withStatus interface{ Status() int }
	if errors.As(err, &withStatus) {
		return withStatus.Status()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func errorName(err error) string {
	var status *adapter.StatusError
	switch {
	case errors.As(err, &status):
		return "StatusError"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.Is(err, context.Canceled):
		return "CanceledError"
	}
	return "Error"
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_USER_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	}
	return "INTERNAL_SERVER_ERROR"
}
