package dto

import "fmt"

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInternalError    = "internal_error"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

func newAPIError(code, format string, args ...any) APIError {
	return APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing resource by kind and ID.
func NotFoundError(kind, id string) APIError {
	return newAPIError(ErrCodeNotFound, "%s %q not found", kind, id)
}

// BadQueryError reports an unusable query parameter.
func BadQueryError(param, reason string) APIError {
	return newAPIError(ErrCodeBadRequest, "invalid %s: %s", param, reason)
}

// InternalError hides the underlying failure from the client.
func InternalError() APIError {
	return newAPIError(ErrCodeInternalError, "an internal error occurred")
}

// UnavailableError reports a feature the configured storage driver does not provide.
func UnavailableError(feature string) APIError {
	return newAPIError(ErrCodeUnavailable, "%s is not kept by this storage driver", feature)
}

// MethodNotAllowedError is returned for writes; the API is read-only.
func MethodNotAllowedError(method string) APIError {
	return newAPIError(ErrCodeMethodNotAllowed, "%s is not supported, the API is read-only", method)
}
