package remote

import (
	"errors"
	"fmt"
)

// Server error codes carried by ServerError.
const (
	CodeNotFound      = "M_NOT_FOUND"
	CodeForbidden     = "M_FORBIDDEN"
	CodeUnknown       = "M_UNKNOWN"
	CodeLimitExceeded = "M_LIMIT_EXCEEDED"
)

// ServerError is a typed error returned by homeserver-facing services.
type ServerError struct {
	// Code is the server-assigned error code.
	Code string

	// Message is the human-readable description.
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// IsUnrecoverable reports whether the error means the requested target can
// never be resolved: the caller should discard it rather than retry.
func IsUnrecoverable(err error) bool {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		return false
	}
	switch serverErr.Code {
	case CodeNotFound, CodeForbidden, CodeUnknown:
		return true
	}
	return false
}
