package dto

import (
	"net/http"

	"github.com/billcraft/backend/internal/domain/shared"
)

// Transport-level error codes. Domain errors carry their own codes; these
// cover failures that never reach the domain layer.
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidJSON is used when the request body cannot be parsed
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeInvalidID is used when a path parameter is not a valid UUID
	ErrCodeInvalidID = "INVALID_ID"
	// ErrCodeMissingTenant is used when tenant identification is absent
	ErrCodeMissingTenant = "MISSING_TENANT"
	// ErrCodeInternal is used for unexpected server errors
	ErrCodeInternal = "INTERNAL_ERROR"
)

// kindHTTPStatus maps domain error kinds to HTTP status codes
var kindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindValidation:      http.StatusBadRequest,
	shared.KindNotFound:        http.StatusNotFound,
	shared.KindConflict:        http.StatusConflict,
	shared.KindRateLimit:       http.StatusTooManyRequests,
	shared.KindExternalService: http.StatusBadGateway,
}

// StatusForKind returns the HTTP status code for a domain error kind.
// Unknown kinds map to 500 so a new kind never silently succeeds.
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := kindHTTPStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForError resolves the HTTP status for any error. Non-domain errors
// are treated as internal failures rather than leaking upstream semantics.
func StatusForError(err error) int {
	if de, ok := err.(*shared.DomainError); ok {
		return StatusForKind(de.Kind)
	}
	return http.StatusInternalServerError
}
