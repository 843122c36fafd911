package shared

// ErrorKind classifies a domain error for callers that need to decide on
// retry behavior or transport mapping without parsing error codes.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindConflict        ErrorKind = "CONFLICT"
	KindRateLimit       ErrorKind = "RATE_LIMIT"
	KindExternalService ErrorKind = "EXTERNAL_SERVICE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind         `json:"kind"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// WithDetail attaches a field-level detail and returns a copy of the error.
// The receiver is not mutated so the package-level sentinels stay constant.
func (e *DomainError) WithDetail(field, message string) *DomainError {
	clone := *e
	clone.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[field] = message
	return &clone
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// NewValidationError creates a Validation error with a field-level detail
func NewValidationError(code, message, field string) *DomainError {
	return NewDomainError(KindValidation, code, message).WithDetail(field, message)
}

// NewConflictError creates a Conflict error
func NewConflictError(code, message string) *DomainError {
	return NewDomainError(KindConflict, code, message)
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(KindNotFound, "NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError(KindConflict, "ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError(KindValidation, "INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(KindConflict, "CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError(KindConflict, "INVALID_STATE", "Operation not allowed in current state")
	ErrMissingTenant       = NewDomainError(KindValidation, "MISSING_TENANT", "Tenant context is required")
	ErrRateLimited         = NewDomainError(KindRateLimit, "RATE_LIMITED", "Too many requests")
	ErrExternalService     = NewDomainError(KindExternalService, "EXTERNAL_SERVICE", "Upstream dependency failed")
)

// KindOf returns the ErrorKind of err, or KindExternalService when err is not
// a DomainError. Unexpected errors are treated as dependency failures at the
// boundary rather than leaking internals to callers.
func KindOf(err error) ErrorKind {
	if de, ok := err.(*DomainError); ok {
		return de.Kind
	}
	return KindExternalService
}
