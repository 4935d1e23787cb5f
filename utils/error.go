package utils

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrorRecordNotFound = errors.New("record not found")

// FieldError carries enough detail for a client to self-correct
// without a second round trip.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError: malformed input, always recoverable client-side (400).
type ValidationError struct {
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(message string, details ...FieldError) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}

// ConflictError: invariant violation, e.g. duplicate active visit (409).
type ConflictError struct {
	Message string `json:"message"`
}

func (e *ConflictError) Error() string { return e.Message }

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// NotFoundError: unknown or unauthorized resource (404).
// Tenant-scoped misses are reported the same way as true misses.
type NotFoundError struct {
	Resource string `json:"resource"`
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

// IncompleteVisitError: the completion policy gate (400 with structured detail).
type IncompleteVisitError struct {
	Missing []string `json:"missing"`
}

func (e *IncompleteVisitError) Error() string {
	return fmt.Sprintf("visit is incomplete: %d required activities missing", len(e.Missing))
}

// DependencyUnavailableError: image/fraud service timeout or failure.
// Never escalated to the caller as a hard failure; the workflow proceeds
// degraded and the error is only logged.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	if e.Err == nil {
		return e.Dependency + " unavailable"
	}
	return e.Dependency + " unavailable: " + e.Err.Error()
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }

// StorageError: transactional failure (500). The originating transaction
// must have been rolled back before this is returned.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage failure"
	}
	return "storage failure: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// HTTPStatus maps the error taxonomy 1:1 to HTTP status codes.
func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		conflictErr   *ConflictError
		notFoundErr   *NotFoundError
		incompleteErr *IncompleteVisitError
		storageErr    *StorageError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &incompleteErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &notFoundErr), errors.Is(err, ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorPayload renders an error as a JSON-able body with its structured detail.
func ErrorPayload(err error) map[string]interface{} {
	body := map[string]interface{}{"error": err.Error()}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) && len(validationErr.Details) > 0 {
		body["details"] = validationErr.Details
	}
	var incompleteErr *IncompleteVisitError
	if errors.As(err, &incompleteErr) {
		body["missing"] = incompleteErr.Missing
	}
	return body
}
