// Package apierrors defines the error kinds business logic returns and how
// they map onto HTTP status codes.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FieldError names one failing request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when required input is missing or malformed
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError is returned for illegal state changes
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NotFoundError is returned when a referenced record does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// UpstreamUnavailableError wraps a failed call to an external service.
// Callers normally absorb it and fall back to a default.
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// InternalError wraps a persistence or transaction failure
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Validation builds a ValidationError for a single field
func Validation(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Conflict builds a ConflictError
func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Internal wraps err as an InternalError, passing through errors that
// already carry a kind.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if StatusCode(err) != http.StatusInternalServerError {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// StatusCode maps an error to the HTTP status it should be reported with
func StatusCode(err error) int {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		ue *UpstreamUnavailableError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
