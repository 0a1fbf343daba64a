// Package apperr defines the error-kind taxonomy shared across the
// ingestion, graph, search, and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the well-known failure categories a caller can branch on.
type Kind string

const (
	InvalidInput      Kind = "InvalidInput"
	NotFound          Kind = "NotFound"
	Forbidden         Kind = "Forbidden"
	Conflict          Kind = "Conflict"
	Unavailable       Kind = "Unavailable"
	DeadlineExceeded  Kind = "DeadlineExceeded"
	PartialEnrichment Kind = "PartialEnrichment"
	Backpressure      Kind = "Backpressure"
	Internal          Kind = "Internal"
)

// Error is the canonical error shape crossing a component boundary.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured detail fields, returning the receiver.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// As reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to Internal when err does not
// carry one.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the §6 status code.
func HTTPStatus(k Kind) int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Backpressure:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case PartialEnrichment:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func Is(err error, k Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == k
}
