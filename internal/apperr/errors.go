// Package apperr defines the typed failures surfaced by the orchestration layer.
//
// Every error leaving the service package carries one of four kinds so the HTTP
// boundary can map it to a distinct status code instead of a generic 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
)

// Kind classifies an application failure.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream_failure"
	KindInternal   Kind = "internal_error"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	traced error // eris-wrapped Err, upstream only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports bad or missing input.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown job, customer or plumber id.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an illegal state transition or a double booking.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a storage or payment provider failure. The cause keeps an
// eris stack so the boundary can log where it came from.
func Upstream(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUpstream, Message: message, Err: err, traced: eris.Wrap(err, message)}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the response code used at the HTTP boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Detail renders err for logs, including the eris stack for upstream failures.
func Detail(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.traced != nil {
		return eris.ToString(appErr.traced, true)
	}
	return err.Error()
}
