// Package apierr provides the pipeline error taxonomy shared across
// collection, evaluation, ranking and delivery.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline error into one of the outcomes operators and
// the admin API need to distinguish.
type Kind string

const (
	// KindTransientNetwork covers connect/read timeouts and 5xx upstream
	// responses that are expected to succeed on retry.
	KindTransientNetwork Kind = "transient_network"
	// KindPermanentUpstream covers 4xx responses and malformed payloads
	// that will not succeed on retry.
	KindPermanentUpstream Kind = "permanent_upstream"
	// KindValidationFailed covers input that fails a domain invariant.
	KindValidationFailed Kind = "validation_failed"
	// KindCatalogueConflict covers unique-constraint and referential
	// violations raised by the catalogue store.
	KindCatalogueConflict Kind = "catalogue_conflict"
	// KindConfigurationInvalid covers malformed pipeline/source/evaluator
	// configuration discovered at run time.
	KindConfigurationInvalid Kind = "configuration_invalid"
	// KindInvalidCatalogueWrite covers a pipeline write whose
	// categories/evaluator_key/writer.type fall outside its pipeline
	// class's allow-lists, rejected by the catalogue store itself.
	KindInvalidCatalogueWrite Kind = "invalid_catalogue_write"
	// KindThrottled covers rate-limit and cooldown rejections.
	KindThrottled Kind = "throttled"
	// KindCancelled covers context cancellation and deadline exceeded.
	KindCancelled Kind = "cancelled"
)

// Error is a structured pipeline error carrying a Kind, an HTTP status the
// admin API maps it to, and optional details for logging.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail, returning the same error for
// chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string, httpStatus int) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, message string, httpStatus int, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Transient marks err as a retryable network failure.
func Transient(op string, err error) *Error {
	return Wrap(KindTransientNetwork, "transient network failure", http.StatusBadGateway, err).
		WithDetails("operation", op)
}

// Permanent marks err as a non-retryable upstream failure.
func Permanent(op string, err error) *Error {
	return Wrap(KindPermanentUpstream, "permanent upstream failure", http.StatusBadGateway, err).
		WithDetails("operation", op)
}

// Validation reports a domain invariant violation on field.
func Validation(field, reason string) *Error {
	return New(KindValidationFailed, "validation failed", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Conflict reports a catalogue uniqueness/referential violation.
func Conflict(resource, reason string) *Error {
	return New(KindCatalogueConflict, "catalogue conflict", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("reason", reason)
}

// Configuration reports invalid pipeline/source/evaluator configuration.
func Configuration(field, reason string) *Error {
	return New(KindConfigurationInvalid, "invalid configuration", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// InvalidCatalogueWrite reports a pipeline write that violates its pipeline
// class's allow-lists for categories, evaluator_key, or writer.type.
func InvalidCatalogueWrite(field, reason string) *Error {
	return New(KindInvalidCatalogueWrite, "invalid catalogue write", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// ThrottledErr reports a rate-limit or cooldown rejection.
func ThrottledErr(reason string) *Error {
	return New(KindThrottled, reason, http.StatusTooManyRequests)
}

// Cancelled reports a context cancellation or deadline exceeded.
func Cancelled(op string, err error) *Error {
	return Wrap(KindCancelled, "operation cancelled", 499, err).
		WithDetails("operation", op)
}

// As extracts an *Error from an error chain, if present.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	e := As(err)
	return e != nil && e.Kind == kind
}

// HTTPStatus returns the status code to report for err, defaulting to 500
// when err is not a pipeline *Error.
func HTTPStatus(err error) int {
	if e := As(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
