// Package apperrors defines the error taxonomy shared across the platform core.
//
// Callers need to tell apart "you are not allowed" (Unauthorized), "you are
// allowed but the app has the feature switched off" (FeatureDisabled),
// "the operation does not apply in the entity's current state" (InvalidState),
// "the entity does not exist" (NotFound) and "a collaborator failed"
// (UpstreamFailure). The first four are deterministic and never retried.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindFeatureDisabled Kind = "feature_disabled"
	KindInvalidState    Kind = "invalid_state"
	KindNotFound        Kind = "not_found"
	KindUpstreamFailure Kind = "upstream_failure"
)

// Error is a classified platform error.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthorized creates an Unauthorized error.
func Unauthorized(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// FeatureDisabled creates a FeatureDisabled error.
func FeatureDisabled(format string, args ...interface{}) *Error {
	return &Error{Kind: KindFeatureDisabled, Message: fmt.Sprintf(format, args...)}
}

// InvalidState creates an InvalidState error.
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a NotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a storage or network failure.
func Upstream(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUpstreamFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, or KindUpstreamFailure when err carries
// no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamFailure
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
