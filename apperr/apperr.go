// Package apperr defines the unified error taxonomy shared across the
// runtime: store, registry, bus, taskpool, tooling, and loop all report
// failures through apperr.Error so callers can switch on Kind instead of
// comparing package-local sentinel values.
package apperr

import "errors"

// Kind identifies the class of failure. See spec section 7 for the
// authoritative list and propagation policy.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindUnauthorized   Kind = "unauthorized"
	KindBlocked        Kind = "blocked"
	KindAlreadyHasTask Kind = "already_has_task"
	KindInvalidState   Kind = "invalid_state"
	KindTimeout        Kind = "timeout"
	KindParseError     Kind = "parse_error"
	KindRateLimited    Kind = "rate_limited"
	KindStalled        Kind = "stalled"
	KindLoopDetected   Kind = "loop_detected"
	KindIO             Kind = "io_error"
)

// Error is the concrete error type returned by every package in this
// module for conditions a caller is expected to branch on.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
