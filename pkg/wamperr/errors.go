// Package wamperr defines the error taxonomy shared across the WAMP
// runtime: a Kind enum for policy dispatch and a single wrapped error type
// that carries the kind, a message, and an optional cause.
package wamperr

import "errors"

// Kind classifies a failure for the purpose of session/transport recovery
// policy. It is a classification, not a Go error type.
type Kind int

const (
	// KindIO covers transport read/write/bind/connect failure.
	KindIO Kind = iota
	// KindBadHandshake covers raw-socket magic/subprotocol mismatch and
	// WebSocket upgrade failure.
	KindBadHandshake
	// KindProtocolViolation covers malformed frames, bad field types, and
	// unknown request ids.
	KindProtocolViolation
	// KindAuthFailed covers signature mismatch, unsupported method, and
	// policy denial.
	KindAuthFailed
	// KindAppError covers callee-returned ERROR and URI lookup failure.
	KindAppError
	// KindCanceled covers synthetic cancellation delivered at session close.
	KindCanceled
	// KindNumericRange covers integers outside the signed 64-bit range.
	KindNumericRange
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindBadHandshake:
		return "bad_handshake"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindAuthFailed:
		return "auth_failed"
	case KindAppError:
		return "app_error"
	case KindCanceled:
		return "canceled"
	case KindNumericRange:
		return "numeric_range"
	default:
		return "unknown"
	}
}

// Terminal reports whether this kind ends the session. Only AppError is
// locally recoverable; everything else tears the session down.
func (k Kind) Terminal() bool { return k != KindAppError }

// Error is the single wrapped error type carrying a Kind, a human message,
// and an optional underlying cause.
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

// New builds an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing cause. The result is never nil:
// a nil cause yields an *Error with no cause, the same as New.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a wamperr.Error, else KindIO as a
// conservative default (an unclassified failure is treated as terminal).
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindIO
}
