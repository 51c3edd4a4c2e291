package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes every failure the negotiation engine can surface to a
// caller. Busy and StoreUnavailable are the only kinds safe to retry
// automatically; all others require a new decision by the caller.
type ErrorKind string

const (
	// KindNotFound means the referenced event or owner does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindInvalidTransition means the event status does not permit the requested operation.
	KindInvalidTransition ErrorKind = "invalid_transition"
	// KindConflict means an overlapping interval (buffer included) was detected.
	KindConflict ErrorKind = "conflict"
	// KindInvalidInput means the request shape was malformed (non-positive duration, bad time).
	KindInvalidInput ErrorKind = "invalid_input"
	// KindBusy means the optimistic-version retry budget was exhausted.
	KindBusy ErrorKind = "busy"
	// KindStoreUnavailable means the persistence layer is unreachable.
	KindStoreUnavailable ErrorKind = "store_unavailable"
	// KindInternal is the catch-all for recovered panics and unclassified
	// failures; the affected event, if any, is moved to StatusFailed.
	KindInternal ErrorKind = "internal"
)

// Retryable reports whether a caller may safely retry the same call after
// backoff without a new decision.
func (k ErrorKind) Retryable() bool {
	return k == KindBusy || k == KindStoreUnavailable
}

// Error is the structured failure type returned across the protocol surface.
// It is data, never a transport-level exception.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError constructs an Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError coerces any error into a *Error, classifying store failures and
// falling back to KindInternal for everything unrecognized. A nil input
// returns nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var se *StoreError
	if errors.As(err, &se) {
		if se.Kind == StoreVersionConflict {
			return NewError(KindBusy, "concurrent write detected: %v", se)
		}
		return NewError(KindStoreUnavailable, "%v", se)
	}
	if errors.Is(err, ErrEventNotFound) {
		return NewError(KindNotFound, "%v", err)
	}
	return NewError(KindInternal, "%v", err)
}
