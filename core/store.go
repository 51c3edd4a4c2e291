package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEventNotFound is returned when an event for the given id does not
	// exist in the underlying store.
	ErrEventNotFound = errors.New("event not found")
)

// StoreErrorKind distinguishes the two failure modes of a store write.
type StoreErrorKind string

const (
	// StoreUnavailable means the persistence layer is unreachable or broken.
	StoreUnavailable StoreErrorKind = "unavailable"
	// StoreVersionConflict means the row changed between the caller's read
	// and its intended write.
	StoreVersionConflict StoreErrorKind = "version_conflict"
)

// StoreError reports a failed store operation. For version conflicts,
// Expected carries the version currently persisted so the caller can re-read
// and retry.
type StoreError struct {
	Kind     StoreErrorKind
	Expected int64
	Err      error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Kind == StoreVersionConflict {
		return fmt.Sprintf("store: version conflict (stored version %d)", e.Expected)
	}
	if e.Err != nil {
		return fmt.Sprintf("store: unavailable: %v", e.Err)
	}
	return "store: unavailable"
}

// Unwrap exposes the underlying cause.
func (e *StoreError) Unwrap() error { return e.Err }

// NewVersionConflict constructs a StoreError for a failed compare-and-swap.
func NewVersionConflict(stored int64) *StoreError {
	return &StoreError{Kind: StoreVersionConflict, Expected: stored}
}

// NewStoreUnavailable wraps an infrastructure failure.
func NewStoreUnavailable(err error) *StoreError {
	return &StoreError{Kind: StoreUnavailable, Err: err}
}

// EventFilter narrows ListEvents results. Zero values mean "no constraint".
type EventFilter struct {
	// Status restricts to the given statuses.
	Status []EventStatus
	// Counterparty restricts to events negotiated with one remote agent.
	Counterparty string
	// From/Until restrict to events overlapping the half-open window [From, Until).
	From  time.Time
	Until time.Time
}

// Matches reports whether the event passes the filter. Store implementations
// that cannot push the filter down may apply it row by row.
func (f EventFilter) Matches(e *Event) bool {
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if e.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Counterparty != "" && e.Counterparty != f.Counterparty {
		return false
	}
	if !f.Until.IsZero() && !e.Start.Before(f.Until) {
		return false
	}
	if !f.From.IsZero() && !e.End().After(f.From) {
		return false
	}
	return true
}

// EventStore is the persistence contract of the negotiation engine. It is the
// only component that owns durable bytes.
//
// Contract:
//   - PutEvent is atomic per event: it either fully succeeds or leaves the
//     prior row untouched. A write with Version 0 inserts; any other version
//     performs a compare-and-swap against the stored version and fails with
//     StoreVersionConflict on mismatch. The stored copy (version bumped,
//     timestamps maintained by the store) is returned.
//   - GetEvent returns ErrEventNotFound for unknown ids.
//   - ListEvents is a snapshot read and never blocks writers beyond that
//     snapshot.
//   - FindByIdempotencyKey returns the event previously created with the
//     given caller-supplied token, or ErrEventNotFound.
//   - GetPreferences creates and persists defaults on first use of an owner.
type EventStore interface {
	PutEvent(ctx context.Context, event *Event) (*Event, error)
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context, owner string, filter EventFilter) ([]*Event, error)
	FindByIdempotencyKey(ctx context.Context, owner, key string) (*Event, error)
	GetPreferences(ctx context.Context, owner string) (*BookingPreferences, error)
	PutPreferences(ctx context.Context, owner string, prefs *BookingPreferences) error
}
