package core

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the closed set of states a negotiated meeting moves through.
type EventStatus string

const (
	// StatusProposed is the initial state of every event.
	StatusProposed EventStatus = "proposed"
	// StatusAccepted means the counterparty agreed to the proposed slot.
	StatusAccepted EventStatus = "accepted"
	// StatusConfirmed means the proposing side acknowledged the acceptance.
	StatusConfirmed EventStatus = "confirmed"
	// StatusBooked is the terminal success state on the proposing side.
	StatusBooked EventStatus = "booked"
	// StatusRejected is the terminal state after the counterparty declined.
	StatusRejected EventStatus = "rejected"
	// StatusCancelled is the terminal state after either side withdrew.
	StatusCancelled EventStatus = "cancelled"
	// StatusFailed is the terminal state after an internal error during a transition.
	StatusFailed EventStatus = "failed"
)

// transitions is the single authoritative transition table. Illegal moves
// (e.g. proposed -> confirmed) are rejected centrally rather than at call sites.
var transitions = map[EventStatus]map[EventStatus]bool{
	StatusProposed: {
		StatusAccepted:  true,
		StatusRejected:  true,
		StatusCancelled: true,
		StatusFailed:    true,
	},
	StatusAccepted: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusFailed:    true,
	},
	StatusConfirmed: {
		StatusBooked:    true,
		StatusCancelled: true,
		StatusFailed:    true,
	},
	StatusBooked:    {},
	StatusRejected:  {},
	StatusCancelled: {},
	StatusFailed:    {},
}

// CanTransition reports whether moving from one status to another is a legal
// edge of the state machine.
func CanTransition(from, to EventStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Terminal reports whether the status admits no further transitions.
func (s EventStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Blocking reports whether an event in this status occupies calendar time for
// conflict detection. Proposed, rejected and cancelled events never block.
func (s EventStatus) Blocking() bool {
	return s == StatusAccepted || s == StatusConfirmed || s == StatusBooked
}

// Valid reports whether s is a known status value.
func (s EventStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Origin records which side of the negotiation created the local event record.
type Origin string

const (
	// OriginLocal marks an event proposed by the owning agent.
	OriginLocal Origin = "local"
	// OriginRemote marks an event received from a counterparty.
	OriginRemote Origin = "remote"
)

// Event is a proposed or scheduled meeting between the owning agent and one
// counterparty. End time is always derived from Start and Duration so the two
// can never drift apart.
type Event struct {
	ID             string        `json:"id"`
	Owner          string        `json:"owner_id"`
	Counterparty   string        `json:"counterparty_id"`
	Start          time.Time     `json:"start"`
	Duration       time.Duration `json:"duration"`
	Status         EventStatus   `json:"status"`
	Origin         Origin        `json:"origin"`
	Title          string        `json:"title,omitempty"`
	Note           string        `json:"note,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	// Version implements optimistic concurrency: a write succeeds only if the
	// stored row still carries the version the writer read. Zero means the
	// event has never been persisted.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEventID returns a fresh opaque event identifier.
func NewEventID() string {
	return "evt-" + uuid.NewString()[:8]
}

// End returns the derived end instant of the event.
func (e *Event) End() time.Time {
	return e.Start.Add(e.Duration)
}

// Overlaps reports whether the event intersects the half-open interval
// [start, end).
func (e *Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End())
}

// Clone returns a copy of the event safe for independent mutation.
func (e *Event) Clone() *Event {
	clone := *e
	return &clone
}

// Ref returns the external view of the event used in protocol responses.
func (e *Event) Ref() *EventRef {
	return &EventRef{
		EventID:         e.ID,
		Status:          e.Status,
		Start:           e.Start,
		DurationMinutes: int(e.Duration / time.Minute),
		Counterparty:    e.Counterparty,
		Title:           e.Title,
	}
}

// EventRef is the wire-level reference to an event returned by the protocol
// surface. It deliberately omits internal bookkeeping (version, origin).
type EventRef struct {
	EventID         string      `json:"eventId"`
	Status          EventStatus `json:"status"`
	Start           time.Time   `json:"start"`
	DurationMinutes int         `json:"durationMinutes"`
	Counterparty    string      `json:"counterpartyId"`
	Title           string      `json:"title,omitempty"`
}

// Slot is a free interval of the requested duration produced by the
// availability query.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
