// Package surface is the negotiation protocol boundary of the engine: the set
// of idempotent operations an external, possibly adversarial or buggy, remote
// agent may invoke. Every operation returns either a payload or a structured
// *core.Error; nothing here panics past the boundary and no half-applied
// state is ever left behind on failure.
package surface

import (
	"context"
	"time"

	"github.com/hupe1980/agentcal/calendar"
	"github.com/hupe1980/agentcal/core"
	"github.com/hupe1980/agentcal/logging"
)

// defaultMaxSlots bounds the number of slots a single availability query
// returns so an enormous window cannot produce an unbounded payload.
const defaultMaxSlots = 100

// Surface exposes one owner's calendar to remote callers.
type Surface struct {
	cal      *calendar.Calendar
	logger   logging.Logger
	maxSlots int
}

// Option customizes a Surface.
type Option func(*Surface)

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// WithMaxSlots overrides the per-query slot cap.
func WithMaxSlots(n int) Option {
	return func(s *Surface) {
		if n > 0 {
			s.maxSlots = n
		}
	}
}

// New constructs a Surface over the given calendar.
func New(cal *calendar.Calendar, opts ...Option) *Surface {
	s := &Surface{
		cal:      cal,
		logger:   logging.NoOpLogger{},
		maxSlots: defaultMaxSlots,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner returns the identity whose calendar this surface mutates.
func (s *Surface) Owner() string { return s.cal.Owner() }

// run executes fn behind the no-panic boundary, mapping any error (or
// recovered panic) to a structured *core.Error.
func run[T any](fn func() (T, error)) (out T, cerr *core.Error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			cerr = core.NewError(core.KindInternal, "recovered panic: %v", r)
		}
	}()
	v, err := fn()
	if err != nil {
		var zero T
		return zero, core.AsError(err)
	}
	return v, nil
}

// ProposeMeetingRequest carries the inputs of the propose operation.
type ProposeMeetingRequest struct {
	Counterparty string
	Start        time.Time
	Duration     time.Duration
	Title        string
	Note         string
	// IdempotencyKey de-duplicates retried proposals after a network timeout.
	IdempotencyKey string
	// Origin defaults to local; transports serving incoming proposals set remote.
	Origin core.Origin
}

// ProposeMeeting creates a new event in proposed (or auto-accepted) status.
func (s *Surface) ProposeMeeting(ctx context.Context, req ProposeMeetingRequest) (*core.EventRef, *core.Error) {
	return run(func() (*core.EventRef, error) {
		event, err := s.cal.Propose(ctx, calendar.ProposeRequest{
			Counterparty:   req.Counterparty,
			Start:          req.Start,
			Duration:       req.Duration,
			Title:          req.Title,
			Note:           req.Note,
			IdempotencyKey: req.IdempotencyKey,
			Origin:         req.Origin,
		})
		if err != nil {
			return nil, err
		}
		return event.Ref(), nil
	})
}

// Decision values accepted by RespondToMeeting.
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

// RespondToMeeting applies the counterparty's accept/reject decision to a
// proposed event. Accepting re-runs conflict detection and returns Conflict
// without mutating state if the slot has been taken meanwhile.
func (s *Surface) RespondToMeeting(ctx context.Context, eventID, decision string) (*core.EventRef, *core.Error) {
	return run(func() (*core.EventRef, error) {
		if decision != DecisionAccept && decision != DecisionReject {
			return nil, core.NewError(core.KindInvalidInput, "decision must be %q or %q, got %q",
				DecisionAccept, DecisionReject, decision)
		}
		event, err := s.cal.Respond(ctx, eventID, decision == DecisionAccept)
		if err != nil {
			return nil, err
		}
		return event.Ref(), nil
	})
}

// ConfirmMeeting moves an accepted event to confirmed; on the proposing side
// the event finalizes to booked in the same logical step.
func (s *Surface) ConfirmMeeting(ctx context.Context, eventID string) (*core.EventRef, *core.Error) {
	return run(func() (*core.EventRef, error) {
		event, err := s.cal.Confirm(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return event.Ref(), nil
	})
}

// CancelMeeting cancels an event from any non-terminal state.
func (s *Surface) CancelMeeting(ctx context.Context, eventID string) (*core.EventRef, *core.Error) {
	return run(func() (*core.EventRef, error) {
		event, err := s.cal.Cancel(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return event.Ref(), nil
	})
}

// ListMeetings returns the owner's events, optionally filtered to one status.
func (s *Surface) ListMeetings(ctx context.Context, statusFilter string) ([]*core.EventRef, *core.Error) {
	return run(func() ([]*core.EventRef, error) {
		var filter core.EventFilter
		if statusFilter != "" {
			status := core.EventStatus(statusFilter)
			if !status.Valid() {
				return nil, core.NewError(core.KindInvalidInput, "unknown status %q", statusFilter)
			}
			filter.Status = []core.EventStatus{status}
		}
		events, err := s.cal.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return refs(events), nil
	})
}

// UpcomingMeetings returns future blocking events in start order, capped at
// limit when positive.
func (s *Surface) UpcomingMeetings(ctx context.Context, limit int) ([]*core.EventRef, *core.Error) {
	return run(func() ([]*core.EventRef, error) {
		events, err := s.cal.Upcoming(ctx, limit)
		if err != nil {
			return nil, err
		}
		return refs(events), nil
	})
}

// PendingMeetings returns events awaiting a decision: proposed or accepted
// but not yet confirmed.
func (s *Surface) PendingMeetings(ctx context.Context) ([]*core.EventRef, *core.Error) {
	return run(func() ([]*core.EventRef, error) {
		events, err := s.cal.Pending(ctx)
		if err != nil {
			return nil, err
		}
		return refs(events), nil
	})
}

// FindAvailableSlots returns free slots of the requested duration inside the
// window, in ascending start order, capped at the configured maximum.
func (s *Surface) FindAvailableSlots(ctx context.Context, windowStart, windowEnd time.Time, d time.Duration) ([]core.Slot, *core.Error) {
	return run(func() ([]core.Slot, error) {
		seq, err := s.cal.Slots(ctx, windowStart, windowEnd, d)
		if err != nil {
			return nil, err
		}
		slots := make([]core.Slot, 0, 16)
		for slot := range seq {
			slots = append(slots, slot)
			if len(slots) >= s.maxSlots {
				break
			}
		}
		return slots, nil
	})
}

// GetPreferences returns the owner's booking preferences.
func (s *Surface) GetPreferences(ctx context.Context) (*core.BookingPreferences, *core.Error) {
	return run(func() (*core.BookingPreferences, error) {
		return s.cal.Preferences(ctx)
	})
}

// UpdatePreferences replaces the owner's booking preferences. This operation
// is reserved for the owning agent; transports must not route counterparty
// calls here.
func (s *Surface) UpdatePreferences(ctx context.Context, prefs *core.BookingPreferences) *core.Error {
	_, cerr := run(func() (struct{}, error) {
		return struct{}{}, s.cal.UpdatePreferences(ctx, prefs)
	})
	return cerr
}

func refs(events []*core.Event) []*core.EventRef {
	out := make([]*core.EventRef, len(events))
	for i, e := range events {
		out[i] = e.Ref()
	}
	return out
}
