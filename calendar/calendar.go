// Package calendar implements the per-owner aggregate of the negotiation
// engine: the authoritative event state machine, conflict detection and the
// availability query. One Calendar exists per owning agent identity and is the
// unit of isolation; all transitions for the same owner are serialized while
// calendars of different owners never block each other.
package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentcal/core"
	"github.com/hupe1980/agentcal/logging"
)

// defaultMaxAttempts bounds the optimistic-concurrency retry loop before a
// transition gives up with Busy.
const defaultMaxAttempts = 3

// defaultPastTolerance is how far in the past a proposal's start may lie
// before it is rejected as invalid input. Clock skew between agents makes a
// hard "not before now" check too strict.
const defaultPastTolerance = 2 * time.Minute

// Calendar is the aggregate root for one owner's events. It is not persisted
// as its own row; it is a view over all events for one owner plus the owner's
// booking preferences, and it is the only writer of event status.
type Calendar struct {
	owner         string
	store         core.EventStore
	logger        logging.Logger
	maxAttempts   int
	pastTolerance time.Duration
	now           func() time.Time

	// mu serializes check-then-write sequences for this owner. Row-level
	// version CAS alone cannot prevent two concurrent proposals from both
	// passing conflict detection and inserting distinct overlapping rows.
	mu sync.Mutex
}

// Option customizes a Calendar.
type Option func(*Calendar)

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Calendar) { c.logger = l }
}

// WithMaxAttempts overrides the optimistic-concurrency retry budget.
func WithMaxAttempts(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithPastTolerance overrides how far in the past a proposal may start.
func WithPastTolerance(d time.Duration) Option {
	return func(c *Calendar) { c.pastTolerance = d }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Calendar for the given owner over the given store.
func New(owner string, store core.EventStore, opts ...Option) *Calendar {
	c := &Calendar{
		owner:         owner,
		store:         store,
		logger:        logging.NoOpLogger{},
		maxAttempts:   defaultMaxAttempts,
		pastTolerance: defaultPastTolerance,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Owner returns the owning agent identity.
func (c *Calendar) Owner() string { return c.owner }

// ProposeRequest carries the inputs for creating a new proposed event.
type ProposeRequest struct {
	Counterparty string
	Start        time.Time
	Duration     time.Duration
	Title        string
	Note         string
	// IdempotencyKey, when set, de-duplicates retried proposals: a second
	// call bearing the same key returns the original event.
	IdempotencyKey string
	// Origin records whether this owner is the proposing side (local) or is
	// receiving the proposal from a counterparty (remote).
	Origin core.Origin
}

// Propose creates a new event in proposed status after validating the request
// and running conflict detection. When the owner's auto-accept rule evaluates
// true for a conflict-free incoming proposal, the proposed -> accepted
// transition is performed before returning, so the caller may observe status
// accepted on the same call that created the event.
func (c *Calendar) Propose(ctx context.Context, req ProposeRequest) (*core.Event, error) {
	if req.Duration <= 0 {
		return nil, core.NewError(core.KindInvalidInput, "duration must be positive, got %s", req.Duration)
	}
	if req.Counterparty == "" {
		return nil, core.NewError(core.KindInvalidInput, "counterparty id is required")
	}
	if req.Start.Before(c.now().Add(-c.pastTolerance)) {
		return nil, core.NewError(core.KindInvalidInput, "start %s is in the past", req.Start.Format(time.RFC3339))
	}
	origin := req.Origin
	if origin == "" {
		origin = core.OriginLocal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if req.IdempotencyKey != "" {
		existing, err := c.store.FindByIdempotencyKey(ctx, c.owner, req.IdempotencyKey)
		if err == nil {
			c.logger.Debug("calendar.propose.idempotent_replay", "owner", c.owner, "event_id", existing.ID)
			return existing, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	prefs, err := c.store.GetPreferences(ctx, c.owner)
	if err != nil {
		return nil, err
	}
	if prefs.IsBlocked(req.Counterparty) {
		return nil, core.NewError(core.KindConflict, "counterparty %s is blocked", req.Counterparty)
	}

	existing, err := c.blockingEvents(ctx)
	if err != nil {
		return nil, err
	}
	if hit := firstConflict(existing, req.Start, req.Start.Add(req.Duration), prefs.MinBuffer, ""); hit != nil {
		return nil, core.NewError(core.KindConflict,
			"slot %s/%s conflicts with event %s", req.Start.Format(time.RFC3339), req.Duration, hit.ID)
	}

	event := &core.Event{
		ID:             core.NewEventID(),
		Owner:          c.owner,
		Counterparty:   req.Counterparty,
		Start:          req.Start,
		Duration:       req.Duration,
		Status:         core.StatusProposed,
		Origin:         origin,
		Title:          req.Title,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	stored, err := c.store.PutEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	c.logger.Info("calendar.propose", "owner", c.owner, "event_id", stored.ID, "counterparty", req.Counterparty, "start", req.Start)

	// Auto-accept applies to proposals received from a counterparty; the
	// owner's own outbound proposals await the remote side's decision.
	if origin == core.OriginRemote && prefs.EvaluateAutoAccept(stored, existing) {
		accepted, err := c.transitionLocked(ctx, stored.ID, core.StatusAccepted, nil)
		if err != nil {
			return nil, err
		}
		c.logger.Info("calendar.propose.auto_accepted", "owner", c.owner, "event_id", accepted.ID)
		return accepted, nil
	}
	return stored, nil
}

// Respond applies the counterparty's decision to a proposed event. Accepting
// re-runs conflict detection: calendar state may have changed between proposal
// and response, in which case Conflict is returned without mutating the event.
func (c *Calendar) Respond(ctx context.Context, eventID string, accept bool) (*core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !accept {
		return c.transitionLocked(ctx, eventID, core.StatusRejected, nil)
	}
	prefs, err := c.store.GetPreferences(ctx, c.owner)
	if err != nil {
		return nil, err
	}
	return c.transitionLocked(ctx, eventID, core.StatusAccepted, func(current *core.Event) error {
		existing, err := c.blockingEvents(ctx)
		if err != nil {
			return err
		}
		if hit := firstConflict(existing, current.Start, current.End(), prefs.MinBuffer, current.ID); hit != nil {
			return core.NewError(core.KindConflict,
				"slot %s/%s now conflicts with event %s", current.Start.Format(time.RFC3339), current.Duration, hit.ID)
		}
		return nil
	})
}

// Confirm moves an accepted event to confirmed. For events this owner
// proposed (local origin) the confirmed -> booked finalization happens
// automatically in the same call, so the proposing side observes booked while
// the counterparty's record stays at confirmed. A locally-originated event
// left at confirmed by an interrupted finalization may be confirmed again to
// resume it.
func (c *Calendar) Confirm(ctx context.Context, eventID string) (*core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	confirmed, err := c.transitionLocked(ctx, eventID, core.StatusConfirmed, nil)
	if err != nil {
		current, getErr := c.store.GetEvent(ctx, eventID)
		if getErr != nil || current.Status != core.StatusConfirmed || current.Origin != core.OriginLocal {
			return nil, err
		}
		confirmed = current
	}
	if confirmed.Origin != core.OriginLocal {
		return confirmed, nil
	}
	booked, err := c.transitionLocked(ctx, eventID, core.StatusBooked, nil)
	if err != nil {
		// Transient contention leaves the event at confirmed so a repeated
		// Confirm can finish the finalization; only internal failures move it
		// to failed.
		if e := core.AsError(err); e == nil || !e.Kind.Retryable() {
			c.markFailed(ctx, eventID)
		}
		return nil, err
	}
	return booked, nil
}

// Cancel moves an event from any non-terminal state to cancelled.
func (c *Calendar) Cancel(ctx context.Context, eventID string) (*core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, eventID, core.StatusCancelled, nil)
}

// Get returns the event with the given id.
func (c *Calendar) Get(ctx context.Context, eventID string) (*core.Event, error) {
	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, core.AsError(err)
	}
	return event, nil
}

// List returns the owner's events matching the filter, ordered by start time.
func (c *Calendar) List(ctx context.Context, filter core.EventFilter) ([]*core.Event, error) {
	events, err := c.store.ListEvents(ctx, c.owner, filter)
	if err != nil {
		return nil, core.AsError(err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// Upcoming returns future blocking events sorted by start time, capped at
// limit when limit is positive.
func (c *Calendar) Upcoming(ctx context.Context, limit int) ([]*core.Event, error) {
	events, err := c.List(ctx, core.EventFilter{
		Status: []core.EventStatus{core.StatusAccepted, core.StatusConfirmed, core.StatusBooked},
		From:   c.now(),
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Pending returns events still in flight: proposed or accepted but not yet
// confirmed.
func (c *Calendar) Pending(ctx context.Context) ([]*core.Event, error) {
	return c.List(ctx, core.EventFilter{
		Status: []core.EventStatus{core.StatusProposed, core.StatusAccepted},
	})
}

// CountByStatus tallies the owner's events per status.
func (c *Calendar) CountByStatus(ctx context.Context) (map[core.EventStatus]int, error) {
	events, err := c.List(ctx, core.EventFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[core.EventStatus]int)
	for _, e := range events {
		counts[e.Status]++
	}
	return counts, nil
}

// Preferences returns the owner's booking preferences, creating defaults on
// first use.
func (c *Calendar) Preferences(ctx context.Context) (*core.BookingPreferences, error) {
	prefs, err := c.store.GetPreferences(ctx, c.owner)
	if err != nil {
		return nil, core.AsError(err)
	}
	return prefs, nil
}

// UpdatePreferences replaces the owner's booking preferences. This sits
// outside the negotiation critical path and is only ever invoked by the
// owning agent or its user.
func (c *Calendar) UpdatePreferences(ctx context.Context, prefs *core.BookingPreferences) error {
	if prefs == nil {
		return core.NewError(core.KindInvalidInput, "preferences must not be nil")
	}
	if prefs.MinBuffer < 0 {
		return core.NewError(core.KindInvalidInput, "min buffer must not be negative")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.PutPreferences(ctx, c.owner, prefs); err != nil {
		return core.AsError(err)
	}
	c.logger.Info("calendar.preferences.updated", "owner", c.owner)
	return nil
}

// transitionLocked performs one legal state-machine step with bounded
// optimistic-concurrency retries. The caller must hold c.mu. The guard, when
// non-nil, runs after legality checking and before the write; a guard error
// aborts the transition without mutating state.
func (c *Calendar) transitionLocked(
	ctx context.Context,
	eventID string,
	to core.EventStatus,
	guard func(current *core.Event) error,
) (*core.Event, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		current, err := c.store.GetEvent(ctx, eventID)
		if err != nil {
			return nil, core.AsError(err)
		}
		if !core.CanTransition(current.Status, to) {
			return nil, core.NewError(core.KindInvalidTransition,
				"event %s: cannot move from %s to %s", eventID, current.Status, to)
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return nil, core.AsError(err)
			}
		}
		next := current.Clone()
		next.Status = to
		stored, err := c.store.PutEvent(ctx, next)
		if err == nil {
			c.logger.Info("calendar.transition", "owner", c.owner, "event_id", eventID,
				"from", current.Status, "to", to, "attempt", attempt)
			return stored, nil
		}
		if !isVersionConflict(err) {
			return nil, core.AsError(err)
		}
		lastErr = err
		c.logger.Debug("calendar.transition.retry", "owner", c.owner, "event_id", eventID, "attempt", attempt)
	}
	c.logger.Warn("calendar.transition.busy", "owner", c.owner, "event_id", eventID, "to", to)
	return nil, core.NewError(core.KindBusy,
		"event %s: retry budget exhausted after %d attempts: %v", eventID, c.maxAttempts, lastErr)
}

// markFailed best-effort moves an event to failed after an internal error
// mid-transition. Errors here are logged, not returned; the original failure
// is what the caller needs to see.
func (c *Calendar) markFailed(ctx context.Context, eventID string) {
	if _, err := c.transitionLocked(ctx, eventID, core.StatusFailed, nil); err != nil {
		c.logger.Error("calendar.mark_failed", "owner", c.owner, "event_id", eventID, "error", err.Error())
	}
}

// blockingEvents returns a snapshot of the owner's events that occupy
// calendar time.
func (c *Calendar) blockingEvents(ctx context.Context) ([]*core.Event, error) {
	events, err := c.store.ListEvents(ctx, c.owner, core.EventFilter{
		Status: []core.EventStatus{core.StatusAccepted, core.StatusConfirmed, core.StatusBooked},
	})
	if err != nil {
		return nil, core.AsError(err)
	}
	return events, nil
}

func isNotFound(err error) bool {
	e := core.AsError(err)
	return e != nil && e.Kind == core.KindNotFound
}

func isVersionConflict(err error) bool {
	e := core.AsError(err)
	return e != nil && e.Kind == core.KindBusy
}
