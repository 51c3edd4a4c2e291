package testutil

import (
	"time"

	"github.com/hupe1980/agentcal/core"
)

// BaseTime is a fixed Tuesday 09:00 UTC used as the anchor instant in tests
// so working-hours defaults (Mon-Fri 09:00-17:00) always apply.
var BaseTime = time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Owner("agent-a").Start(at).Status(core.StatusBooked).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	event core.Event
}

// NewEventBuilder creates a builder with a proposed 30 minute meeting between
// agent-a and agent-b starting at BaseTime.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{event: core.Event{
		ID:           core.NewEventID(),
		Owner:        "agent-a",
		Counterparty: "agent-b",
		Start:        BaseTime,
		Duration:     30 * time.Minute,
		Status:       core.StatusProposed,
		Origin:       core.OriginLocal,
	}}
}

// ID overrides the auto-generated event id (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.event.ID = id; return b }

// Owner sets the owning agent identity (chainable).
func (b *EventBuilder) Owner(owner string) *EventBuilder { b.event.Owner = owner; return b }

// Counterparty sets the remote agent identity (chainable).
func (b *EventBuilder) Counterparty(id string) *EventBuilder { b.event.Counterparty = id; return b }

// Start sets the start instant (chainable).
func (b *EventBuilder) Start(t time.Time) *EventBuilder { b.event.Start = t; return b }

// At offsets the start from BaseTime (chainable).
func (b *EventBuilder) At(offset time.Duration) *EventBuilder {
	b.event.Start = BaseTime.Add(offset)
	return b
}

// Duration sets the meeting length (chainable).
func (b *EventBuilder) Duration(d time.Duration) *EventBuilder { b.event.Duration = d; return b }

// Status sets the lifecycle status (chainable).
func (b *EventBuilder) Status(s core.EventStatus) *EventBuilder { b.event.Status = s; return b }

// Origin sets which side created the record (chainable).
func (b *EventBuilder) Origin(o core.Origin) *EventBuilder { b.event.Origin = o; return b }

// Title sets the meeting title (chainable).
func (b *EventBuilder) Title(t string) *EventBuilder { b.event.Title = t; return b }

// IdempotencyKey sets the de-duplication token (chainable).
func (b *EventBuilder) IdempotencyKey(k string) *EventBuilder {
	b.event.IdempotencyKey = k
	return b
}

// Version sets the optimistic-concurrency version (chainable).
func (b *EventBuilder) Version(v int64) *EventBuilder { b.event.Version = v; return b }

// Build returns the assembled event.
func (b *EventBuilder) Build() *core.Event {
	return b.event.Clone()
}

// Prefs returns default booking preferences with the given tweaks applied,
// cutting down on Clone-then-mutate noise in tests.
func Prefs(mutate ...func(*core.BookingPreferences)) *core.BookingPreferences {
	p := core.DefaultPreferences()
	for _, fn := range mutate {
		fn(p)
	}
	return p
}
