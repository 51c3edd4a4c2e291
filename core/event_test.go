package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := []struct{ from, to EventStatus }{
		{StatusProposed, StatusAccepted},
		{StatusProposed, StatusRejected},
		{StatusProposed, StatusCancelled},
		{StatusProposed, StatusFailed},
		{StatusAccepted, StatusConfirmed},
		{StatusAccepted, StatusCancelled},
		{StatusAccepted, StatusFailed},
		{StatusConfirmed, StatusBooked},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusFailed},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	illegal := []struct{ from, to EventStatus }{
		{StatusProposed, StatusConfirmed}, // must pass through accepted
		{StatusProposed, StatusBooked},
		{StatusAccepted, StatusBooked}, // must pass through confirmed
		{StatusAccepted, StatusProposed},
		{StatusConfirmed, StatusAccepted},
		{StatusRejected, StatusAccepted},
		{StatusCancelled, StatusProposed},
		{StatusBooked, StatusCancelled},
		{StatusFailed, StatusProposed},
		{"unknown", StatusAccepted},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestEventStatus_Terminal(t *testing.T) {
	for _, s := range []EventStatus{StatusBooked, StatusRejected, StatusCancelled, StatusFailed} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []EventStatus{StatusProposed, StatusAccepted, StatusConfirmed} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestEventStatus_Blocking(t *testing.T) {
	for _, s := range []EventStatus{StatusAccepted, StatusConfirmed, StatusBooked} {
		assert.True(t, s.Blocking(), "%s should block calendar time", s)
	}
	for _, s := range []EventStatus{StatusProposed, StatusRejected, StatusCancelled, StatusFailed} {
		assert.False(t, s.Blocking(), "%s should not block calendar time", s)
	}
}

func TestEventStatus_Valid(t *testing.T) {
	assert.True(t, StatusProposed.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, EventStatus("no_show").Valid())
	assert.False(t, EventStatus("").Valid())
}

func TestEvent_EndAndOverlaps(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	e := &Event{Start: start, Duration: 30 * time.Minute}

	assert.Equal(t, start.Add(30*time.Minute), e.End())

	// Strict overlap.
	assert.True(t, e.Overlaps(start.Add(15*time.Minute), start.Add(45*time.Minute)))
	// Containment either way.
	assert.True(t, e.Overlaps(start.Add(5*time.Minute), start.Add(10*time.Minute)))
	assert.True(t, e.Overlaps(start.Add(-time.Hour), start.Add(time.Hour)))
	// Half-open: touching boundaries do not overlap.
	assert.False(t, e.Overlaps(start.Add(30*time.Minute), start.Add(time.Hour)))
	assert.False(t, e.Overlaps(start.Add(-time.Hour), start))
}

func TestEvent_Clone(t *testing.T) {
	e := &Event{ID: "evt-1", Status: StatusProposed}
	clone := e.Clone()
	clone.Status = StatusAccepted
	assert.Equal(t, StatusProposed, e.Status)
}

func TestEvent_Ref(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	e := &Event{
		ID:           "evt-42",
		Counterparty: "agent-b",
		Start:        start,
		Duration:     45 * time.Minute,
		Status:       StatusAccepted,
		Title:        "sync",
		Version:      3,
	}
	ref := e.Ref()
	assert.Equal(t, "evt-42", ref.EventID)
	assert.Equal(t, StatusAccepted, ref.Status)
	assert.Equal(t, start, ref.Start)
	assert.Equal(t, 45, ref.DurationMinutes)
	assert.Equal(t, "agent-b", ref.Counterparty)
	assert.Equal(t, "sync", ref.Title)
}

func TestNewEventID(t *testing.T) {
	id := NewEventID()
	assert.True(t, strings.HasPrefix(id, "evt-"))
	assert.Len(t, id, len("evt-")+8)
	assert.NotEqual(t, id, NewEventID())
}
