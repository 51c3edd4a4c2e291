package agentcal

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/agentcal/core"
	"github.com/hupe1980/agentcal/internal/testutil"
	"github.com/hupe1980/agentcal/store"
	"github.com/hupe1980/agentcal/surface"
	"github.com/stretchr/testify/assert"
)

func testClock(o *Options) {
	o.Clock = func() time.Time { return testutil.BaseTime.Add(-time.Hour) }
}

func proposal(counterparty string, start time.Time, origin core.Origin) surface.ProposeMeetingRequest {
	return surface.ProposeMeetingRequest{
		Counterparty: counterparty,
		Start:        start,
		Duration:     30 * time.Minute,
		Origin:       origin,
	}
}

func TestNew_Defaults(t *testing.T) {
	engine := New()
	assert.NotNil(t, engine.Store())

	custom := store.NewInMemory()
	engine = New(func(o *Options) { o.Store = custom })
	assert.Same(t, core.EventStore(custom), engine.Store())
}

func TestCalendar_SameInstancePerOwner(t *testing.T) {
	engine := New()
	a1 := engine.Calendar("agent-a")
	a2 := engine.Calendar("agent-a")
	b := engine.Calendar("agent-b")

	assert.Same(t, a1, a2, "one calendar per owner serializes that owner's transitions")
	assert.NotSame(t, a1, b)
}

func TestTools_FullRegistry(t *testing.T) {
	engine := New()
	tools := engine.Tools("agent-a")
	assert.Len(t, tools, 10)
}

// TestTwoAgentNegotiation walks the whole protocol between two agents sharing
// one store: propose, accept, confirm, with the proposing side ending booked
// and the receiving side ending confirmed, and the slot blocked on both
// calendars afterwards.
func TestTwoAgentNegotiation(t *testing.T) {
	engine := New(testClock)
	ctx := context.Background()

	alice := engine.Surface("agent-alice")
	bob := engine.Surface("agent-bob")

	start := testutil.BaseTime.Add(time.Hour)

	// Alice proposes on her calendar; the proposal lands on Bob's calendar as
	// a remote-origin record.
	aliceRef, cerr := alice.ProposeMeeting(ctx, proposal("agent-bob", start, core.OriginLocal))
	assert.Nil(t, cerr)
	assert.Equal(t, core.StatusProposed, aliceRef.Status)

	bobRef, cerr := bob.ProposeMeeting(ctx, proposal("agent-alice", start, core.OriginRemote))
	assert.Nil(t, cerr)
	assert.Equal(t, core.StatusProposed, bobRef.Status)

	// Bob accepts his record and tells Alice; Alice marks hers accepted.
	accepted, cerr := bob.RespondToMeeting(ctx, bobRef.EventID, surface.DecisionAccept)
	assert.Nil(t, cerr)
	assert.Equal(t, core.StatusAccepted, accepted.Status)
	_, cerr = alice.RespondToMeeting(ctx, aliceRef.EventID, surface.DecisionAccept)
	assert.Nil(t, cerr)

	// Alice confirms: as the proposing side her record finalizes to booked.
	booked, cerr := alice.ConfirmMeeting(ctx, aliceRef.EventID)
	assert.Nil(t, cerr)
	assert.Equal(t, core.StatusBooked, booked.Status)

	// Bob acknowledges; his side stays at confirmed.
	confirmed, cerr := bob.ConfirmMeeting(ctx, bobRef.EventID)
	assert.Nil(t, cerr)
	assert.Equal(t, core.StatusConfirmed, confirmed.Status)

	// Both calendars now refuse the slot.
	_, cerr = alice.ProposeMeeting(ctx, proposal("agent-carol", start, core.OriginLocal))
	assert.NotNil(t, cerr)
	assert.Equal(t, core.KindConflict, cerr.Kind)
	_, cerr = bob.ProposeMeeting(ctx, proposal("agent-carol", start, core.OriginLocal))
	assert.NotNil(t, cerr)
	assert.Equal(t, core.KindConflict, cerr.Kind)

	// And the slot no longer shows up as available on either side.
	for _, s := range []*surface.Surface{alice, bob} {
		slots, cerr := s.FindAvailableSlots(ctx,
			testutil.BaseTime, testutil.BaseTime.Add(8*time.Hour), 30*time.Minute)
		assert.Nil(t, cerr)
		for _, slot := range slots {
			assert.False(t, slot.Start.Before(start.Add(30*time.Minute)) && start.Before(slot.End),
				"slot [%s, %s) overlaps the booked meeting", slot.Start, slot.End)
		}
	}
}

// TestAutoAcceptedNegotiation covers the short path: the receiving side has
// auto-accept enabled, so the proposing agent sees acceptance in one exchange.
func TestAutoAcceptedNegotiation(t *testing.T) {
	engine := New(testClock)
	ctx := context.Background()

	bob := engine.Surface("agent-bob")
	prefs, cerr := bob.GetPreferences(ctx)
	assert.Nil(t, cerr)
	prefs.AutoAccept.Enabled = true
	assert.Nil(t, bob.UpdatePreferences(ctx, prefs))

	start := testutil.BaseTime.Add(time.Hour)
	ref, cerr := bob.ProposeMeeting(ctx, proposal("agent-alice", start, core.OriginRemote))
	assert.Nil(t, cerr)
	assert.Equal(t, core.StatusAccepted, ref.Status)
}
