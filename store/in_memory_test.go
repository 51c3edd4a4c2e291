package store

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/agentcal/core"
	"github.com/hupe1980/agentcal/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// Interface compliance (compile-time assertion)
var _ core.EventStore = (*InMemory)(nil)

func TestInMemory_InsertAndGet(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	event := testutil.NewEventBuilder().ID("evt-1").IdempotencyKey("key-1").Build()
	stored, err := st.PutEvent(ctx, event)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, stored.CreatedAt, stored.UpdatedAt)

	got, err := st.GetEvent(ctx, "evt-1")
	assert.NoError(t, err)
	assert.Equal(t, stored, got)

	_, err = st.GetEvent(ctx, "evt-missing")
	assert.ErrorIs(t, err, core.ErrEventNotFound)
}

func TestInMemory_InsertRejectsExistingID(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	event := testutil.NewEventBuilder().ID("evt-1").Build()
	_, err := st.PutEvent(ctx, event)
	assert.NoError(t, err)

	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-1").Build())
	var se *core.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, core.StoreVersionConflict, se.Kind)
}

func TestInMemory_DuplicateIdempotencyKeyRejected(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	_, err := st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-1").Owner("agent-a").IdempotencyKey("token").Build())
	assert.NoError(t, err)

	// A second insert reusing the owner's key conflicts with the original row.
	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-2").Owner("agent-a").At(4*time.Hour).IdempotencyKey("token").Build())
	var se *core.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, core.StoreVersionConflict, se.Kind)
	assert.Equal(t, int64(1), se.Expected)

	found, err := st.FindByIdempotencyKey(ctx, "agent-a", "token")
	assert.NoError(t, err)
	assert.Equal(t, "evt-1", found.ID)

	// Another owner may reuse the key, and keyless events never collide.
	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-3").Owner("agent-b").IdempotencyKey("token").Build())
	assert.NoError(t, err)
	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-4").Owner("agent-a").At(6*time.Hour).Build())
	assert.NoError(t, err)
	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-5").Owner("agent-a").At(8*time.Hour).Build())
	assert.NoError(t, err)
}

func TestInMemory_CompareAndSwap(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	stored, err := st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-1").Build())
	assert.NoError(t, err)

	// Matching version succeeds and bumps.
	next := stored.Clone()
	next.Status = core.StatusAccepted
	updated, err := st.PutEvent(ctx, next)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, core.StatusAccepted, updated.Status)

	// A stale version loses, reporting what is currently stored.
	stale := stored.Clone()
	stale.Status = core.StatusCancelled
	_, err = st.PutEvent(ctx, stale)
	var se *core.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, core.StoreVersionConflict, se.Kind)
	assert.Equal(t, int64(2), se.Expected)

	// And the stored row is untouched by the failed write.
	got, err := st.GetEvent(ctx, "evt-1")
	assert.NoError(t, err)
	assert.Equal(t, core.StatusAccepted, got.Status)

	// Updating an unknown id fails with not found.
	ghost := testutil.NewEventBuilder().ID("evt-ghost").Version(3).Build()
	_, err = st.PutEvent(ctx, ghost)
	assert.ErrorIs(t, err, core.ErrEventNotFound)
}

func TestInMemory_ClonesAcrossBoundary(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	event := testutil.NewEventBuilder().ID("evt-1").Build()
	stored, err := st.PutEvent(ctx, event)
	assert.NoError(t, err)

	// Mutating either the input or the returned copy must not leak inside.
	event.Status = core.StatusFailed
	stored.Status = core.StatusFailed

	got, err := st.GetEvent(ctx, "evt-1")
	assert.NoError(t, err)
	assert.Equal(t, core.StatusProposed, got.Status)
}

func TestInMemory_ListEvents(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	_, err := st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-1").Owner("agent-a").Status(core.StatusAccepted).Build())
	assert.NoError(t, err)
	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-2").Owner("agent-a").At(2*time.Hour).Build())
	assert.NoError(t, err)
	_, err = st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-3").Owner("agent-b").Build())
	assert.NoError(t, err)

	all, err := st.ListEvents(ctx, "agent-a", core.EventFilter{})
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	accepted, err := st.ListEvents(ctx, "agent-a", core.EventFilter{Status: []core.EventStatus{core.StatusAccepted}})
	assert.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.Equal(t, "evt-1", accepted[0].ID)

	none, err := st.ListEvents(ctx, "agent-c", core.EventFilter{})
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemory_FindByIdempotencyKey(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	_, err := st.PutEvent(ctx, testutil.NewEventBuilder().ID("evt-1").Owner("agent-a").IdempotencyKey("token").Build())
	assert.NoError(t, err)

	found, err := st.FindByIdempotencyKey(ctx, "agent-a", "token")
	assert.NoError(t, err)
	assert.Equal(t, "evt-1", found.ID)

	// Keys are scoped per owner.
	_, err = st.FindByIdempotencyKey(ctx, "agent-b", "token")
	assert.ErrorIs(t, err, core.ErrEventNotFound)

	_, err = st.FindByIdempotencyKey(ctx, "agent-a", "other")
	assert.ErrorIs(t, err, core.ErrEventNotFound)
}

func TestInMemory_PreferencesDefaultsOnFirstUse(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	prefs, err := st.GetPreferences(ctx, "agent-a")
	assert.NoError(t, err)
	assert.Equal(t, core.DefaultPreferences(), prefs)

	// Mutating the returned copy does not write through.
	prefs.MinBuffer = 0
	again, err := st.GetPreferences(ctx, "agent-a")
	assert.NoError(t, err)
	assert.Equal(t, 15*time.Minute, again.MinBuffer)

	// PutPreferences replaces the stored document.
	prefs.MinBuffer = 45 * time.Minute
	assert.NoError(t, st.PutPreferences(ctx, "agent-a", prefs))
	updated, err := st.GetPreferences(ctx, "agent-a")
	assert.NoError(t, err)
	assert.Equal(t, 45*time.Minute, updated.MinBuffer)

	// Owners are isolated.
	other, err := st.GetPreferences(ctx, "agent-b")
	assert.NoError(t, err)
	assert.Equal(t, 15*time.Minute, other.MinBuffer)
}
