package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/agentcal/core"
	"github.com/stretchr/testify/assert"
)

func collect(t *testing.T, cal *Calendar, windowStart, windowEnd time.Time, d time.Duration) []core.Slot {
	t.Helper()
	seq, err := cal.Slots(context.Background(), windowStart, windowEnd, d)
	assert.NoError(t, err)
	var slots []core.Slot
	for slot := range seq {
		slots = append(slots, slot)
	}
	return slots
}

func TestSlots_EmptyCalendarFillsWorkingHours(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")

	// One working day, hour-long slots inside 09:00-17:00.
	slots := collect(t, cal, at(0, 0), at(23, 59), time.Hour)
	assert.Len(t, slots, 8)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(16, 0), slots[len(slots)-1].Start)
	for i, slot := range slots {
		assert.Equal(t, slot.Start.Add(time.Hour), slot.End)
		if i > 0 {
			assert.True(t, slot.Start.After(slots[i-1].Start) || slot.Start.Equal(slots[i-1].End),
				"slots are ascending and non-overlapping")
		}
	}
}

func TestSlots_SkipBookedWithBuffer(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")
	ctx := context.Background()
	setBuffer(t, cal, 15*time.Minute)

	event, err := cal.Propose(ctx, ProposeRequest{Counterparty: "agent-b", Start: at(10, 0), Duration: time.Hour})
	assert.NoError(t, err)
	_, err = cal.Respond(ctx, event.ID, true)
	assert.NoError(t, err)

	slots := collect(t, cal, at(0, 0), at(23, 59), 30*time.Minute)
	for _, slot := range slots {
		assert.False(t, slot.Start.Before(at(11, 15)) && at(9, 45).Before(slot.End),
			"slot [%s, %s) intersects the booked hour plus buffer",
			slot.Start.Format("15:04"), slot.End.Format("15:04"))
	}
	// The first slot after the meeting starts once the buffer has passed.
	assert.Contains(t, slots, core.Slot{Start: at(9, 0), End: at(9, 30)})
	assert.Contains(t, slots, core.Slot{Start: at(11, 15), End: at(11, 45)})
}

func TestSlots_RespectsWindowBounds(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")

	slots := collect(t, cal, at(10, 30), at(12, 0), time.Hour)
	assert.Len(t, slots, 1)
	assert.Equal(t, core.Slot{Start: at(10, 30), End: at(11, 30)}, slots[0])
}

func TestSlots_SpansMultipleDaysSkippingWeekend(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")

	// Friday 2026-09-04 through Monday 2026-09-07: Saturday and Sunday have
	// no working hours and must produce nothing.
	friday := time.Date(2026, time.September, 4, 0, 0, 0, 0, time.UTC)
	tuesday := friday.AddDate(0, 0, 4)
	slots := collect(t, cal, friday, tuesday, 4*time.Hour)

	assert.Len(t, slots, 4)
	for _, slot := range slots {
		day := slot.Start.Weekday()
		assert.NotEqual(t, time.Saturday, day)
		assert.NotEqual(t, time.Sunday, day)
	}
}

func TestSlots_DurationLongerThanWindow(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")
	slots := collect(t, cal, at(9, 0), at(10, 0), 2*time.Hour)
	assert.Empty(t, slots)
}

func TestSlots_InvalidInput(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")
	ctx := context.Background()

	_, err := cal.Slots(ctx, at(9, 0), at(10, 0), 0)
	assert.Equal(t, core.KindInvalidInput, kindOf(err))

	_, err = cal.Slots(ctx, at(10, 0), at(9, 0), time.Hour)
	assert.Equal(t, core.KindInvalidInput, kindOf(err))
}

func TestSlots_SequenceIsRestartable(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")

	seq, err := cal.Slots(context.Background(), at(0, 0), at(23, 59), time.Hour)
	assert.NoError(t, err)

	first := make([]core.Slot, 0, 8)
	for slot := range seq {
		first = append(first, slot)
		if len(first) == 2 {
			break // early termination must not poison the sequence
		}
	}
	second := make([]core.Slot, 0, 8)
	for slot := range seq {
		second = append(second, slot)
	}
	assert.Len(t, second, 8)
	assert.Equal(t, first, second[:2])
}

func TestSlots_SnapshotIgnoresLaterWrites(t *testing.T) {
	cal, _ := newTestCalendar(t, "agent-a")
	ctx := context.Background()

	seq, err := cal.Slots(ctx, at(0, 0), at(23, 59), time.Hour)
	assert.NoError(t, err)

	// Book a meeting after the query was planned; the snapshot replays the
	// state observed at query time.
	event, err := cal.Propose(ctx, ProposeRequest{Counterparty: "agent-b", Start: at(9, 0), Duration: time.Hour})
	assert.NoError(t, err)
	_, err = cal.Respond(ctx, event.ID, true)
	assert.NoError(t, err)

	var slots []core.Slot
	for slot := range seq {
		slots = append(slots, slot)
	}
	assert.Len(t, slots, 8)
	assert.Equal(t, at(9, 0), slots[0].Start)
}
