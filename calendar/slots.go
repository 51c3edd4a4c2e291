package calendar

import (
	"context"
	"iter"
	"sort"
	"time"

	"github.com/hupe1980/agentcal/core"
)

// Slots answers the availability query: a finite, restartable sequence of
// non-overlapping candidate slots of the requested duration inside the
// half-open window [windowStart, windowEnd), fitting the owner's working
// hours and clear of every blocking event plus buffer. Slots are produced in
// ascending start-time order.
//
// The snapshot of blocking events and preferences is taken once; re-ranging
// the returned sequence replays the same slots without further store reads.
func (c *Calendar) Slots(ctx context.Context, windowStart, windowEnd time.Time, d time.Duration) (iter.Seq[core.Slot], error) {
	if d <= 0 {
		return nil, core.NewError(core.KindInvalidInput, "duration must be positive, got %s", d)
	}
	if !windowEnd.After(windowStart) {
		return nil, core.NewError(core.KindInvalidInput, "window end must be after window start")
	}
	prefs, err := c.store.GetPreferences(ctx, c.owner)
	if err != nil {
		return nil, core.AsError(err)
	}
	events, err := c.blockingEvents(ctx)
	if err != nil {
		return nil, err
	}
	ix := newIntervalIndex(events)
	buffer := prefs.MinBuffer
	hours := prefs.Clone() // immutable snapshot for the generator
	for _, windows := range hours.WorkingHours {
		sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
	}

	return func(yield func(core.Slot) bool) {
		// Midnight in the window's location so weekday windows line up.
		day := time.Date(windowStart.Year(), windowStart.Month(), windowStart.Day(), 0, 0, 0, 0, windowStart.Location())

		for ; day.Before(windowEnd); day = day.AddDate(0, 0, 1) {
			for _, w := range hours.WorkingHours[day.Weekday()] {
				cursor := day.Add(time.Duration(w.Start) * time.Minute)
				limit := day.Add(time.Duration(w.End) * time.Minute)
				if cursor.Before(windowStart) {
					cursor = windowStart
				}
				if limit.After(windowEnd) {
					limit = windowEnd
				}
				for !cursor.Add(d).After(limit) {
					free, moved := ix.nextFree(cursor, d, buffer)
					if moved {
						cursor = free
						continue
					}
					if !yield(core.Slot{Start: cursor, End: cursor.Add(d)}) {
						return
					}
					cursor = cursor.Add(d)
				}
			}
		}
	}, nil
}
