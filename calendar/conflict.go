package calendar

import (
	"sort"
	"time"

	"github.com/hupe1980/agentcal/core"
)

// firstConflict returns the first blocking event whose interval intersects
// the buffer-padded candidate [start-buffer, end+buffer), or nil when the
// slot is free. The overlap test is half-open interval intersection, so an
// event ending exactly buffer before the candidate start does not conflict.
// excludeID skips the event being re-evaluated (accepting a proposal must not
// conflict with itself).
func firstConflict(events []*core.Event, start, end time.Time, buffer time.Duration, excludeID string) *core.Event {
	paddedStart := start.Add(-buffer)
	paddedEnd := end.Add(buffer)
	for _, e := range events {
		if e.ID == excludeID || !e.Status.Blocking() {
			continue
		}
		if e.Overlaps(paddedStart, paddedEnd) {
			return e
		}
	}
	return nil
}

// intervalIndex is a sorted index over blocking intervals answering conflict
// queries in O(log n + k). It produces decisions identical to the linear scan
// in firstConflict; the calendar uses the scan (event counts per owner are
// moderate) while the slot generator builds an index once per query.
type intervalIndex struct {
	starts []time.Time
	ends   []time.Time
	ids    []string
}

// newIntervalIndex builds the index from a snapshot of events, keeping only
// blocking statuses.
func newIntervalIndex(events []*core.Event) *intervalIndex {
	blocking := make([]*core.Event, 0, len(events))
	for _, e := range events {
		if e.Status.Blocking() {
			blocking = append(blocking, e)
		}
	}
	sort.Slice(blocking, func(i, j int) bool { return blocking[i].Start.Before(blocking[j].Start) })

	ix := &intervalIndex{
		starts: make([]time.Time, len(blocking)),
		ends:   make([]time.Time, len(blocking)),
		ids:    make([]string, len(blocking)),
	}
	maxEnd := time.Time{}
	for i, e := range blocking {
		ix.starts[i] = e.Start
		// Running maximum makes the end slice monotonic so binary search
		// stays valid even when intervals nest.
		if end := e.End(); end.After(maxEnd) {
			maxEnd = end
		}
		ix.ends[i] = maxEnd
		ix.ids[i] = e.ID
	}
	return ix
}

// len returns the number of indexed intervals.
func (ix *intervalIndex) len() int { return len(ix.starts) }

// conflict reports whether any indexed interval intersects the buffer-padded
// candidate, returning the id of one offending interval.
func (ix *intervalIndex) conflict(start, end time.Time, buffer time.Duration) (string, bool) {
	paddedStart := start.Add(-buffer)
	paddedEnd := end.Add(buffer)

	// First interval starting at or after the padded end; everything from
	// there on starts too late to overlap.
	hi := sort.Search(len(ix.starts), func(i int) bool {
		return !ix.starts[i].Before(paddedEnd)
	})
	// Walk backwards while the running-max end can still reach the candidate.
	for i := hi - 1; i >= 0; i-- {
		if !ix.ends[i].After(paddedStart) {
			break
		}
		if ix.starts[i].Before(paddedEnd) && paddedStart.Before(ix.ends[i]) {
			return ix.ids[i], true
		}
	}
	return "", false
}

// nextFree returns the earliest instant at or after from that clears every
// indexed interval plus buffer, together with whether from had to move.
func (ix *intervalIndex) nextFree(from time.Time, d, buffer time.Duration) (time.Time, bool) {
	moved := false
	for {
		id, hit := ix.conflict(from, from.Add(d), buffer)
		if !hit {
			return from, moved
		}
		moved = true
		// Jump past the offending interval's end plus buffer.
		for i, candidate := range ix.ids {
			if candidate == id {
				from = ix.ends[i].Add(buffer)
				break
			}
		}
	}
}
