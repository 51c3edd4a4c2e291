package core

import "time"

// TimeWindow is an allowed time-of-day range, minutes since midnight,
// half-open [Start, End).
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// AutoAcceptRule decides whether an incoming proposal is accepted server-side
// without waiting for the owner. Conflict detection always runs first; the
// rule only gates conflict-free proposals.
type AutoAcceptRule struct {
	Enabled bool `json:"enabled"`
	// MaxDuration caps auto-accepted meetings; zero means no cap.
	MaxDuration time.Duration `json:"max_duration"`
	// WorkingHoursOnly restricts auto-acceptance to working hours.
	WorkingHoursOnly bool `json:"working_hours_only"`
}

// BookingPreferences are the declarative per-owner rules consulted during
// proposal evaluation. The component is pure: no method has side effects, so
// concurrent readers need no locking beyond the calendar-level serialization
// already held by callers.
type BookingPreferences struct {
	// WorkingHours maps weekdays to allowed windows. A day with no windows
	// accepts no meetings.
	WorkingHours map[time.Weekday][]TimeWindow `json:"working_hours"`
	// MinBuffer is the minimum gap required before and after any blocking event.
	MinBuffer  time.Duration  `json:"min_buffer"`
	AutoAccept AutoAcceptRule `json:"auto_accept"`
	// BlockedCounterparties lists remote agents whose proposals are refused.
	BlockedCounterparties []string `json:"blocked_counterparties,omitempty"`
	// MaxMeetingsPerDay caps blocking events per calendar day; zero means no cap.
	MaxMeetingsPerDay int `json:"max_meetings_per_day"`
}

// DefaultPreferences returns the preferences created on first use of an
// identity: 09:00-17:00 Monday through Friday, 15 minute buffer, auto-accept
// disabled, 8 meetings per day.
func DefaultPreferences() *BookingPreferences {
	weekday := []TimeWindow{{Start: 9 * 60, End: 17 * 60}}
	return &BookingPreferences{
		WorkingHours: map[time.Weekday][]TimeWindow{
			time.Monday:    weekday,
			time.Tuesday:   weekday,
			time.Wednesday: weekday,
			time.Thursday:  weekday,
			time.Friday:    weekday,
		},
		MinBuffer:         15 * time.Minute,
		AutoAccept:        AutoAcceptRule{},
		MaxMeetingsPerDay: 8,
	}
}

// Clone returns a deep copy safe for independent mutation.
func (p *BookingPreferences) Clone() *BookingPreferences {
	clone := *p
	clone.WorkingHours = make(map[time.Weekday][]TimeWindow, len(p.WorkingHours))
	for day, windows := range p.WorkingHours {
		ws := make([]TimeWindow, len(windows))
		copy(ws, windows)
		clone.WorkingHours[day] = ws
	}
	clone.BlockedCounterparties = append([]string(nil), p.BlockedCounterparties...)
	return &clone
}

// minuteOfDay returns the minute offset of t within its day.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// IsWithinWorkingHours reports whether the instant falls inside an allowed
// window of its weekday.
func (p *BookingPreferences) IsWithinWorkingHours(t time.Time) bool {
	minute := minuteOfDay(t)
	for _, w := range p.WorkingHours[t.Weekday()] {
		if minute >= w.Start && minute < w.End {
			return true
		}
	}
	return false
}

// FitsWorkingHours reports whether the whole interval [start, start+d) lies
// inside a single working-hours window. Intervals crossing midnight never fit.
func (p *BookingPreferences) FitsWorkingHours(start time.Time, d time.Duration) bool {
	from := minuteOfDay(start)
	until := from + int(d/time.Minute)
	if until > 24*60 {
		return false
	}
	for _, w := range p.WorkingHours[start.Weekday()] {
		if from >= w.Start && until <= w.End {
			return true
		}
	}
	return false
}

// IsBlocked reports whether proposals from the counterparty are refused.
func (p *BookingPreferences) IsBlocked(counterparty string) bool {
	for _, blocked := range p.BlockedCounterparties {
		if blocked == counterparty {
			return true
		}
	}
	return false
}

// EvaluateAutoAccept reports whether a freshly proposed, conflict-free event
// should be accepted immediately. The existing events are consulted for the
// per-day cap only; overlap checking is the calendar's job.
func (p *BookingPreferences) EvaluateAutoAccept(candidate *Event, existing []*Event) bool {
	rule := p.AutoAccept
	if !rule.Enabled {
		return false
	}
	if rule.MaxDuration > 0 && candidate.Duration > rule.MaxDuration {
		return false
	}
	if rule.WorkingHoursOnly && !p.FitsWorkingHours(candidate.Start, candidate.Duration) {
		return false
	}
	if p.MaxMeetingsPerDay > 0 {
		year, day := candidate.Start.Year(), candidate.Start.YearDay()
		count := 0
		for _, e := range existing {
			if e.Status.Blocking() && e.Start.Year() == year && e.Start.YearDay() == day {
				count++
			}
		}
		if count >= p.MaxMeetingsPerDay {
			return false
		}
	}
	return true
}
