package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseMeetingDuration parses the duration shapes remote agents send:
// "30m", "1h", "45" (bare minutes) or a plain minute count. Durations must be
// positive.
func ParseMeetingDuration(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("duration is empty")
	}

	multiplier := time.Minute
	switch {
	case strings.HasSuffix(s, "h"):
		multiplier = time.Hour
		s = strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d := time.Duration(n) * multiplier
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}
