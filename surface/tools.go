package surface

import (
	"strings"
	"time"

	"github.com/hupe1980/agentcal/core"
	"github.com/hupe1980/agentcal/internal/util"
	"github.com/hupe1980/agentcal/tool"
)

// Tool result envelopes. Failures are data: a domain error becomes an
// errorResult payload, never a Go error, so a remote caller always receives a
// well-formed response body.

type errorResult struct {
	Error *core.Error `json:"error"`
}

type eventResult struct {
	EventID string           `json:"eventId"`
	Status  core.EventStatus `json:"status"`
	Event   *core.EventRef   `json:"event"`
}

type listResult struct {
	Events []*core.EventRef `json:"events"`
}

type slotsResult struct {
	Slots []core.Slot `json:"slots"`
}

type prefsResult struct {
	Preferences *core.BookingPreferences `json:"preferences"`
}

func eventPayload(ref *core.EventRef, cerr *core.Error) any {
	if cerr != nil {
		return errorResult{Error: cerr}
	}
	return eventResult{EventID: ref.EventID, Status: ref.Status, Event: ref}
}

// Tools returns the full tool-call surface over s, ready to hand to an LLM
// runtime or serve over a transport. Tool names and payload shapes are the
// protocol contract consumed by remote agents.
func Tools(s *Surface) []tool.Tool {
	return []tool.Tool{
		proposeMeetingTool(s),
		respondToMeetingTool(s),
		confirmMeetingTool(s),
		cancelMeetingTool(s),
		listMeetingsTool(s),
		upcomingMeetingsTool(s),
		pendingMeetingsTool(s),
		findAvailableSlotsTool(s),
		getPreferencesTool(s),
		updatePreferencesTool(s),
	}
}

func proposeMeetingTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"proposeMeeting",
		"Propose a meeting with another agent at a specific time. Returns the created event and its status (proposed, or accepted if auto-accepted).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"counterpartyId": map[string]any{
					"type":        "string",
					"description": "Identity of the remote agent to meet with",
				},
				"start": map[string]any{
					"type":        "string",
					"description": "Meeting start time, ISO-8601 (e.g. 2025-11-04T17:00:00Z)",
				},
				"durationMinutes": map[string]any{
					"type":        "integer",
					"description": "Meeting length in minutes; alternatively pass duration",
				},
				"duration": map[string]any{
					"type":        "string",
					"description": "Meeting length as a string like \"30m\" or \"1h\"",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Optional meeting title",
				},
				"note": map[string]any{
					"type":        "string",
					"description": "Optional free-text note for the counterparty",
				},
				"idempotencyKey": map[string]any{
					"type":        "string",
					"description": "Opaque token de-duplicating retried proposals",
				},
			},
			"required": []string{"counterpartyId", "start"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			start, cerr := parseStart(args["start"])
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			duration, cerr := parseDuration(args)
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			counterparty, _ := args["counterpartyId"].(string)
			title, _ := args["title"].(string)
			note, _ := args["note"].(string)
			idempotencyKey, _ := args["idempotencyKey"].(string)

			origin := core.OriginLocal
			if caller := toolCtx.Caller(); caller != "" && caller != s.Owner() {
				// A proposal arriving from another agent is a remote-origin
				// event on this calendar; auto-accept may apply.
				origin = core.OriginRemote
			}

			ref, cerr := s.ProposeMeeting(toolCtx.Context(), ProposeMeetingRequest{
				Counterparty:   counterparty,
				Start:          start,
				Duration:       duration,
				Title:          title,
				Note:           note,
				IdempotencyKey: idempotencyKey,
				Origin:         origin,
			})
			return eventPayload(ref, cerr), nil
		},
	)
}

func respondToMeetingTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"respondToMeeting",
		"Accept or reject a proposed meeting by event id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"eventId": map[string]any{
					"type":        "string",
					"description": "Identifier of the proposed event",
				},
				"decision": map[string]any{
					"type":        "string",
					"description": "Either \"accept\" or \"reject\"",
					"enum":        []string{DecisionAccept, DecisionReject},
				},
			},
			"required": []string{"eventId", "decision"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			eventID, _ := args["eventId"].(string)
			decision, _ := args["decision"].(string)
			ref, cerr := s.RespondToMeeting(toolCtx.Context(), eventID, decision)
			return eventPayload(ref, cerr), nil
		},
	)
}

func confirmMeetingTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"confirmMeeting",
		"Confirm an accepted meeting. On the proposing side the meeting finalizes to booked.",
		eventIDSchema("Identifier of the accepted event"),
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			eventID, _ := args["eventId"].(string)
			ref, cerr := s.ConfirmMeeting(toolCtx.Context(), eventID)
			return eventPayload(ref, cerr), nil
		},
	)
}

func cancelMeetingTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"cancelMeeting",
		"Cancel a meeting that is not yet in a terminal state.",
		eventIDSchema("Identifier of the event to cancel"),
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			eventID, _ := args["eventId"].(string)
			ref, cerr := s.CancelMeeting(toolCtx.Context(), eventID)
			return eventPayload(ref, cerr), nil
		},
	)
}

func listMeetingsTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"listMeetings",
		"List calendar events, optionally filtered by status (proposed, accepted, confirmed, booked, rejected, cancelled, failed).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "string",
					"description": "Optional status filter",
				},
			},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			status, _ := args["status"].(string)
			events, cerr := s.ListMeetings(toolCtx.Context(), status)
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			return listResult{Events: events}, nil
		},
	)
}

func upcomingMeetingsTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"upcomingMeetings",
		"List future accepted, confirmed and booked meetings in start-time order.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Optional maximum number of meetings to return",
				},
			},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			limit := 0
			if v, ok := args["limit"].(float64); ok {
				limit = int(v)
			}
			events, cerr := s.UpcomingMeetings(toolCtx.Context(), limit)
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			return listResult{Events: events}, nil
		},
	)
}

func pendingMeetingsTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"pendingMeetings",
		"List meetings still in flight: proposed or accepted but not yet confirmed.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			events, cerr := s.PendingMeetings(toolCtx.Context())
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			return listResult{Events: events}, nil
		},
	)
}

func findAvailableSlotsTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"findAvailableSlots",
		"Find free time slots of a given duration inside a window, honoring working hours and buffer around existing meetings.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"windowStart": map[string]any{
					"type":        "string",
					"description": "Window start, ISO-8601",
				},
				"windowEnd": map[string]any{
					"type":        "string",
					"description": "Window end, ISO-8601",
				},
				"durationMinutes": map[string]any{
					"type":        "integer",
					"description": "Slot length in minutes; alternatively pass duration",
				},
				"duration": map[string]any{
					"type":        "string",
					"description": "Slot length as a string like \"30m\" or \"1h\"",
				},
			},
			"required": []string{"windowStart", "windowEnd"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			windowStart, cerr := parseStart(args["windowStart"])
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			windowEnd, cerr := parseStart(args["windowEnd"])
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			duration, cerr := parseDuration(args)
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			slots, cerr := s.FindAvailableSlots(toolCtx.Context(), windowStart, windowEnd, duration)
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			return slotsResult{Slots: slots}, nil
		},
	)
}

func getPreferencesTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"getPreferences",
		"Read the owner's booking preferences (working hours, buffer, auto-accept rule).",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			prefs, cerr := s.GetPreferences(toolCtx.Context())
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			return prefsResult{Preferences: prefs}, nil
		},
	)
}

func updatePreferencesTool(s *Surface) tool.Tool {
	return tool.NewFunctionTool(
		"updatePreferences",
		"Update the owner's booking preferences. Fields omitted from the document keep their current values. Reserved for the owning agent.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"preferences": map[string]any{
					"type":        "object",
					"description": "Preferences document; omitted fields keep their stored values",
				},
			},
			"required": []string{"preferences"},
		},
		func(toolCtx *tool.Context, args map[string]any) (any, error) {
			raw, _ := args["preferences"].(map[string]any)
			current, cerr := s.GetPreferences(toolCtx.Context())
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			prefs, cerr := decodePreferences(raw, current)
			if cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			if cerr := s.UpdatePreferences(toolCtx.Context(), prefs); cerr != nil {
				return errorResult{Error: cerr}, nil
			}
			return prefsResult{Preferences: prefs}, nil
		},
	)
}

func eventIDSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"eventId": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"eventId"},
	}
}

func parseStart(v any) (time.Time, *core.Error) {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return time.Time{}, core.NewError(core.KindInvalidInput, "time value is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, core.NewError(core.KindInvalidInput, "malformed time %q: must be ISO-8601", raw)
	}
	return t, nil
}

// parseDuration accepts either durationMinutes (integer) or duration (a
// human-style string like "30m" or "1h").
func parseDuration(args map[string]any) (time.Duration, *core.Error) {
	if v, ok := args["durationMinutes"]; ok {
		minutes, ok := v.(float64)
		if !ok || minutes != float64(int64(minutes)) {
			return 0, core.NewError(core.KindInvalidInput, "durationMinutes must be an integer")
		}
		if minutes <= 0 {
			return 0, core.NewError(core.KindInvalidInput, "durationMinutes must be positive, got %d", int64(minutes))
		}
		return time.Duration(minutes) * time.Minute, nil
	}
	if v, ok := args["duration"].(string); ok && v != "" {
		d, err := util.ParseMeetingDuration(v)
		if err != nil {
			return 0, core.NewError(core.KindInvalidInput, "%v", err)
		}
		return d, nil
	}
	return 0, core.NewError(core.KindInvalidInput, "either durationMinutes or duration is required")
}

// decodePreferences merges the incoming document over the owner's stored
// preferences so a partial update leaves unmentioned fields untouched.
func decodePreferences(raw map[string]any, base *core.BookingPreferences) (*core.BookingPreferences, *core.Error) {
	if raw == nil {
		return nil, core.NewError(core.KindInvalidInput, "preferences object is required")
	}
	prefs := base.Clone()
	if v, ok := raw["min_buffer_minutes"].(float64); ok {
		prefs.MinBuffer = time.Duration(v) * time.Minute
	}
	if v, ok := raw["max_meetings_per_day"].(float64); ok {
		prefs.MaxMeetingsPerDay = int(v)
	}
	if v, ok := raw["blocked_counterparties"].([]any); ok {
		prefs.BlockedCounterparties = prefs.BlockedCounterparties[:0]
		for _, b := range v {
			if id, ok := b.(string); ok {
				prefs.BlockedCounterparties = append(prefs.BlockedCounterparties, id)
			}
		}
	}
	if v, ok := raw["auto_accept"].(map[string]any); ok {
		if enabled, ok := v["enabled"].(bool); ok {
			prefs.AutoAccept.Enabled = enabled
		}
		if maxMinutes, ok := v["max_duration_minutes"].(float64); ok {
			prefs.AutoAccept.MaxDuration = time.Duration(maxMinutes) * time.Minute
		}
		if whOnly, ok := v["working_hours_only"].(bool); ok {
			prefs.AutoAccept.WorkingHoursOnly = whOnly
		}
	}
	if v, ok := raw["working_hours"].(map[string]any); ok {
		hours, cerr := decodeWorkingHours(v)
		if cerr != nil {
			return nil, cerr
		}
		prefs.WorkingHours = hours
	}
	return prefs, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func decodeWorkingHours(raw map[string]any) (map[time.Weekday][]core.TimeWindow, *core.Error) {
	hours := make(map[time.Weekday][]core.TimeWindow, len(raw))
	for name, windows := range raw {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, core.NewError(core.KindInvalidInput, "unknown weekday %q", name)
		}
		list, ok := windows.([]any)
		if !ok {
			return nil, core.NewError(core.KindInvalidInput, "working hours for %s must be a list of windows", name)
		}
		for _, w := range list {
			window, ok := w.(map[string]any)
			if !ok {
				return nil, core.NewError(core.KindInvalidInput, "malformed window for %s", name)
			}
			start, _ := window["start"].(float64)
			end, _ := window["end"].(float64)
			if start < 0 || end > 24*60 || end <= start {
				return nil, core.NewError(core.KindInvalidInput,
					"window for %s must satisfy 0 <= start < end <= 1440", name)
			}
			hours[day] = append(hours[day], core.TimeWindow{Start: int(start), End: int(end)})
		}
	}
	return hours, nil
}
