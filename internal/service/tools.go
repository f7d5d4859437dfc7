package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/calendar"
	"github.com/shiftbot/backend/internal/llm"
)

// Tools exposes the read-only schedule queries the agentic model may call
// before committing to an interpretation.
type Tools struct {
	Calendar *calendar.Client
	Logger   zerolog.Logger
}

func squadParam() map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "Squad number (34, 35, 42, 43, or 54)",
		"enum":        []int{34, 35, 42, 43, 54},
	}
}

// Definitions returns the tool schemas bound to the model.
func (t *Tools) Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        "get_schedule",
			Description: "Fetch the current schedule from the calendar service for a date range. Use this to check what shifts are currently scheduled.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start_date": map[string]any{"type": "string", "description": "Start date in YYYYMMDD format"},
					"end_date":   map[string]any{"type": "string", "description": "End date in YYYYMMDD format"},
					"squad":      squadParam(),
				},
				"required": []string{"start_date", "end_date"},
			},
		},
		{
			Name:        "check_squad_scheduled",
			Description: "Check if a specific squad is currently scheduled for a specific shift.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"squad":       squadParam(),
					"date":        map[string]any{"type": "string", "description": "Date in YYYYMMDD format"},
					"shift_start": map[string]any{"type": "string", "description": "Shift start time in HHMM format"},
					"shift_end":   map[string]any{"type": "string", "description": "Shift end time in HHMM format"},
				},
				"required": []string{"squad", "date", "shift_start", "shift_end"},
			},
		},
		{
			Name:        "count_active_crews",
			Description: "Count how many crews will be active during a specific shift. Use this to check if removing a crew would leave the station out of service.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":            map[string]any{"type": "string", "description": "Date in YYYYMMDD format"},
					"shift_start":     map[string]any{"type": "string", "description": "Shift start time in HHMM format"},
					"shift_end":       map[string]any{"type": "string", "description": "Shift end time in HHMM format"},
					"excluding_squad": map[string]any{"type": "integer", "description": "Squad to exclude from the count, for what-if checks"},
				},
				"required": []string{"date", "shift_start", "shift_end"},
			},
		},
		{
			Name:        "parse_time_reference",
			Description: "Parse a natural language time reference (e.g. 'tonight', 'Saturday morning') into a date and shift window.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"time_reference":    map[string]any{"type": "string", "description": "Natural language time reference"},
					"current_timestamp": map[string]any{"type": "integer", "description": "Current Unix timestamp for context"},
				},
				"required": []string{"time_reference", "current_timestamp"},
			},
		},
	}
}

// Execute runs one tool call and returns its result serialized as JSON.
// Failures are returned in-band as {"error": ...}; tool errors never abort
// the workflow.
func (t *Tools) Execute(ctx context.Context, call llm.ToolCall) string {
	t.Logger.Info().Str("tool", call.Name).RawJSON("args", normalizeArgs(call.Arguments)).Msg("executing tool")

	result := func() any {
		switch call.Name {
		case "get_schedule":
			var args struct {
				StartDate string `json:"start_date"`
				EndDate   string `json:"end_date"`
				Squad     int    `json:"squad"`
			}
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return map[string]any{"error": err.Error()}
			}
			schedule, err := t.Calendar.GetSchedule(ctx, args.StartDate, args.EndDate, args.Squad)
			if err != nil {
				return map[string]any{"error": fmt.Sprintf("failed to fetch schedule: %v", err)}
			}
			return schedule

		case "check_squad_scheduled":
			var args struct {
				Squad      int    `json:"squad"`
				Date       string `json:"date"`
				ShiftStart string `json:"shift_start"`
				ShiftEnd   string `json:"shift_end"`
			}
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return map[string]any{"error": err.Error()}
			}
			return t.CheckSquadScheduled(ctx, args.Squad, args.Date, args.ShiftStart, args.ShiftEnd)

		case "count_active_crews":
			var args struct {
				Date           string `json:"date"`
				ShiftStart     string `json:"shift_start"`
				ShiftEnd       string `json:"shift_end"`
				ExcludingSquad int    `json:"excluding_squad"`
			}
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return map[string]any{"error": err.Error()}
			}
			return t.CountActiveCrews(ctx, args.Date, args.ShiftStart, args.ShiftEnd, args.ExcludingSquad)

		case "parse_time_reference":
			var args struct {
				TimeReference    string `json:"time_reference"`
				CurrentTimestamp int64  `json:"current_timestamp"`
			}
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return map[string]any{"error": err.Error()}
			}
			return ParseTimeReference(args.TimeReference, args.CurrentTimestamp)

		default:
			return map[string]any{"error": fmt.Sprintf("unknown tool: %s", call.Name)}
		}
	}()

	b, err := json.Marshal(result)
	if err != nil {
		return `{"error":"failed to serialize tool result"}`
	}
	return string(b)
}

func normalizeArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

// CheckSquadScheduled reports whether the squad has an available crew for the
// exact shift window. Query failures count as not scheduled.
func (t *Tools) CheckSquadScheduled(ctx context.Context, squad int, date, shiftStart, shiftEnd string) bool {
	schedule, err := t.Calendar.GetSchedule(ctx, date, date, squad)
	if err != nil {
		t.Logger.Error().Err(err).Msg("schedule check failed")
		return false
	}

	for _, d := range schedule.Dates {
		if d.Date != date {
			continue
		}
		for _, s := range d.Shifts {
			if s.Squad == squad && s.ShiftStart == shiftStart && s.ShiftEnd == shiftEnd && s.CrewStatus == "available" {
				return true
			}
		}
	}
	return false
}

// CountActiveCrews counts available crews covering the exact shift window,
// optionally excluding one squad to simulate its removal. Query failures
// count as zero.
func (t *Tools) CountActiveCrews(ctx context.Context, date, shiftStart, shiftEnd string, excludingSquad int) int {
	schedule, err := t.Calendar.GetSchedule(ctx, date, date, 0)
	if err != nil {
		t.Logger.Error().Err(err).Msg("crew count failed")
		return 0
	}

	count := 0
	for _, d := range schedule.Dates {
		if d.Date != date {
			continue
		}
		for _, s := range d.Shifts {
			if s.ShiftStart == shiftStart && s.ShiftEnd == shiftEnd && s.CrewStatus == "available" && s.Squad != excludingSquad {
				count++
			}
		}
	}
	return count
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseTimeReference resolves a natural language time reference against the
// message timestamp. The default window is the evening shift.
func ParseTimeReference(ref string, currentTimestamp int64) map[string]string {
	now := time.Unix(currentTimestamp, 0)
	result := map[string]string{
		"date":        now.Format("20060102"),
		"shift_start": "1800",
		"shift_end":   "0600",
	}

	lower := strings.ToLower(ref)

	if strings.Contains(lower, "morning") {
		result["shift_start"] = "0600"
		result["shift_end"] = "1800"
	} else if strings.Contains(lower, "afternoon") {
		result["shift_start"] = "1200"
		result["shift_end"] = "1800"
	} else if strings.Contains(lower, "evening") || strings.Contains(lower, "night") {
		result["shift_start"] = "1800"
		result["shift_end"] = "0600"
	}

	if strings.Contains(lower, "tomorrow") {
		result["date"] = now.AddDate(0, 0, 1).Format("20060102")
		return result
	}
	for name, day := range weekdays {
		if strings.Contains(lower, name) {
			result["date"] = nextWeekday(now, day).Format("20060102")
			return result
		}
	}
	return result
}

// nextWeekday returns the next occurrence of the given weekday strictly
// after today: when today already is that weekday, the answer is a week out.
func nextWeekday(now time.Time, day time.Weekday) time.Time {
	days := (int(day) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}
