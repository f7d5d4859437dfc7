package models

import (
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Calendar actions understood by the calendar service.
const (
	ActionNoCrew          = "noCrew"
	ActionAddShift        = "addShift"
	ActionObliterateShift = "obliterateShift"
)

// ValidSquads is the closed set of squad numbers served by the station.
var ValidSquads = []int{34, 35, 42, 43, 54}

var validate = validator.New()

// Message is one chat message as received from the transport (webhook or
// poller). Immutable once built; consumed exactly once by the processor.
type Message struct {
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	GroupID    string `json:"group_id"`
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	Preview    bool   `json:"preview"`
}

// Interpretation is the model's parse of one message on the simple path.
// Action of "" and Squad of 0 mean absent.
type Interpretation struct {
	IsShiftRequest bool   `json:"is_shift_request"`
	Action         string `json:"action,omitempty" validate:"omitempty,oneof=noCrew addShift obliterateShift"`
	Squad          int    `json:"squad,omitempty" validate:"omitempty,oneof=34 35 42 43 54"`
	Date           string `json:"date"`
	ShiftStart     string `json:"shift_start"`
	ShiftEnd       string `json:"shift_end"`
	Confidence     int    `json:"confidence" validate:"gte=0,lte=100"`
	Reasoning      string `json:"reasoning"`
}

// Normalize enforces the action-implies-shift-request invariant. Models
// occasionally emit an action while claiming the message is not a shift
// request; the contradiction is resolved in favor of the action. Returns
// true if a correction was applied.
func (i *Interpretation) Normalize() bool {
	if i.Action != "" && !i.IsShiftRequest {
		i.IsShiftRequest = true
		return true
	}
	return false
}

// Validate checks the field constraints: action and squad from their closed
// sets when present, confidence within 0-100. Model output that fails here
// is rejected rather than corrected.
func (i Interpretation) Validate() error {
	return validate.Struct(i)
}

// Complete reports whether every field needed to build a CalendarCommand is
// present.
func (i Interpretation) Complete() bool {
	return i.Action != "" && i.Squad != 0 && i.Date != "" && i.ShiftStart != "" && i.ShiftEnd != ""
}

// ParsedRequest is one element of the agentic path's analysis: a single
// candidate shift change. One message may yield zero or more of these.
type ParsedRequest struct {
	Action     string `json:"action"`
	Squad      int    `json:"squad"`
	Date       string `json:"date"`
	ShiftStart string `json:"shift_start"`
	ShiftEnd   string `json:"shift_end"`
}

// CalendarCommand is a validated intent to mutate the external schedule.
// Build through NewCalendarCommand; a value that fails validation is never
// returned.
type CalendarCommand struct {
	Action     string `json:"action" validate:"required,oneof=noCrew addShift obliterateShift"`
	Date       string `json:"date" validate:"required,len=8,number"`
	ShiftStart string `json:"shift_start" validate:"required,len=4,number"`
	ShiftEnd   string `json:"shift_end" validate:"required,len=4,number"`
	Squad      int    `json:"squad" validate:"required,oneof=34 35 42 43 54"`
	Preview    bool   `json:"preview"`
}

func NewCalendarCommand(action string, squad int, date, shiftStart, shiftEnd string, preview bool) (CalendarCommand, error) {
	cmd := CalendarCommand{
		Action:     action,
		Date:       date,
		ShiftStart: shiftStart,
		ShiftEnd:   shiftEnd,
		Squad:      squad,
		Preview:    preview,
	}
	if err := validate.Struct(cmd); err != nil {
		return CalendarCommand{}, err
	}
	return cmd, nil
}

// ToQueryParams converts the command to the calendar service's query-string
// parameter set.
func (c CalendarCommand) ToQueryParams() map[string]string {
	return map[string]string{
		"action":      c.Action,
		"date":        c.Date,
		"shift_start": c.ShiftStart,
		"shift_end":   c.ShiftEnd,
		"squad":       strconv.Itoa(c.Squad),
		"preview":     strconv.FormatBool(c.Preview),
	}
}
