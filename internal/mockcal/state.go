// Package mockcal is an in-memory stand-in for the squad calendar service,
// used in local development and tests. It speaks the same single-endpoint
// query protocol the real calendar does.
package mockcal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shiftbot/backend/internal/calendar"
)

// State holds the mutable schedule, keyed by YYYYMMDD date. Safe for
// concurrent use.
type State struct {
	mu       sync.Mutex
	schedule map[string][]calendar.Shift
}

// NewState returns a State seeded with a default schedule around today:
// three crews tonight, two tomorrow morning, and a split the day after.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset discards all changes and reseeds the default schedule.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := time.Now()
	s.schedule = map[string][]calendar.Shift{
		today.Format("20060102"): {
			{Squad: 34, ShiftStart: "1800", ShiftEnd: "0600", CrewStatus: "available"},
			{Squad: 42, ShiftStart: "1800", ShiftEnd: "0600", CrewStatus: "available"},
			{Squad: 43, ShiftStart: "1800", ShiftEnd: "0600", CrewStatus: "available"},
		},
		today.AddDate(0, 0, 1).Format("20060102"): {
			{Squad: 35, ShiftStart: "0600", ShiftEnd: "1800", CrewStatus: "available"},
			{Squad: 42, ShiftStart: "0600", ShiftEnd: "1800", CrewStatus: "available"},
		},
		today.AddDate(0, 0, 2).Format("20060102"): {
			{Squad: 54, ShiftStart: "0600", ShiftEnd: "1800", CrewStatus: "available"},
			{Squad: 34, ShiftStart: "1800", ShiftEnd: "0600", CrewStatus: "available"},
		},
	}
}

// DateCount returns the number of dates with entries.
func (s *State) DateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schedule)
}

// GetSchedule returns all shifts within [startDate, endDate], sorted by
// date. A nonzero squad filters to that squad; dates without matches are
// omitted.
func (s *State) GetSchedule(startDate, endDate string, squad int) calendar.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]string, 0, len(s.schedule))
	for date := range s.schedule {
		if startDate <= date && date <= endDate {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	var out calendar.Schedule
	for _, date := range dates {
		shifts := s.schedule[date]
		if squad != 0 {
			var filtered []calendar.Shift
			for _, sh := range shifts {
				if sh.Squad == squad {
					filtered = append(filtered, sh)
				}
			}
			shifts = filtered
		} else {
			shifts = append([]calendar.Shift(nil), shifts...)
		}
		if len(shifts) > 0 {
			out.Dates = append(out.Dates, calendar.ScheduleDate{Date: date, Shifts: shifts})
		}
	}
	return out
}

// GetScheduleDay returns the shifts for one date, which may be empty.
func (s *State) GetScheduleDay(date string) calendar.ScheduleDate {
	s.mu.Lock()
	defer s.mu.Unlock()

	shifts := append([]calendar.Shift(nil), s.schedule[date]...)
	if shifts == nil {
		shifts = []calendar.Shift{}
	}
	return calendar.ScheduleDate{Date: date, Shifts: shifts}
}

// AddShift schedules a crew. An existing matching shift is flipped back to
// available rather than duplicated.
func (s *State) AddShift(date, shiftStart, shiftEnd string, squad int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sh := range s.schedule[date] {
		if sh.Squad == squad && sh.ShiftStart == shiftStart && sh.ShiftEnd == shiftEnd {
			s.schedule[date][i].CrewStatus = "available"
			return map[string]any{
				"status":  "success",
				"action":  "addShift",
				"message": fmt.Sprintf("Updated Squad %d to available for %s %s-%s", squad, date, shiftStart, shiftEnd),
			}
		}
	}

	s.schedule[date] = append(s.schedule[date], calendar.Shift{
		Squad:      squad,
		ShiftStart: shiftStart,
		ShiftEnd:   shiftEnd,
		CrewStatus: "available",
	})
	return map[string]any{
		"status":  "success",
		"action":  "addShift",
		"message": fmt.Sprintf("Added shift for Squad %d on %s %s-%s", squad, date, shiftStart, shiftEnd),
	}
}

// NoCrew marks a shift unavailable, creating it in that state if it does
// not exist yet.
func (s *State) NoCrew(date, shiftStart, shiftEnd string, squad int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sh := range s.schedule[date] {
		if sh.Squad == squad && sh.ShiftStart == shiftStart && sh.ShiftEnd == shiftEnd {
			s.schedule[date][i].CrewStatus = "unavailable"
			return map[string]any{
				"status":  "success",
				"action":  "noCrew",
				"message": fmt.Sprintf("Marked Squad %d as no crew for %s %s-%s", squad, date, shiftStart, shiftEnd),
			}
		}
	}

	s.schedule[date] = append(s.schedule[date], calendar.Shift{
		Squad:      squad,
		ShiftStart: shiftStart,
		ShiftEnd:   shiftEnd,
		CrewStatus: "unavailable",
	})
	return map[string]any{
		"status":  "success",
		"action":  "noCrew",
		"message": fmt.Sprintf("Created and marked Squad %d as no crew for %s %s-%s", squad, date, shiftStart, shiftEnd),
	}
}

// ObliterateShift removes a shift entirely.
func (s *State) ObliterateShift(date, shiftStart, shiftEnd string, squad int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	shifts, ok := s.schedule[date]
	if !ok {
		return map[string]any{
			"status":  "success",
			"action":  "obliterateShift",
			"message": fmt.Sprintf("No shifts found for %s", date),
		}
	}

	kept := shifts[:0:0]
	removed := 0
	for _, sh := range shifts {
		if sh.Squad == squad && sh.ShiftStart == shiftStart && sh.ShiftEnd == shiftEnd {
			removed++
			continue
		}
		kept = append(kept, sh)
	}
	s.schedule[date] = kept

	if removed > 0 {
		return map[string]any{
			"status":  "success",
			"action":  "obliterateShift",
			"message": fmt.Sprintf("Obliterated shift for Squad %d on %s %s-%s", squad, date, shiftStart, shiftEnd),
		}
	}
	return map[string]any{
		"status":  "success",
		"action":  "obliterateShift",
		"message": fmt.Sprintf("Shift not found for Squad %d on %s %s-%s", squad, date, shiftStart, shiftEnd),
	}
}
