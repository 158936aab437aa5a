package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrPastTime          = errors.New("requested time is in the past or inside the lead buffer")
	ErrSlotOccupied      = errors.New("slot is already occupied")
	ErrOutOfWorkingHours = errors.New("requested time is outside working hours")
	ErrWeekend           = errors.New("requested date falls on a weekend")
)

const dateLayout = "2006-01-02"

// Rules fixes the business scheduling parameters. All date and "is past"
// decisions are made in Location, never in the caller's timezone.
type Rules struct {
	Location        *time.Location
	DayStartMinutes int // minutes from midnight, first candidate slot
	DayEndMinutes   int // minutes from midnight, exclusive upper bound
	StepMinutes     int
	LeadTime        time.Duration
}

func NewRules(timezone, dayStart, dayEnd string, stepMinutes int, leadTime time.Duration) (Rules, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Rules{}, fmt.Errorf("load business timezone: %w", err)
	}

	start, err := ParseClock(dayStart)
	if err != nil {
		return Rules{}, fmt.Errorf("parse workday start: %w", err)
	}
	end, err := ParseClock(dayEnd)
	if err != nil {
		return Rules{}, fmt.Errorf("parse workday end: %w", err)
	}
	if end <= start {
		return Rules{}, errors.New("workday end must be after workday start")
	}
	if stepMinutes <= 0 {
		return Rules{}, errors.New("slot step must be positive")
	}

	return Rules{
		Location:        loc,
		DayStartMinutes: start,
		DayEndMinutes:   end,
		StepMinutes:     stepMinutes,
		LeadTime:        leadTime,
	}, nil
}

// ParseClock converts "HH:MM" to minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return h*60 + m, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// slotInstant resolves a (date, minutes-from-midnight) pair to the absolute
// instant it starts at in the business timezone.
func (r Rules) slotInstant(date string, minutes int) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, r.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day.Add(time.Duration(minutes) * time.Minute), nil
}

// ComputeDaySlots produces the candidate slots for one business day in
// ascending time order. A slot whose start is within LeadTime of now counts
// as passed even when it is also booked; otherwise it is occupied when its
// time appears in booked and available when it does not. For days fully in
// the future only booked matters.
func ComputeDaySlots(date string, booked map[string]bool, now time.Time, r Rules) ([]Slot, error) {
	if _, err := time.ParseInLocation(dateLayout, date, r.Location); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	cutoff := now.Add(r.LeadTime)

	slots := make([]Slot, 0, (r.DayEndMinutes-r.DayStartMinutes)/r.StepMinutes)
	for m := r.DayStartMinutes; m < r.DayEndMinutes; m += r.StepMinutes {
		start, err := r.slotInstant(date, m)
		if err != nil {
			return nil, err
		}

		s := Slot{Time: FormatClock(m)}
		switch {
		case !cutoff.Before(start):
			s.Passed = true
		case booked[s.Time]:
			s.Occupied = true
		default:
			s.Available = true
		}
		slots = append(slots, s)
	}

	return slots, nil
}

// Validate decides whether a (date, time) pair can be booked against the
// given occupancy set. Checks short-circuit in a fixed order: past time,
// occupied slot, working-hours window, weekend. A nil return means the slot
// is bookable.
func Validate(date, clock string, booked map[string]bool, now time.Time, r Rules) error {
	minutes, err := ParseClock(clock)
	if err != nil {
		return err
	}

	start, err := r.slotInstant(date, minutes)
	if err != nil {
		return err
	}

	if !now.Add(r.LeadTime).Before(start) {
		return ErrPastTime
	}

	if booked[FormatClock(minutes)] {
		return ErrSlotOccupied
	}

	if minutes < r.DayStartMinutes || minutes >= r.DayEndMinutes {
		return ErrOutOfWorkingHours
	}

	day, _ := time.ParseInLocation(dateLayout, date, r.Location)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return ErrWeekend
	}

	return nil
}
