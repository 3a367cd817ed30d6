// Package schedule holds per-tenant opening hours and calendar blocks.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayWindows is the opening schedule for a single weekday. Either window may
// be absent (empty strings); a nil *DayWindows means closed all day.
// Times are local "HH:MM" strings; MorningClose is assumed not to run past
// AfternoonOpen when both windows exist.
type DayWindows struct {
	MorningOpen    string `json:"morning_open,omitempty"`
	MorningClose   string `json:"morning_close,omitempty"`
	AfternoonOpen  string `json:"afternoon_open,omitempty"`
	AfternoonClose string `json:"afternoon_close,omitempty"`
}

// WeekHours maps weekdays to their windows. Missing entries mean closed.
type WeekHours map[time.Weekday]*DayWindows

// HoursFor returns the windows for the given weekday, nil when closed.
func (w WeekHours) HoursFor(day time.Weekday) *DayWindows {
	if w == nil {
		return nil
	}
	return w[day]
}

// TimeRange is a half-open [Start, End) interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// BlockedSlot is an explicit time range removed from a barber's availability,
// independent of blocked dates.
type BlockedSlot struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	BarberID uuid.UUID
	StartAt  time.Time
	EndAt    time.Time
	Reason   string
}

// Ranges resolves the day's windows into concrete [open, close) ranges on the
// given date. Malformed time-of-day values yield an error; callers treat that
// day as closed.
func (d *DayWindows) Ranges(date time.Time, loc *time.Location) ([]TimeRange, error) {
	if d == nil {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var ranges []TimeRange
	if d.MorningOpen != "" || d.MorningClose != "" {
		r, err := rangeOn(date, d.MorningOpen, d.MorningClose, loc)
		if err != nil {
			return nil, fmt.Errorf("schedule: morning window: %w", err)
		}
		ranges = append(ranges, r)
	}
	if d.AfternoonOpen != "" || d.AfternoonClose != "" {
		r, err := rangeOn(date, d.AfternoonOpen, d.AfternoonClose, loc)
		if err != nil {
			return nil, fmt.Errorf("schedule: afternoon window: %w", err)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func rangeOn(date time.Time, open, close string, loc *time.Location) (TimeRange, error) {
	start, err := atTimeOfDay(date, open, loc)
	if err != nil {
		return TimeRange{}, err
	}
	end, err := atTimeOfDay(date, close, loc)
	if err != nil {
		return TimeRange{}, err
	}
	if !end.After(start) {
		return TimeRange{}, fmt.Errorf("close %q not after open %q", close, open)
	}
	return TimeRange{Start: start, End: end}, nil
}

func atTimeOfDay(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", hhmm, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
