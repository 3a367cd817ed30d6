// Package availability computes offerable appointment start times.
package availability

import (
	"time"

	"github.com/danigamesx/barber-ai-sub000/internal/schedule"
)

// Interval is a half-open [Start, End) busy range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotStarts returns candidate start times at the given cadence inside each
// window where a booking of length duration would fit entirely and would not
// overlap any busy interval. Candidates starting before now are dropped.
//
// Windows are scanned independently, so a slot can never straddle the gap
// between the morning and afternoon windows. A slot that would run past a
// window's close is dropped, not truncated. All times are expected to share
// one location.
func SlotStarts(windows []schedule.TimeRange, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var slots []time.Time
	for _, w := range windows {
		if !w.End.After(w.Start) {
			continue
		}
		for t := w.Start; !t.Add(duration).After(w.End); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			if overlapsAny(t, t.Add(duration), busy) {
				continue
			}
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open semantics: [start,end) overlaps [b.Start,b.End) iff
		// start < b.End && b.Start < end. A slot abutting another booking's
		// end is allowed.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
