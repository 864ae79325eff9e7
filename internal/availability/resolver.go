// Package availability resolves which slots of a calendar day a resource is
// open on, from a weekly pattern plus per-date overrides.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/booking-engine/internal/slotindex"
)

// Entry is one weekly availability window: a weekday plus a zero-padded
// "HH:MM" start and end time of day, end exclusive.
type Entry struct {
	Weekday time.Weekday
	Start   string
	End     string
}

// Schedule is a named weekly availability pattern.
type Schedule struct {
	Entries []Entry
}

// Range is an explicit "HH:MM" window used by custom date overrides.
type Range struct {
	Start string
	End   string
}

// Override is a per-date exception to the weekly pattern. Unavailable closes
// the whole day; otherwise Ranges replace the weekly entries for that date.
type Override struct {
	Unavailable bool
	Ranges      []Range
}

// Default business-hours window applied when a resource has no schedule
// configured yet: 09:00-17:00, slot indices 36 through 67.
const (
	defaultStartIndex = 36
	defaultEndIndex   = 68
)

// DefaultHours returns the fallback open-slot set used for resources without
// a configured schedule, so they remain bookable before an admin sets one up.
func DefaultHours() []int {
	indices := make([]int, 0, defaultEndIndex-defaultStartIndex)
	for i := defaultStartIndex; i < defaultEndIndex; i++ {
		indices = append(indices, i)
	}
	return indices
}

// Resolve computes the set of open slot indices for one calendar day. An
// empty result means the resource is closed all day.
//
// Precedence:
//  1. A nil schedule falls back to DefaultHours.
//  2. An unavailable override closes the day.
//  3. A custom override with at least one range replaces the weekly pattern.
//     A custom override with no ranges is treated as if no override existed
//     and the weekly pattern applies.
//  4. Otherwise every weekly entry matching the date's weekday is unioned.
func Resolve(sched *Schedule, override *Override, date string) ([]int, error) {
	if sched == nil {
		return DefaultHours(), nil
	}

	day, err := time.ParseInLocation(slotindex.DateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("availability: invalid date %q: %w", date, err)
	}

	if override != nil {
		if override.Unavailable {
			return []int{}, nil
		}
		if len(override.Ranges) > 0 {
			return resolveRanges(override.Ranges)
		}
		// Custom override without ranges: fall through to the weekly pattern.
	}

	weekday := day.Weekday()
	ranges := make([]Range, 0, len(sched.Entries))
	for _, entry := range sched.Entries {
		if entry.Weekday != weekday {
			continue
		}
		ranges = append(ranges, Range{Start: entry.Start, End: entry.End})
	}
	return resolveRanges(ranges)
}

// resolveRanges unions the slot indices covered by the given windows,
// deduplicated and sorted ascending. Overlapping windows simply union; no
// precedence between them is needed since the result is a set.
func resolveRanges(ranges []Range) ([]int, error) {
	set := make(map[int]struct{})
	for _, r := range ranges {
		start, err := slotindex.TimeOfDayToSlot(r.Start)
		if err != nil {
			return nil, err
		}
		end, err := slotindex.TimeOfDayToSlot(r.End)
		if err != nil {
			return nil, err
		}
		for i := start; i < end && i < slotindex.SlotsPerDay; i++ {
			set[i] = struct{}{}
		}
	}

	indices := make([]int, 0, len(set))
	for i := range set {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices, nil
}
