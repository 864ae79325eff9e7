// Package slotindex maps timestamps to discrete 15-minute slots.
//
// A calendar day is divided into 96 buckets addressed by an integer index in
// [0, 96): index = hour*4 + minute/15 of the UTC wall clock. A slot is
// addressed by its ISO date plus index, or equivalently by the UTC instant
// marking its start. The fixed granularity keeps a day representable as a
// small integer set, so occupancy checks are set operations rather than
// interval arithmetic.
package slotindex

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// SlotsPerDay is the number of 15-minute buckets in a calendar day.
	SlotsPerDay = 96
	// SlotDuration is the fixed width of a slot.
	SlotDuration = 15 * time.Minute
	// DateLayout is the ISO date format used to address a day.
	DateLayout = "2006-01-02"
)

// ErrInvalidIndex indicates a slot index outside [0, SlotsPerDay).
var ErrInvalidIndex = errors.New("slotindex: index out of range")

// ErrInvalidTimeOfDay indicates a malformed HH:MM value.
var ErrInvalidTimeOfDay = errors.New("slotindex: invalid time of day")

// ToSlot truncates a timestamp to its containing slot and returns the ISO
// date together with the slot index. The mapping is total: any timestamp
// belongs to exactly one slot.
func ToSlot(t time.Time) (string, int) {
	utc := t.UTC()
	return utc.Format(DateLayout), utc.Hour()*4 + utc.Minute()/15
}

// Truncate aligns a timestamp down to the start of its containing slot.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(SlotDuration)
}

// SlotStart returns the UTC instant at which the slot (date, index) begins.
func SlotStart(date string, index int) (time.Time, error) {
	if index < 0 || index >= SlotsPerDay {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	day, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("slotindex: invalid date %q: %w", date, err)
	}
	return day.Add(time.Duration(index) * SlotDuration), nil
}

// ExpandInterval collects every slot touched by the half-open interval
// [start, end), keyed by ISO date with indices sorted ascending. Partially
// covered first and last slots are included. An interval with start >= end
// yields an empty map.
func ExpandInterval(start, end time.Time) map[string][]int {
	result := make(map[string][]int)
	if !start.Before(end) {
		return result
	}

	seen := make(map[string]map[int]struct{})
	// Realign to the slot boundary after each step so the walk never drifts
	// off the 15-minute grid regardless of the starting offset.
	for cursor := Truncate(start); cursor.Before(end); cursor = Truncate(cursor.Add(SlotDuration)) {
		date, index := ToSlot(cursor)
		if seen[date] == nil {
			seen[date] = make(map[int]struct{})
		}
		seen[date][index] = struct{}{}
	}

	for date, indices := range seen {
		ordered := make([]int, 0, len(indices))
		for index := range indices {
			ordered = append(ordered, index)
		}
		sort.Ints(ordered)
		result[date] = ordered
	}
	return result
}

// TimeOfDayToSlot converts a zero-padded "HH:MM" value to a slot index.
// "24:00" is accepted as the exclusive end of day and maps to SlotsPerDay.
func TimeOfDayToSlot(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	if hour == 24 && minute == 0 {
		return SlotsPerDay, nil
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return hour*4 + minute/15, nil
}
