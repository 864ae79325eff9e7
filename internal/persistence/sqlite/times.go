package sqlite

import (
	"fmt"
	"time"
)

// Timestamps are stored as fixed-width RFC3339 UTC text with padded
// nanoseconds so lexical and temporal ordering agree, which the ORDER BY
// clauses on timestamp columns rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse %s %q: %w", column, value, err)
	}
	return t.UTC(), nil
}
