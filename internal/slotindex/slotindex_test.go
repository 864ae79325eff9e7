package slotindex

import (
	"testing"
	"time"
)

func TestToSlot(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		timestamp time.Time
		wantDate  string
		wantIndex int
	}{
		{
			name:      "midnight is slot zero",
			timestamp: time.Date(2025, time.June, 17, 0, 0, 0, 0, time.UTC),
			wantDate:  "2025-06-17",
			wantIndex: 0,
		},
		{
			name:      "14:00 maps to index 56",
			timestamp: time.Date(2025, time.June, 17, 14, 0, 0, 0, time.UTC),
			wantDate:  "2025-06-17",
			wantIndex: 56,
		},
		{
			name:      "mid-bucket timestamps truncate down",
			timestamp: time.Date(2025, time.June, 17, 14, 14, 59, 0, time.UTC),
			wantDate:  "2025-06-17",
			wantIndex: 56,
		},
		{
			name:      "last slot of the day",
			timestamp: time.Date(2025, time.June, 17, 23, 45, 0, 0, time.UTC),
			wantDate:  "2025-06-17",
			wantIndex: 95,
		},
		{
			name:      "non-UTC input uses the UTC wall clock",
			timestamp: time.Date(2025, time.June, 17, 23, 30, 0, 0, time.FixedZone("JST", 9*60*60)),
			wantDate:  "2025-06-17",
			wantIndex: 58,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			date, index := ToSlot(tc.timestamp)
			if date != tc.wantDate || index != tc.wantIndex {
				t.Errorf("ToSlot(%v) = (%s, %d), want (%s, %d)", tc.timestamp, date, index, tc.wantDate, tc.wantIndex)
			}
		})
	}
}

func TestSlotStartRoundTrip(t *testing.T) {
	t.Parallel()

	// Round-trip containment: SlotStart(ToSlot(t)) <= t < SlotStart(ToSlot(t)) + 15m.
	samples := []time.Time{
		time.Date(2025, time.June, 17, 14, 0, 0, 0, time.UTC),
		time.Date(2025, time.June, 17, 14, 7, 33, 123456, time.UTC),
		time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, time.February, 29, 0, 0, 1, 0, time.UTC),
	}

	for _, sample := range samples {
		date, index := ToSlot(sample)
		start, err := SlotStart(date, index)
		if err != nil {
			t.Fatalf("SlotStart(%s, %d) returned error: %v", date, index, err)
		}
		if start.After(sample) {
			t.Errorf("slot start %v is after sample %v", start, sample)
		}
		if !sample.Before(start.Add(SlotDuration)) {
			t.Errorf("sample %v is not before slot end %v", sample, start.Add(SlotDuration))
		}
	}
}

func TestSlotStartRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := SlotStart("2025-06-17", 96); err == nil {
		t.Error("expected error for index 96")
	}
	if _, err := SlotStart("2025-06-17", -1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := SlotStart("17/06/2025", 0); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestExpandInterval(t *testing.T) {
	t.Parallel()

	t.Run("empty for start at or after end", func(t *testing.T) {
		at := time.Date(2025, time.June, 17, 14, 0, 0, 0, time.UTC)
		if got := ExpandInterval(at, at); len(got) != 0 {
			t.Errorf("expected empty map for zero-width interval, got %v", got)
		}
		if got := ExpandInterval(at.Add(time.Hour), at); len(got) != 0 {
			t.Errorf("expected empty map for inverted interval, got %v", got)
		}
	})

	t.Run("includes partially covered edge slots", func(t *testing.T) {
		start := time.Date(2025, time.June, 17, 14, 10, 0, 0, time.UTC)
		end := time.Date(2025, time.June, 17, 14, 50, 0, 0, time.UTC)

		got := ExpandInterval(start, end)
		want := []int{56, 57, 58, 59}
		if len(got) != 1 {
			t.Fatalf("expected one date, got %v", got)
		}
		assertIndices(t, got["2025-06-17"], want)
	})

	t.Run("spans midnight across two dates", func(t *testing.T) {
		start := time.Date(2025, time.June, 17, 23, 30, 0, 0, time.UTC)
		end := time.Date(2025, time.June, 18, 0, 30, 0, 0, time.UTC)

		got := ExpandInterval(start, end)
		if len(got) != 2 {
			t.Fatalf("expected two dates, got %v", got)
		}
		assertIndices(t, got["2025-06-17"], []int{94, 95})
		assertIndices(t, got["2025-06-18"], []int{0, 1})
	})

	t.Run("covers the interval without gaps", func(t *testing.T) {
		start := time.Date(2025, time.June, 17, 9, 3, 0, 0, time.UTC)
		end := time.Date(2025, time.June, 17, 12, 58, 0, 0, time.UTC)

		got := ExpandInterval(start, end)
		indices := got["2025-06-17"]
		if len(indices) == 0 {
			t.Fatal("expected non-empty expansion")
		}
		for i := 1; i < len(indices); i++ {
			if indices[i] != indices[i-1]+1 {
				t.Errorf("gap between indices %d and %d", indices[i-1], indices[i])
			}
		}
		first, _ := SlotStart("2025-06-17", indices[0])
		last, _ := SlotStart("2025-06-17", indices[len(indices)-1])
		if first.After(start) {
			t.Errorf("first slot %v does not cover interval start %v", first, start)
		}
		if !last.Add(SlotDuration).After(end) && !last.Add(SlotDuration).Equal(end) {
			t.Errorf("last slot end %v does not reach interval end %v", last.Add(SlotDuration), end)
		}
	})
}

func TestTimeOfDayToSlot(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{value: "00:00", want: 0},
		{value: "09:00", want: 36},
		{value: "17:00", want: 68},
		{value: "23:45", want: 95},
		{value: "24:00", want: 96},
		{value: "25:00", wantErr: true},
		{value: "09:60", wantErr: true},
		{value: "0900", wantErr: true},
		{value: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := TimeOfDayToSlot(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Errorf("TimeOfDayToSlot(%q): expected error", tc.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("TimeOfDayToSlot(%q) returned error: %v", tc.value, err)
			continue
		}
		if got != tc.want {
			t.Errorf("TimeOfDayToSlot(%q) = %d, want %d", tc.value, got, tc.want)
		}
	}
}

func assertIndices(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got indices %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got indices %v, want %v", got, want)
		}
	}
}
