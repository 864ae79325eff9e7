package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/testfixtures"
)

type availabilityHarness struct {
	service  *AvailabilityService
	presence *PresenceService
	bookings *BookingService
	db       *testfixtures.SQLiteHarness
	clock    *testfixtures.Clock
}

func newAvailabilityHarness(t *testing.T) *availabilityHarness {
	t.Helper()
	db := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(time.Time{})
	scheduler := testfixtures.NewManualScheduler()
	presence := NewPresenceService(db.Presence, scheduler, nil, DefaultPresenceTimeout, nil, clock.NowFunc())
	bookings := NewBookingService(db.Bookings, db.Resources, nil, testfixtures.NewIDGenerator("booking").NextFunc(), clock.NowFunc(), nil)
	service := NewAvailabilityService(db.Resources, db.Schedules, db.Bookings, presence, nil)
	return &availabilityHarness{service: service, presence: presence, bookings: bookings, db: db, clock: clock}
}

func (h *availabilityHarness) createResource(t *testing.T, opts ...testfixtures.ResourceOption) persistence.Resource {
	t.Helper()
	resource := testfixtures.NewResourceFixture(opts...)
	if err := h.db.Resources.CreateResource(context.Background(), resource); err != nil {
		t.Fatalf("failed to create resource: %v", err)
	}
	return resource
}

func (h *availabilityHarness) createSchedule(t *testing.T, opts ...testfixtures.ScheduleOption) persistence.Schedule {
	t.Helper()
	schedule := testfixtures.NewScheduleFixture(opts...)
	if err := h.db.Schedules.CreateSchedule(context.Background(), schedule); err != nil {
		t.Fatalf("failed to create schedule: %v", err)
	}
	return schedule
}

func slotByIndex(t *testing.T, view DayAvailability, index int) DaySlot {
	t.Helper()
	for _, slot := range view.Slots {
		if slot.Index == index {
			return slot
		}
	}
	t.Fatalf("slot %d not in view (%d slots)", index, len(view.Slots))
	return DaySlot{}
}

func TestAvailabilityServiceDayView(t *testing.T) {
	// ReferenceTime is Monday 2025-03-03 09:00 UTC, slot index 36.
	monday := "2025-03-03"
	tuesday := "2025-03-04"

	t.Run("resource without schedule falls back to business hours", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		resource := h.createResource(t)

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		if len(view.Slots) != 32 {
			t.Fatalf("expected 32 default slots, got %d", len(view.Slots))
		}
		if view.Slots[0].Index != 36 || view.Slots[len(view.Slots)-1].Index != 67 {
			t.Fatalf("expected indices 36..67, got %d..%d", view.Slots[0].Index, view.Slots[len(view.Slots)-1].Index)
		}
		for _, slot := range view.Slots {
			if slot.State != SlotAvailable {
				t.Fatalf("expected all slots available, slot %d is %s", slot.Index, slot.State)
			}
		}
	})

	t.Run("weekly pattern opens only matching weekdays", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		schedule := h.createSchedule(t, testfixtures.WithEntries(
			persistence.WeeklyEntry{Weekday: time.Monday, Start: "09:00", End: "17:00"},
		))
		resource := h.createResource(t, testfixtures.WithScheduleID(schedule.ID))

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		if len(view.Slots) != 32 {
			t.Fatalf("expected 32 Monday slots, got %d", len(view.Slots))
		}

		view, err = h.service.DayView(context.Background(), resource.ID, tuesday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		if len(view.Slots) != 0 {
			t.Fatalf("expected Tuesday to be closed, got %d slots", len(view.Slots))
		}
	})

	t.Run("organization default schedule applies without explicit reference", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		h.createSchedule(t,
			testfixtures.WithDefault(),
			testfixtures.WithEntries(persistence.WeeklyEntry{Weekday: time.Monday, Start: "10:00", End: "12:00"}),
		)
		resource := h.createResource(t)

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		if len(view.Slots) != 8 {
			t.Fatalf("expected 8 slots from the default schedule, got %d", len(view.Slots))
		}
		if view.Slots[0].Index != 40 {
			t.Fatalf("expected first index 40, got %d", view.Slots[0].Index)
		}
	})

	t.Run("unavailable override closes the day", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		schedule := h.createSchedule(t)
		resource := h.createResource(t, testfixtures.WithScheduleID(schedule.ID))

		err := h.db.Schedules.UpsertDateOverride(context.Background(), persistence.DateOverride{
			ScheduleID: schedule.ID,
			Date:       monday,
			Type:       persistence.OverrideUnavailable,
			CreatedAt:  h.clock.Now(),
		})
		if err != nil {
			t.Fatalf("upsert override failed: %v", err)
		}

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		if len(view.Slots) != 0 {
			t.Fatalf("expected closed day, got %d slots", len(view.Slots))
		}
	})

	t.Run("custom override replaces the weekly pattern", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		schedule := h.createSchedule(t)
		resource := h.createResource(t, testfixtures.WithScheduleID(schedule.ID))

		err := h.db.Schedules.UpsertDateOverride(context.Background(), persistence.DateOverride{
			ScheduleID: schedule.ID,
			Date:       monday,
			Type:       persistence.OverrideCustom,
			Ranges:     []persistence.HourRange{{Start: "14:00", End: "15:00"}},
			CreatedAt:  h.clock.Now(),
		})
		if err != nil {
			t.Fatalf("upsert override failed: %v", err)
		}

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		if len(view.Slots) != 4 {
			t.Fatalf("expected 4 override slots, got %d", len(view.Slots))
		}
		if view.Slots[0].Index != 56 {
			t.Fatalf("expected first index 56, got %d", view.Slots[0].Index)
		}
	})

	t.Run("booked and held states", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		resource := h.createResource(t)
		start := testfixtures.ReferenceTime()

		if _, err := h.bookings.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute)); err != nil {
			t.Fatalf("create booking failed: %v", err)
		}
		held := start.Add(30 * time.Minute)
		if err := h.presence.Heartbeat(context.Background(), HeartbeatParams{
			ResourceID: resource.ID,
			UserID:     "user-1",
			Slots:      []time.Time{held},
		}); err != nil {
			t.Fatalf("heartbeat failed: %v", err)
		}

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}

		booked := slotByIndex(t, view, 36)
		if booked.State != SlotBooked || booked.Occupancy != 1 {
			t.Fatalf("expected slot 36 booked, got %+v", booked)
		}
		heldSlot := slotByIndex(t, view, 38)
		if heldSlot.State != SlotHeld || heldSlot.Holders != 1 {
			t.Fatalf("expected slot 38 held, got %+v", heldSlot)
		}
		free := slotByIndex(t, view, 40)
		if free.State != SlotAvailable {
			t.Fatalf("expected slot 40 available, got %+v", free)
		}

		// The hold decays once the heartbeat goes stale.
		h.clock.Advance(DefaultPresenceTimeout + time.Second)
		view, err = h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		heldSlot = slotByIndex(t, view, 38)
		if heldSlot.State != SlotAvailable || heldSlot.Holders != 0 {
			t.Fatalf("expected stale hold to decay, got %+v", heldSlot)
		}
	})

	t.Run("partial occupancy of a fungible resource stays available", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		resource := h.createResource(t, testfixtures.WithQuantity(2))
		start := testfixtures.ReferenceTime()

		if _, err := h.bookings.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute)); err != nil {
			t.Fatalf("create booking failed: %v", err)
		}

		view, err := h.service.DayView(context.Background(), resource.ID, monday)
		if err != nil {
			t.Fatalf("day view failed: %v", err)
		}
		slot := slotByIndex(t, view, 36)
		if slot.State != SlotAvailable || slot.Occupancy != 1 || slot.Capacity != 2 {
			t.Fatalf("expected partially occupied slot to stay available, got %+v", slot)
		}
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		resource := h.createResource(t)
		_, err := h.service.DayView(context.Background(), resource.ID, "03/03/2025")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown resource maps to not found", func(t *testing.T) {
		h := newAvailabilityHarness(t)
		_, err := h.service.DayView(context.Background(), "resource-missing", monday)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
