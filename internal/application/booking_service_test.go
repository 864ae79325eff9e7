package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/lifecycle"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/testfixtures"
)

type bookingHarness struct {
	service *BookingService
	db      *testfixtures.SQLiteHarness
	clock   *testfixtures.Clock
	trigger *recordingTrigger
}

func newBookingHarness(t *testing.T) *bookingHarness {
	t.Helper()
	db := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(time.Time{})
	trigger := &recordingTrigger{}
	ids := testfixtures.NewIDGenerator("booking")
	service := NewBookingService(db.Bookings, db.Resources, trigger, ids.NextFunc(), clock.NowFunc(), nil)
	return &bookingHarness{service: service, db: db, clock: clock, trigger: trigger}
}

func (h *bookingHarness) createResource(t *testing.T, opts ...testfixtures.ResourceOption) persistence.Resource {
	t.Helper()
	resource := testfixtures.NewResourceFixture(opts...)
	if err := h.db.Resources.CreateResource(context.Background(), resource); err != nil {
		t.Fatalf("failed to create resource: %v", err)
	}
	return resource
}

func bookingInput(resourceID string, start time.Time, duration time.Duration) BookingInput {
	return BookingInput{
		ResourceID:     resourceID,
		EventTypeID:    "intro-call",
		OrganizationID: "org-001",
		Start:          start,
		End:            start.Add(duration),
		Timezone:       "UTC",
		BookerName:     "Ada Lovelace",
		BookerEmail:    "ada@example.com",
		Title:          "Intro Call",
		Description:    "30 minute introduction",
	}
}

func TestBookingServiceCreate(t *testing.T) {
	start := testfixtures.ReferenceTime()

	t.Run("creates a pending booking occupying its slots", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)

		booking, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 30*time.Minute))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if booking.Status != string(lifecycle.StatusPending) {
			t.Fatalf("expected pending status, got %s", booking.Status)
		}
		if booking.UID == "" {
			t.Fatal("expected uid to be assigned")
		}

		occupancy, err := h.db.Bookings.CountSlotOccupancy(context.Background(), resource.ID, "2025-03-03")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if len(occupancy) != 2 {
			t.Fatalf("expected 2 occupied slots, got %d", len(occupancy))
		}

		events := h.trigger.recorded()
		if len(events) != 1 || events[0].Type != EventBookingCreated {
			t.Fatalf("expected booking.created event, got %v", events)
		}
		if events[0].Booking == nil || events[0].Booking.UID != booking.UID {
			t.Fatalf("expected event to carry the booking snapshot, got %+v", events[0])
		}
	})

	t.Run("auto confirm seeds confirmed status", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)

		input := bookingInput(resource.ID, start, 15*time.Minute)
		input.AutoConfirm = true
		booking, err := h.service.Create(context.Background(), input)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if booking.Status != string(lifecycle.StatusConfirmed) {
			t.Fatalf("expected confirmed status, got %s", booking.Status)
		}
	})

	t.Run("rejects misaligned interval", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)

		input := bookingInput(resource.ID, start.Add(5*time.Minute), 15*time.Minute)
		_, err := h.service.Create(context.Background(), input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["interval"]; !ok {
			t.Fatalf("expected interval field error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("rejects inactive resource", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t, testfixtures.WithInactive())

		_, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["resourceId"]; !ok {
			t.Fatalf("expected resourceId field error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("unknown resource maps to not found", func(t *testing.T) {
		h := newBookingHarness(t)
		_, err := h.service.Create(context.Background(), bookingInput("resource-missing", start, 15*time.Minute))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("full slot yields conflict", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)

		if _, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute)); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		_, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute))
		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected conflict error, got %v", err)
		}
		if len(h.trigger.recorded()) != 1 {
			t.Fatal("expected no event for the rejected booking")
		}
	})

	t.Run("fungible quantity admits overlapping bookings up to capacity", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t, testfixtures.WithQuantity(2))

		for i := 0; i < 2; i++ {
			if _, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute)); err != nil {
				t.Fatalf("create %d failed: %v", i+1, err)
			}
		}
		_, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute))
		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected conflict on third booking, got %v", err)
		}
	})
}

func TestBookingServiceTransition(t *testing.T) {
	start := testfixtures.ReferenceTime()

	create := func(t *testing.T, h *bookingHarness, resourceID string) persistence.Booking {
		t.Helper()
		booking, err := h.service.Create(context.Background(), bookingInput(resourceID, start, 15*time.Minute))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		return booking
	}

	t.Run("confirm fires booking.confirmed with previous status", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)
		booking := create(t, h, resource.ID)

		updated, err := h.service.Transition(context.Background(), TransitionParams{
			UID:   booking.UID,
			To:    string(lifecycle.StatusConfirmed),
			Actor: "host",
		})
		if err != nil {
			t.Fatalf("transition failed: %v", err)
		}
		if updated.Status != string(lifecycle.StatusConfirmed) {
			t.Fatalf("expected confirmed, got %s", updated.Status)
		}

		events := h.trigger.recorded()
		if len(events) != 2 {
			t.Fatalf("expected created + confirmed events, got %d", len(events))
		}
		confirmed := events[1]
		if confirmed.Type != EventBookingConfirmed || confirmed.PreviousStatus != string(lifecycle.StatusPending) {
			t.Fatalf("unexpected event: %+v", confirmed)
		}
	})

	t.Run("cancellation stamps reason and releases capacity", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)
		booking := create(t, h, resource.ID)

		updated, err := h.service.Transition(context.Background(), TransitionParams{
			UID:    booking.UID,
			To:     string(lifecycle.StatusCancelled),
			Actor:  "booker",
			Reason: strPtr("found a better time"),
		})
		if err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		if updated.CancellationReason == nil || *updated.CancellationReason != "found a better time" {
			t.Fatalf("expected reason to be stamped, got %v", updated.CancellationReason)
		}
		if updated.CancelledAt == nil {
			t.Fatal("expected cancelledAt to be stamped")
		}

		// The slot is free again for someone else.
		if _, err := h.service.Create(context.Background(), bookingInput(resource.ID, start, 15*time.Minute)); err != nil {
			t.Fatalf("rebooking the released slot failed: %v", err)
		}
	})

	t.Run("terminal status rejects further transitions", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)
		booking := create(t, h, resource.ID)

		if _, err := h.service.Transition(context.Background(), TransitionParams{UID: booking.UID, To: string(lifecycle.StatusCancelled), Actor: "booker"}); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		_, err := h.service.Transition(context.Background(), TransitionParams{UID: booking.UID, To: string(lifecycle.StatusConfirmed), Actor: "host"})
		var tErr *lifecycle.InvalidTransitionError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected invalid transition error, got %v", err)
		}
		if len(tErr.Allowed) != 0 {
			t.Fatalf("expected empty allowed set, got %v", tErr.Allowed)
		}
	})

	t.Run("pending cannot complete directly", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)
		booking := create(t, h, resource.ID)

		_, err := h.service.Transition(context.Background(), TransitionParams{UID: booking.UID, To: string(lifecycle.StatusCompleted), Actor: "host"})
		var tErr *lifecycle.InvalidTransitionError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected invalid transition error, got %v", err)
		}
	})

	t.Run("unknown booking maps to not found", func(t *testing.T) {
		h := newBookingHarness(t)
		_, err := h.service.Transition(context.Background(), TransitionParams{UID: "missing", To: string(lifecycle.StatusConfirmed), Actor: "host"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("history records every transition in order", func(t *testing.T) {
		h := newBookingHarness(t)
		resource := h.createResource(t)
		booking := create(t, h, resource.ID)

		if _, err := h.service.Transition(context.Background(), TransitionParams{UID: booking.UID, To: string(lifecycle.StatusConfirmed), Actor: "host"}); err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
		if _, err := h.service.Transition(context.Background(), TransitionParams{UID: booking.UID, To: string(lifecycle.StatusCompleted), Actor: "host"}); err != nil {
			t.Fatalf("complete failed: %v", err)
		}

		entries, err := h.service.History(context.Background(), booking.UID)
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 history entries, got %d", len(entries))
		}
		if entries[0].ToStatus != string(lifecycle.StatusConfirmed) || entries[1].ToStatus != string(lifecycle.StatusCompleted) {
			t.Fatalf("unexpected history order: %+v", entries)
		}
	})
}
