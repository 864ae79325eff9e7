package mq

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/lifecycle"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/testfixtures"
)

func newDispatchWorker(t *testing.T) (*Worker, *testfixtures.SQLiteHarness) {
	t.Helper()
	db := testfixtures.NewSQLiteHarness(t)
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("booking")
	scheduler := testfixtures.NewManualScheduler()

	presence := application.NewPresenceService(db.Presence, scheduler, nil, 0, nil, clock.NowFunc())
	bookings := application.NewBookingService(db.Bookings, db.Resources, nil, ids.NextFunc(), clock.NowFunc(), nil)
	availability := application.NewAvailabilityService(db.Resources, db.Schedules, db.Bookings, presence, nil)

	return &Worker{
		bookings:     bookings,
		presence:     presence,
		availability: availability,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, db
}

func envelope(t *testing.T, commandType CommandType, payload any) CommandEnvelope {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return CommandEnvelope{Type: commandType, Payload: body}
}

func TestWorkerDispatch(t *testing.T) {
	start := testfixtures.ReferenceTime()

	createResource := func(t *testing.T, db *testfixtures.SQLiteHarness) persistence.Resource {
		t.Helper()
		resource := testfixtures.NewResourceFixture()
		if err := db.Resources.CreateResource(context.Background(), resource); err != nil {
			t.Fatalf("failed to create resource: %v", err)
		}
		return resource
	}

	t.Run("create booking round trip", func(t *testing.T) {
		worker, db := newDispatchWorker(t)
		resource := createResource(t, db)

		response := worker.dispatch(context.Background(), envelope(t, CommandCreateBooking, CreateBookingPayload{
			ResourceID:     resource.ID,
			EventTypeID:    "intro-call",
			OrganizationID: "org-001",
			Start:          start,
			End:            start.Add(30 * time.Minute),
			Timezone:       "UTC",
			BookerName:     "Ada Lovelace",
			BookerEmail:    "ada@example.com",
			Title:          "Intro Call",
		}))
		if !response.OK {
			t.Fatalf("expected success, got %q", response.Error)
		}
		if response.Type != "CreateBookingResponse" {
			t.Fatalf("unexpected response type %q", response.Type)
		}

		var booking persistence.Booking
		if err := json.Unmarshal(response.Payload, &booking); err != nil {
			t.Fatalf("failed to decode booking: %v", err)
		}
		if booking.Status != string(lifecycle.StatusPending) || booking.UID == "" {
			t.Fatalf("unexpected booking: %+v", booking)
		}

		// The booking is visible through GetBooking.
		response = worker.dispatch(context.Background(), envelope(t, CommandGetBooking, GetBookingPayload{UID: booking.UID}))
		if !response.OK {
			t.Fatalf("expected lookup success, got %q", response.Error)
		}
	})

	t.Run("conflict surfaces its error kind", func(t *testing.T) {
		worker, db := newDispatchWorker(t)
		resource := createResource(t, db)

		payload := CreateBookingPayload{
			ResourceID:     resource.ID,
			EventTypeID:    "intro-call",
			OrganizationID: "org-001",
			Start:          start,
			End:            start.Add(15 * time.Minute),
			Timezone:       "UTC",
			BookerEmail:    "ada@example.com",
		}
		if response := worker.dispatch(context.Background(), envelope(t, CommandCreateBooking, payload)); !response.OK {
			t.Fatalf("first booking failed: %q", response.Error)
		}
		response := worker.dispatch(context.Background(), envelope(t, CommandCreateBooking, payload))
		if response.OK {
			t.Fatal("expected conflict")
		}
		if response.Kind != "conflict" {
			t.Fatalf("expected conflict kind, got %q", response.Kind)
		}
	})

	t.Run("heartbeat then day view shows the hold", func(t *testing.T) {
		worker, db := newDispatchWorker(t)
		resource := createResource(t, db)

		response := worker.dispatch(context.Background(), envelope(t, CommandHeartbeat, HeartbeatPayload{
			ResourceID: resource.ID,
			UserID:     "user-1",
			Slots:      []time.Time{start},
		}))
		if !response.OK {
			t.Fatalf("heartbeat failed: %q", response.Error)
		}

		response = worker.dispatch(context.Background(), envelope(t, CommandDayView, DayViewPayload{
			ResourceID: resource.ID,
			Date:       "2025-03-03",
		}))
		if !response.OK {
			t.Fatalf("day view failed: %q", response.Error)
		}
		var view application.DayAvailability
		if err := json.Unmarshal(response.Payload, &view); err != nil {
			t.Fatalf("failed to decode view: %v", err)
		}
		held := 0
		for _, slot := range view.Slots {
			if slot.State == application.SlotHeld {
				held++
			}
		}
		if held != 1 {
			t.Fatalf("expected exactly one held slot, got %d", held)
		}
	})

	t.Run("validation failure surfaces its error kind", func(t *testing.T) {
		worker, _ := newDispatchWorker(t)
		response := worker.dispatch(context.Background(), envelope(t, CommandHeartbeat, HeartbeatPayload{}))
		if response.OK {
			t.Fatal("expected validation failure")
		}
		if response.Kind != "validation" {
			t.Fatalf("expected validation kind, got %q", response.Kind)
		}
	})

	t.Run("unknown command type", func(t *testing.T) {
		worker, _ := newDispatchWorker(t)
		response := worker.dispatch(context.Background(), CommandEnvelope{Type: "DeleteEverything"})
		if response.OK {
			t.Fatal("expected failure for unknown command")
		}
		if response.Type != "Error" {
			t.Fatalf("unexpected response type %q", response.Type)
		}
	})
}
