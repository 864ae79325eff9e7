package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/lifecycle"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/slotindex"
)

// BookingService creates reservations and drives them through the status
// machine. Creation and every transition are single storage transactions;
// hook dispatch happens after commit and never affects the outcome.
type BookingService struct {
	bookings    persistence.BookingRepository
	resources   persistence.ResourceRepository
	hooks       HookTrigger
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(bookings persistence.BookingRepository, resources persistence.ResourceRepository, hooks HookTrigger, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		resources:   resources,
		hooks:       hooks,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// Create validates the request, checks per-slot capacity inside the same
// transaction that inserts the slot rows, and fires booking.created. The
// returned booking carries a fresh opaque uid.
func (s *BookingService) Create(ctx context.Context, input BookingInput) (persistence.Booking, error) {
	if s == nil {
		return persistence.Booking{}, fmt.Errorf("BookingService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "booking", "create", "resource_id", input.ResourceID)

	if err := validateBookingInput(input); err != nil {
		return persistence.Booking{}, err
	}

	resource, err := s.resources.GetResource(ctx, input.ResourceID)
	if err != nil {
		return persistence.Booking{}, mapRepositoryError(err, "resource")
	}
	vErr := &ValidationError{}
	if !resource.IsActive {
		vErr.add("resourceId", "resource is not active")
	}
	if !resource.IsStandalone {
		vErr.add("resourceId", "resource cannot be booked on its own")
	}
	if vErr.HasErrors() {
		return persistence.Booking{}, vErr
	}

	slots, err := intervalSlots(input.Start, input.End)
	if err != nil {
		return persistence.Booking{}, err
	}

	status := lifecycle.StatusPending
	if input.AutoConfirm {
		status = lifecycle.StatusConfirmed
	}

	createdAt := s.now().UTC()
	booking := persistence.Booking{
		UID:            s.idGenerator(),
		ResourceID:     input.ResourceID,
		EventTypeID:    input.EventTypeID,
		OrganizationID: input.OrganizationID,
		Start:          input.Start.UTC(),
		End:            input.End.UTC(),
		Timezone:       input.Timezone,
		Status:         string(status),
		BookerName:     strings.TrimSpace(input.BookerName),
		BookerEmail:    strings.TrimSpace(input.BookerEmail),
		Title:          input.Title,
		Description:    input.Description,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	if err := s.bookings.CreateBooking(ctx, booking, slots, resource.EffectiveQuantity()); err != nil {
		return persistence.Booking{}, mapRepositoryError(err, "booking")
	}

	logger.Info("booking created", "booking_uid", booking.UID, "status", booking.Status, "slot_count", len(slots))
	s.fire(ctx, logger, EventBookingCreated, booking, "", nil)
	return booking, nil
}

// Get returns one booking by uid.
func (s *BookingService) Get(ctx context.Context, uid string) (persistence.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, uid)
	if err != nil {
		return persistence.Booking{}, mapRepositoryError(err, "booking")
	}
	return booking, nil
}

// History returns the transition audit trail for one booking, oldest first.
func (s *BookingService) History(ctx context.Context, uid string) ([]persistence.BookingHistoryEntry, error) {
	entries, err := s.bookings.ListHistory(ctx, uid)
	if err != nil {
		return nil, mapRepositoryError(err, "booking")
	}
	return entries, nil
}

// Transition moves a booking to a new status. The transition is validated
// against the status machine, then applied with a compare-and-set on the
// current status so a concurrent transition surfaces as a ConflictError
// rather than a silent overwrite. Cancellation releases the slot rows and
// stamps the reason. The matching booking.<status> hook fires after commit.
func (s *BookingService) Transition(ctx context.Context, params TransitionParams) (persistence.Booking, error) {
	if s == nil {
		return persistence.Booking{}, fmt.Errorf("BookingService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "booking", "transition", "booking_uid", params.UID, "to", params.To)

	current, err := s.bookings.GetBooking(ctx, params.UID)
	if err != nil {
		return persistence.Booking{}, mapRepositoryError(err, "booking")
	}

	from := lifecycle.Status(current.Status)
	to := lifecycle.Status(params.To)
	if err := lifecycle.Validate(from, to); err != nil {
		return persistence.Booking{}, err
	}

	transition := persistence.BookingTransition{
		UID:          params.UID,
		FromStatus:   string(from),
		ToStatus:     string(to),
		Actor:        params.Actor,
		Reason:       params.Reason,
		At:           s.now().UTC(),
		ReleaseSlots: to == lifecycle.StatusCancelled,
	}
	updated, err := s.bookings.ApplyTransition(ctx, transition)
	if err != nil {
		return persistence.Booking{}, mapRepositoryError(err, "booking")
	}

	logger.Info("booking transitioned", "from", string(from))
	s.fire(ctx, logger, "booking."+string(to), updated, string(from), params.Reason)
	return updated, nil
}

// fire dispatches a booking event. Failures are logged and swallowed; the
// state change has already committed.
func (s *BookingService) fire(ctx context.Context, logger *slog.Logger, eventType string, booking persistence.Booking, previousStatus string, reason *string) {
	if s.hooks == nil {
		return
	}
	snapshot := booking
	event := HookEvent{
		Type:           eventType,
		OrganizationID: booking.OrganizationID,
		OccurredAt:     s.now().UTC(),
		BookingUID:     booking.UID,
		Booking:        &snapshot,
		PreviousStatus: previousStatus,
		Reason:         reason,
	}
	if _, err := s.hooks.Trigger(ctx, event); err != nil {
		logger.Error("failed to trigger booking event", "event_type", eventType, "error", err)
	}
}

func validateBookingInput(input BookingInput) error {
	vErr := &ValidationError{}
	if input.ResourceID == "" {
		vErr.add("resourceId", "resource id is required")
	}
	if input.EventTypeID == "" {
		vErr.add("eventTypeId", "event type id is required")
	}
	if input.OrganizationID == "" {
		vErr.add("organizationId", "organization id is required")
	}
	if input.BookerEmail == "" {
		vErr.add("bookerEmail", "booker email is required")
	}
	if input.Start.IsZero() || input.End.IsZero() {
		vErr.add("interval", "start and end are required")
	} else {
		if !input.End.After(input.Start) {
			vErr.add("interval", "end must be after start")
		}
		if !input.Start.Equal(slotindex.Truncate(input.Start)) || !input.End.Equal(slotindex.Truncate(input.End)) {
			vErr.add("interval", "start and end must align to 15 minute slot boundaries")
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// intervalSlots flattens the expanded interval into unique UTC slot starts,
// ascending.
func intervalSlots(start, end time.Time) ([]time.Time, error) {
	expanded := slotindex.ExpandInterval(start, end)
	slots := make([]time.Time, 0, len(expanded)*4)
	for date, indices := range expanded {
		for _, index := range indices {
			t, err := slotindex.SlotStart(date, index)
			if err != nil {
				return nil, err
			}
			slots = append(slots, t)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}
