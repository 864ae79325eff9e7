package application

import (
	"encoding/json"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// Recognized hook event types.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
	EventPresenceTimeout  = "presence.timeout"
)

// recognizedEvents is the closed set accepted by hook registration.
var recognizedEvents = map[string]struct{}{
	EventBookingCreated:   {},
	EventBookingConfirmed: {},
	EventBookingCancelled: {},
	EventBookingCompleted: {},
	EventPresenceTimeout:  {},
}

// HookEvent is the envelope delivered to hook handlers. Booking fields are
// set for booking.* events, presence fields for presence.timeout.
type HookEvent struct {
	Type           string
	OrganizationID string
	OccurredAt     time.Time

	BookingUID     string
	Booking        *persistence.Booking
	PreviousStatus string
	Reason         *string

	ResourceID string
	UserID     string
	Slot       time.Time
}

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	ResourceID     string
	EventTypeID    string
	OrganizationID string
	Start          time.Time
	End            time.Time
	Timezone       string
	BookerName     string
	BookerEmail    string
	Title          string
	Description    string
	// AutoConfirm seeds the booking as confirmed instead of pending.
	AutoConfirm bool
}

// TransitionParams wraps one requested booking status change.
type TransitionParams struct {
	UID    string
	To     string
	Actor  string
	Reason *string
}

// HeartbeatParams wraps one presence heartbeat batch.
type HeartbeatParams struct {
	ResourceID string
	UserID     string
	Slots      []time.Time
	Payload    json.RawMessage
}

// SlotState classifies one slot of a day view.
type SlotState string

const (
	// SlotAvailable means the slot is open and has free capacity.
	SlotAvailable SlotState = "available"
	// SlotHeld means the slot has free capacity but at least one live
	// presence holder is looking at it.
	SlotHeld SlotState = "held"
	// SlotBooked means every unit of capacity is taken.
	SlotBooked SlotState = "booked"
)

// DaySlot is one open slot of a day view with its live occupancy.
type DaySlot struct {
	Index     int
	Start     time.Time
	State     SlotState
	Capacity  int
	Occupancy int
	Holders   int
}

// DayAvailability is the resolved view of one resource day: the open slots
// only, each annotated with booking occupancy and presence holders.
type DayAvailability struct {
	ResourceID string
	Date       string
	Slots      []DaySlot
}
