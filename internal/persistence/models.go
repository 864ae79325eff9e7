package persistence

import "time"

// Resource represents a bookable entity in the engine's catalog.
type Resource struct {
	ID             string
	OrganizationID string
	Type           string
	Timezone       string
	Quantity       int
	IsFungible     bool
	IsStandalone   bool
	IsActive       bool
	ScheduleID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveQuantity returns the bookable capacity per slot. A non-fungible
// resource behaves as a single unit regardless of its quantity.
func (r Resource) EffectiveQuantity() int {
	if !r.IsFungible {
		return 1
	}
	if r.Quantity < 1 {
		return 1
	}
	return r.Quantity
}

// WeeklyEntry is one (weekday, start, end) window of a schedule. Start and
// End are zero-padded "HH:MM" times of day, end exclusive.
type WeeklyEntry struct {
	Weekday time.Weekday
	Start   string
	End     string
}

// Schedule represents a named weekly availability pattern owned by an
// organization. At most one schedule per organization may be the default.
type Schedule struct {
	ID             string
	OrganizationID string
	Name           string
	Timezone       string
	IsDefault      bool
	Entries        []WeeklyEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Override types for DateOverride.
const (
	OverrideUnavailable = "unavailable"
	OverrideCustom      = "custom"
)

// HourRange is an explicit "HH:MM" window attached to a custom override.
type HourRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DateOverride is a per-date exception to a schedule's weekly pattern,
// keyed by (schedule, ISO date).
type DateOverride struct {
	ScheduleID string
	Date       string
	Type       string
	Ranges     []HourRange
	CreatedAt  time.Time
}

// PresenceRecord is the ephemeral soft-lock tuple for one (resource, user,
// slot). It is created and refreshed by heartbeats and removed on leave or
// expiry; it is never authoritative and self-heals via the expiry path.
type PresenceRecord struct {
	ResourceID string
	UserID     string
	Slot       time.Time
	LastSeen   time.Time
	Payload    []byte
}

// ExpiryTask tracks the pending one-shot expiry timer for a presence record.
// At most one exists per (resource, user, slot).
type ExpiryTask struct {
	ResourceID   string
	UserID       string
	Slot         time.Time
	Handle       string
	ScheduledFor time.Time
}

// Booking is a pending or confirmed reservation. Title and Description are
// snapshots taken at creation so later event-type edits do not retroactively
// alter history. UID is an opaque identifier safe to embed in unauthenticated
// follow-up links.
type Booking struct {
	UID                string
	ResourceID         string
	EventTypeID        string
	OrganizationID     string
	Start              time.Time
	End                time.Time
	Timezone           string
	Status             string
	BookerName         string
	BookerEmail        string
	Title              string
	Description        string
	CancellationReason *string
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BookingHistoryEntry is an immutable audit row appended on every status
// transition. Rows are never updated or deleted.
type BookingHistoryEntry struct {
	BookingUID string
	FromStatus string
	ToStatus   string
	Actor      string
	Reason     string
	CreatedAt  time.Time
}

// HookRegistration binds an event type to a named external handler,
// optionally scoped to one organization. Unscoped registrations fire for
// every organization.
type HookRegistration struct {
	ID             string
	EventType      string
	HandlerRef     string
	OrganizationID *string
	Enabled        bool
	CreatedAt      time.Time
}
