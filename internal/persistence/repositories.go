package persistence

import (
	"context"
	"time"
)

// ResourceRepository exposes catalog operations for bookable resources.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) error
	UpdateResource(ctx context.Context, resource Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context, organizationID string) ([]Resource, error)
	// DeleteResource removes a resource. It returns ErrConflict while any
	// booking still references the resource.
	DeleteResource(ctx context.Context, id string) error
}

// ScheduleRepository stores weekly patterns and their date overrides.
// Deleting a schedule cascades to its overrides.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	GetDefaultSchedule(ctx context.Context, organizationID string) (Schedule, error)
	ListSchedules(ctx context.Context, organizationID string) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	UpsertDateOverride(ctx context.Context, override DateOverride) error
	GetDateOverride(ctx context.Context, scheduleID, date string) (DateOverride, error)
	ListDateOverrides(ctx context.Context, scheduleID string) ([]DateOverride, error)
	DeleteDateOverride(ctx context.Context, scheduleID, date string) error
}

// PresenceStore records per-user per-slot liveness plus the expiry task
// ledger. Batch operations are atomic: a reader never observes part of a
// heartbeat or leave batch.
type PresenceStore interface {
	// UpsertPresence inserts or refreshes every record in one atomic batch.
	UpsertPresence(ctx context.Context, records []PresenceRecord) error
	// DeletePresence removes the records and their expiry tasks for the
	// given slots in one atomic batch. Missing rows are not an error.
	DeletePresence(ctx context.Context, resourceID, userID string, slots []time.Time) error
	GetPresence(ctx context.Context, resourceID, userID string, slot time.Time) (PresenceRecord, error)
	// ListPresenceBySlot returns holders of one slot seen strictly after
	// activeAfter, most recent first, at most limit rows.
	ListPresenceBySlot(ctx context.Context, resourceID string, slot time.Time, activeAfter time.Time, limit int) ([]PresenceRecord, error)
	// ListPresenceByDate range-scans all slots sharing a date prefix in one
	// pass, with the same staleness filter and ordering as ListPresenceBySlot.
	ListPresenceByDate(ctx context.Context, resourceID, date string, activeAfter time.Time) ([]PresenceRecord, error)

	PutExpiryTask(ctx context.Context, task ExpiryTask) error
	GetExpiryTask(ctx context.Context, resourceID, userID string, slot time.Time) (ExpiryTask, error)
	DeleteExpiryTask(ctx context.Context, resourceID, userID string, slot time.Time) error
}

// BookingTransition describes one atomic status change applied by
// ApplyTransition.
type BookingTransition struct {
	UID          string
	FromStatus   string
	ToStatus     string
	Actor        string
	Reason       *string
	At           time.Time
	ReleaseSlots bool
}

// BookingRepository stores reservations, their occupied slots, and the audit
// history.
type BookingRepository interface {
	// CreateBooking inserts the booking and one slot row per occupied slot
	// in a single transaction. The per-slot occupancy count is checked
	// against capacity inside the same transaction; a full slot yields
	// ErrConflict and no partial writes.
	CreateBooking(ctx context.Context, booking Booking, slots []time.Time, capacity int) error
	GetBooking(ctx context.Context, uid string) (Booking, error)
	// ApplyTransition compares the current status against FromStatus inside
	// the transaction (mismatch yields ErrConflict), patches the booking,
	// appends the history entry, and releases slot rows when requested.
	ApplyTransition(ctx context.Context, transition BookingTransition) (Booking, error)
	ListHistory(ctx context.Context, uid string) ([]BookingHistoryEntry, error)
	// CountSlotOccupancy returns the number of live slot rows per slot start
	// for one resource and date.
	CountSlotOccupancy(ctx context.Context, resourceID, date string) (map[time.Time]int, error)
}

// HookRepository stores hook registrations.
type HookRepository interface {
	CreateHook(ctx context.Context, registration HookRegistration) error
	GetHook(ctx context.Context, id string) (HookRegistration, error)
	// ListHooksForEvent returns enabled registrations for one event type,
	// oldest first. Scope matching is the caller's concern.
	ListHooksForEvent(ctx context.Context, eventType string) ([]HookRegistration, error)
	SetHookEnabled(ctx context.Context, id string, enabled bool) error
	DeleteHook(ctx context.Context, id string) error
}
