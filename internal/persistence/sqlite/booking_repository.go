package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/slotindex"
)

// BookingRepository implements persistence.BookingRepository on SQLite.
// Slot occupancy is a row per (booking, slot); the live row count per
// (resource, slot) is the pooled-capacity counter, checked and mutated
// inside the same transaction as the booking change it belongs to.
type BookingRepository struct {
	pool *ConnectionPool
}

// NewBookingRepository creates a SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// CreateBooking inserts the booking and its slot rows in one transaction.
// Any slot already at capacity aborts the whole insert with ErrConflict.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking, slots []time.Time, capacity int) error {
	if booking.UID == "" {
		return persistence.ErrConstraintViolation
	}
	if capacity < 1 {
		capacity = 1
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, slot := range slots {
			var occupied int
			err := tx.QueryRow(`
				SELECT COUNT(*) FROM booking_slots WHERE resource_id = ? AND slot_start = ?
			`, booking.ResourceID, formatTime(slot)).Scan(&occupied)
			if err != nil {
				return mapError(err)
			}
			if occupied >= capacity {
				return fmt.Errorf("%w: slot %s is fully booked", persistence.ErrConflict, formatTime(slot))
			}
		}

		_, err := tx.Exec(`
			INSERT INTO bookings (uid, resource_id, event_type_id, organization_id, start_time, end_time, timezone, status,
				booker_name, booker_email, title, description, cancellation_reason, cancelled_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			booking.UID,
			booking.ResourceID,
			booking.EventTypeID,
			booking.OrganizationID,
			formatTime(booking.Start),
			formatTime(booking.End),
			booking.Timezone,
			booking.Status,
			booking.BookerName,
			booking.BookerEmail,
			booking.Title,
			booking.Description,
			nullString(booking.CancellationReason),
			nullTime(booking.CancelledAt),
			formatTime(booking.CreatedAt),
			formatTime(booking.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}

		for _, slot := range slots {
			date, _ := slotindex.ToSlot(slot)
			_, err := tx.Exec(`
				INSERT INTO booking_slots (booking_uid, resource_id, slot_start, slot_date)
				VALUES (?, ?, ?, ?)
			`, booking.UID, booking.ResourceID, formatTime(slot), date)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetBooking retrieves a booking by its uid.
func (r *BookingRepository) GetBooking(ctx context.Context, uid string) (persistence.Booking, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT uid, resource_id, event_type_id, organization_id, start_time, end_time, timezone, status,
			booker_name, booker_email, title, description, cancellation_reason, cancelled_at, created_at, updated_at
		FROM bookings WHERE uid = ?
	`, uid)
	return scanBooking(row)
}

// ApplyTransition performs one status change atomically: it re-reads the
// current status inside the transaction and fails with ErrConflict when a
// concurrent transition got there first, then patches the booking, appends
// the history row, and releases slot rows when requested.
func (r *BookingRepository) ApplyTransition(ctx context.Context, transition persistence.BookingTransition) (persistence.Booking, error) {
	var updated persistence.Booking
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRow(`SELECT status FROM bookings WHERE uid = ?`, transition.UID).Scan(&current)
		if err != nil {
			return mapError(err)
		}
		if current != transition.FromStatus {
			return fmt.Errorf("%w: booking %s is %s, expected %s",
				persistence.ErrConflict, transition.UID, current, transition.FromStatus)
		}

		var cancelledAt sql.NullString
		var reason sql.NullString
		if transition.ToStatus == "cancelled" {
			cancelledAt = sql.NullString{String: formatTime(transition.At), Valid: true}
			reason = nullString(transition.Reason)
		}

		if transition.ToStatus == "cancelled" {
			_, err = tx.Exec(`
				UPDATE bookings SET status = ?, cancellation_reason = ?, cancelled_at = ?, updated_at = ?
				WHERE uid = ?
			`, transition.ToStatus, reason, cancelledAt, formatTime(transition.At), transition.UID)
		} else {
			_, err = tx.Exec(`
				UPDATE bookings SET status = ?, updated_at = ? WHERE uid = ?
			`, transition.ToStatus, formatTime(transition.At), transition.UID)
		}
		if err != nil {
			return mapError(err)
		}

		var reasonText string
		if transition.Reason != nil {
			reasonText = *transition.Reason
		}
		_, err = tx.Exec(`
			INSERT INTO booking_history (booking_uid, from_status, to_status, actor, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, transition.UID, transition.FromStatus, transition.ToStatus, transition.Actor, reasonText, formatTime(transition.At))
		if err != nil {
			return mapError(err)
		}

		if transition.ReleaseSlots {
			if _, err := tx.Exec(`DELETE FROM booking_slots WHERE booking_uid = ?`, transition.UID); err != nil {
				return mapError(err)
			}
		}

		row := tx.QueryRow(`
			SELECT uid, resource_id, event_type_id, organization_id, start_time, end_time, timezone, status,
				booker_name, booker_email, title, description, cancellation_reason, cancelled_at, created_at, updated_at
			FROM bookings WHERE uid = ?
		`, transition.UID)
		updated, err = scanBooking(row)
		return err
	})
	if err != nil {
		return persistence.Booking{}, err
	}
	return updated, nil
}

// ListHistory returns a booking's audit rows oldest first.
func (r *BookingRepository) ListHistory(ctx context.Context, uid string) ([]persistence.BookingHistoryEntry, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT booking_uid, from_status, to_status, actor, reason, created_at
		FROM booking_history WHERE booking_uid = ?
		ORDER BY id ASC
	`, uid)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []persistence.BookingHistoryEntry
	for rows.Next() {
		var entry persistence.BookingHistoryEntry
		var createdAt string
		if err := rows.Scan(&entry.BookingUID, &entry.FromStatus, &entry.ToStatus, &entry.Actor, &entry.Reason, &createdAt); err != nil {
			return nil, mapError(err)
		}
		if entry.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return entries, nil
}

// CountSlotOccupancy returns live slot-row counts per slot start for one
// resource and date.
func (r *BookingRepository) CountSlotOccupancy(ctx context.Context, resourceID, date string) (map[time.Time]int, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT slot_start, COUNT(*)
		FROM booking_slots
		WHERE resource_id = ? AND slot_date = ?
		GROUP BY slot_start
	`, resourceID, date)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[time.Time]int)
	for rows.Next() {
		var slotStart string
		var count int
		if err := rows.Scan(&slotStart, &count); err != nil {
			return nil, mapError(err)
		}
		slot, err := parseTime("slot_start", slotStart)
		if err != nil {
			return nil, err
		}
		counts[slot] = count
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return counts, nil
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var booking persistence.Booking
	var start, end, createdAt, updatedAt string
	var reason, cancelledAt sql.NullString

	err := row.Scan(
		&booking.UID,
		&booking.ResourceID,
		&booking.EventTypeID,
		&booking.OrganizationID,
		&start,
		&end,
		&booking.Timezone,
		&booking.Status,
		&booking.BookerName,
		&booking.BookerEmail,
		&booking.Title,
		&booking.Description,
		&reason,
		&cancelledAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Booking{}, mapError(err)
	}

	if reason.Valid {
		booking.CancellationReason = &reason.String
	}
	if cancelledAt.Valid {
		at, err := parseTime("cancelled_at", cancelledAt.String)
		if err != nil {
			return persistence.Booking{}, err
		}
		booking.CancelledAt = &at
	}
	if booking.Start, err = parseTime("start_time", start); err != nil {
		return persistence.Booking{}, err
	}
	if booking.End, err = parseTime("end_time", end); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
