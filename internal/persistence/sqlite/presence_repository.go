package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/slotindex"
)

// PresenceRepository implements persistence.PresenceStore on SQLite. Records
// carry a denormalized slot_date column so a whole day can be listed with a
// single indexed range scan instead of one query per slot.
type PresenceRepository struct {
	pool *ConnectionPool
}

// NewPresenceRepository creates a SQLite presence store.
func NewPresenceRepository(pool *ConnectionPool) *PresenceRepository {
	return &PresenceRepository{pool: pool}
}

// UpsertPresence inserts or refreshes every record in one transaction, so a
// reader never observes part of a heartbeat batch.
func (r *PresenceRepository) UpsertPresence(ctx context.Context, records []persistence.PresenceRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			date, _ := slotindex.ToSlot(record.Slot)
			_, err := tx.Exec(`
				INSERT INTO presence_records (resource_id, user_id, slot_start, slot_date, last_seen, payload)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (resource_id, user_id, slot_start)
					DO UPDATE SET last_seen = excluded.last_seen, payload = excluded.payload
			`,
				record.ResourceID,
				record.UserID,
				formatTime(record.Slot),
				date,
				formatTime(record.LastSeen),
				record.Payload,
			)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// DeletePresence removes records and their expiry tasks for the given slots
// in one transaction. Missing rows are not an error.
func (r *PresenceRepository) DeletePresence(ctx context.Context, resourceID, userID string, slots []time.Time) error {
	if len(slots) == 0 {
		return nil
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, slot := range slots {
			start := formatTime(slot)
			if _, err := tx.Exec(`
				DELETE FROM presence_records WHERE resource_id = ? AND user_id = ? AND slot_start = ?
			`, resourceID, userID, start); err != nil {
				return mapError(err)
			}
			if _, err := tx.Exec(`
				DELETE FROM presence_expiry_tasks WHERE resource_id = ? AND user_id = ? AND slot_start = ?
			`, resourceID, userID, start); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetPresence retrieves one record by its exact (resource, user, slot) key.
func (r *PresenceRepository) GetPresence(ctx context.Context, resourceID, userID string, slot time.Time) (persistence.PresenceRecord, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT resource_id, user_id, slot_start, last_seen, payload
		FROM presence_records
		WHERE resource_id = ? AND user_id = ? AND slot_start = ?
	`, resourceID, userID, formatTime(slot))
	return scanPresence(row)
}

// ListPresenceBySlot returns holders of one slot seen strictly after
// activeAfter, most recent first, at most limit rows.
func (r *PresenceRepository) ListPresenceBySlot(ctx context.Context, resourceID string, slot time.Time, activeAfter time.Time, limit int) ([]persistence.PresenceRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT resource_id, user_id, slot_start, last_seen, payload
		FROM presence_records
		WHERE resource_id = ? AND slot_start = ? AND last_seen > ?
		ORDER BY last_seen DESC
		LIMIT ?
	`, resourceID, formatTime(slot), formatTime(activeAfter), limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectPresence(rows)
}

// ListPresenceByDate scans every slot of one date in a single pass.
func (r *PresenceRepository) ListPresenceByDate(ctx context.Context, resourceID, date string, activeAfter time.Time) ([]persistence.PresenceRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT resource_id, user_id, slot_start, last_seen, payload
		FROM presence_records
		WHERE resource_id = ? AND slot_date = ? AND last_seen > ?
		ORDER BY last_seen DESC
	`, resourceID, date, formatTime(activeAfter))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectPresence(rows)
}

// PutExpiryTask inserts or replaces the expiry ledger row for the task's
// (resource, user, slot) key, keeping at most one per key.
func (r *PresenceRepository) PutExpiryTask(ctx context.Context, task persistence.ExpiryTask) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO presence_expiry_tasks (resource_id, user_id, slot_start, timer_handle, scheduled_for)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (resource_id, user_id, slot_start)
			DO UPDATE SET timer_handle = excluded.timer_handle, scheduled_for = excluded.scheduled_for
	`,
		task.ResourceID,
		task.UserID,
		formatTime(task.Slot),
		task.Handle,
		formatTime(task.ScheduledFor),
	)
	return mapError(err)
}

// GetExpiryTask retrieves the pending task for a (resource, user, slot) key.
func (r *PresenceRepository) GetExpiryTask(ctx context.Context, resourceID, userID string, slot time.Time) (persistence.ExpiryTask, error) {
	var task persistence.ExpiryTask
	var slotStart, scheduledFor string

	err := r.pool.db.QueryRowContext(ctx, `
		SELECT resource_id, user_id, slot_start, timer_handle, scheduled_for
		FROM presence_expiry_tasks
		WHERE resource_id = ? AND user_id = ? AND slot_start = ?
	`, resourceID, userID, formatTime(slot)).Scan(
		&task.ResourceID,
		&task.UserID,
		&slotStart,
		&task.Handle,
		&scheduledFor,
	)
	if err != nil {
		return persistence.ExpiryTask{}, mapError(err)
	}
	if task.Slot, err = parseTime("slot_start", slotStart); err != nil {
		return persistence.ExpiryTask{}, err
	}
	if task.ScheduledFor, err = parseTime("scheduled_for", scheduledFor); err != nil {
		return persistence.ExpiryTask{}, err
	}
	return task, nil
}

// DeleteExpiryTask removes the task row. Missing rows yield ErrNotFound so
// the expiry reconciliation can tell remnants apart.
func (r *PresenceRepository) DeleteExpiryTask(ctx context.Context, resourceID, userID string, slot time.Time) error {
	result, err := r.pool.db.ExecContext(ctx, `
		DELETE FROM presence_expiry_tasks WHERE resource_id = ? AND user_id = ? AND slot_start = ?
	`, resourceID, userID, formatTime(slot))
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func scanPresence(row rowScanner) (persistence.PresenceRecord, error) {
	var record persistence.PresenceRecord
	var slotStart, lastSeen string
	var payload []byte

	err := row.Scan(&record.ResourceID, &record.UserID, &slotStart, &lastSeen, &payload)
	if err != nil {
		return persistence.PresenceRecord{}, mapError(err)
	}
	if record.Slot, err = parseTime("slot_start", slotStart); err != nil {
		return persistence.PresenceRecord{}, err
	}
	if record.LastSeen, err = parseTime("last_seen", lastSeen); err != nil {
		return persistence.PresenceRecord{}, err
	}
	record.Payload = payload
	return record, nil
}

func collectPresence(rows *sql.Rows) ([]persistence.PresenceRecord, error) {
	var records []persistence.PresenceRecord
	for rows.Next() {
		record, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return records, nil
}
