package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order inside one transaction per statement
// batch. The schema_version table records the highest applied version so
// reopening an existing database is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		type            TEXT NOT NULL,
		timezone        TEXT NOT NULL,
		quantity        INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 1),
		is_fungible     INTEGER NOT NULL DEFAULT 1,
		is_standalone   INTEGER NOT NULL DEFAULT 1,
		is_active       INTEGER NOT NULL DEFAULT 1,
		schedule_id     TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name            TEXT NOT NULL,
		timezone        TEXT NOT NULL,
		is_default      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_default
		ON schedules (organization_id) WHERE is_default = 1`,
	`CREATE TABLE IF NOT EXISTS schedule_entries (
		schedule_id TEXT NOT NULL REFERENCES schedules (id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		weekday     INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL,
		PRIMARY KEY (schedule_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS date_overrides (
		schedule_id TEXT NOT NULL REFERENCES schedules (id) ON DELETE CASCADE,
		date        TEXT NOT NULL,
		type        TEXT NOT NULL CHECK (type IN ('unavailable', 'custom')),
		ranges      TEXT NOT NULL DEFAULT '[]',
		created_at  TEXT NOT NULL,
		PRIMARY KEY (schedule_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS presence_records (
		resource_id TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		slot_start  TEXT NOT NULL,
		slot_date   TEXT NOT NULL,
		last_seen   TEXT NOT NULL,
		payload     BLOB,
		PRIMARY KEY (resource_id, user_id, slot_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_by_slot
		ON presence_records (resource_id, slot_start, last_seen)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_by_date
		ON presence_records (resource_id, slot_date, last_seen)`,
	`CREATE TABLE IF NOT EXISTS presence_expiry_tasks (
		resource_id   TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		slot_start    TEXT NOT NULL,
		timer_handle  TEXT NOT NULL,
		scheduled_for TEXT NOT NULL,
		PRIMARY KEY (resource_id, user_id, slot_start)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		uid                 TEXT PRIMARY KEY,
		resource_id         TEXT NOT NULL REFERENCES resources (id),
		event_type_id       TEXT NOT NULL,
		organization_id     TEXT NOT NULL,
		start_time          TEXT NOT NULL,
		end_time            TEXT NOT NULL,
		timezone            TEXT NOT NULL,
		status              TEXT NOT NULL,
		booker_name         TEXT NOT NULL,
		booker_email        TEXT NOT NULL,
		title               TEXT NOT NULL,
		description         TEXT NOT NULL DEFAULT '',
		cancellation_reason TEXT,
		cancelled_at        TEXT,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL,
		CHECK (start_time < end_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource
		ON bookings (resource_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS booking_slots (
		booking_uid TEXT NOT NULL REFERENCES bookings (uid) ON DELETE CASCADE,
		resource_id TEXT NOT NULL,
		slot_start  TEXT NOT NULL,
		slot_date   TEXT NOT NULL,
		PRIMARY KEY (booking_uid, slot_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_booking_slots_by_slot
		ON booking_slots (resource_id, slot_start)`,
	`CREATE INDEX IF NOT EXISTS idx_booking_slots_by_date
		ON booking_slots (resource_id, slot_date)`,
	`CREATE TABLE IF NOT EXISTS booking_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_uid TEXT NOT NULL REFERENCES bookings (uid),
		from_status TEXT NOT NULL,
		to_status   TEXT NOT NULL,
		actor       TEXT NOT NULL DEFAULT '',
		reason      TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hook_registrations (
		id              TEXT PRIMARY KEY,
		event_type      TEXT NOT NULL,
		handler_ref     TEXT NOT NULL,
		organization_id TEXT,
		enabled         INTEGER NOT NULL DEFAULT 1,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hooks_by_event
		ON hook_registrations (event_type, enabled)`,
}

// Migrate brings the database schema up to date. It is safe to call on every
// startup.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var version int
	err := cp.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		statement := migrations[i]
		applied := i + 1
		err := cp.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(statement); err != nil {
				return fmt.Errorf("sqlite: migration %d: %w", applied, err)
			}
			if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, applied)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
