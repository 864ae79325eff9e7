package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository on SQLite.
// Weekly entries live in a child table keyed by position to preserve order;
// override hour ranges are stored as a JSON column since the engine never
// queries inside them.
type ScheduleRepository struct {
	pool *ConnectionPool
}

// NewScheduleRepository creates a SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// CreateSchedule inserts a schedule and its weekly entries atomically.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO schedules (id, organization_id, name, timezone, is_default, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			schedule.ID,
			schedule.OrganizationID,
			schedule.Name,
			schedule.Timezone,
			boolToInt(schedule.IsDefault),
			formatTime(schedule.CreatedAt),
			formatTime(schedule.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		return insertEntries(tx, schedule.ID, schedule.Entries)
	})
}

// UpdateSchedule rewrites a schedule and replaces its weekly entries.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE schedules SET organization_id = ?, name = ?, timezone = ?, is_default = ?, updated_at = ?
			WHERE id = ?
		`,
			schedule.OrganizationID,
			schedule.Name,
			schedule.Timezone,
			boolToInt(schedule.IsDefault),
			formatTime(schedule.UpdatedAt),
			schedule.ID,
		)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}

		if _, err := tx.Exec(`DELETE FROM schedule_entries WHERE schedule_id = ?`, schedule.ID); err != nil {
			return mapError(err)
		}
		return insertEntries(tx, schedule.ID, schedule.Entries)
	})
}

// GetSchedule retrieves a schedule with its weekly entries.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, timezone, is_default, created_at, updated_at
		FROM schedules WHERE id = ?
	`, id)
	schedule, err := r.scanSchedule(ctx, row)
	if err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}

// GetDefaultSchedule retrieves an organization's default schedule.
func (r *ScheduleRepository) GetDefaultSchedule(ctx context.Context, organizationID string) (persistence.Schedule, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, timezone, is_default, created_at, updated_at
		FROM schedules WHERE organization_id = ? AND is_default = 1
	`, organizationID)
	return r.scanSchedule(ctx, row)
}

// ListSchedules returns an organization's schedules ordered by name.
func (r *ScheduleRepository) ListSchedules(ctx context.Context, organizationID string) ([]persistence.Schedule, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, organization_id, name, timezone, is_default, created_at, updated_at
		FROM schedules WHERE organization_id = ?
		ORDER BY name ASC, id ASC
	`, organizationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := r.scanSchedule(ctx, rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule; entries and date overrides cascade.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// UpsertDateOverride inserts or replaces the override for (schedule, date).
func (r *ScheduleRepository) UpsertDateOverride(ctx context.Context, override persistence.DateOverride) error {
	if override.Type != persistence.OverrideUnavailable && override.Type != persistence.OverrideCustom {
		return persistence.ErrConstraintViolation
	}
	ranges, err := json.Marshal(override.Ranges)
	if err != nil {
		return fmt.Errorf("sqlite: encode override ranges: %w", err)
	}
	if override.Ranges == nil {
		ranges = []byte("[]")
	}

	_, err = r.pool.db.ExecContext(ctx, `
		INSERT INTO date_overrides (schedule_id, date, type, ranges, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (schedule_id, date) DO UPDATE SET type = excluded.type, ranges = excluded.ranges
	`,
		override.ScheduleID,
		override.Date,
		override.Type,
		string(ranges),
		formatTime(override.CreatedAt),
	)
	return mapError(err)
}

// GetDateOverride retrieves the override for an exact (schedule, date) pair.
func (r *ScheduleRepository) GetDateOverride(ctx context.Context, scheduleID, date string) (persistence.DateOverride, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT schedule_id, date, type, ranges, created_at
		FROM date_overrides WHERE schedule_id = ? AND date = ?
	`, scheduleID, date)
	return scanOverride(row)
}

// ListDateOverrides returns a schedule's overrides ordered by date.
func (r *ScheduleRepository) ListDateOverrides(ctx context.Context, scheduleID string) ([]persistence.DateOverride, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT schedule_id, date, type, ranges, created_at
		FROM date_overrides WHERE schedule_id = ?
		ORDER BY date ASC
	`, scheduleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var overrides []persistence.DateOverride
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, override)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return overrides, nil
}

// DeleteDateOverride removes one override.
func (r *ScheduleRepository) DeleteDateOverride(ctx context.Context, scheduleID, date string) error {
	result, err := r.pool.db.ExecContext(ctx,
		`DELETE FROM date_overrides WHERE schedule_id = ? AND date = ?`, scheduleID, date)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func insertEntries(tx *sql.Tx, scheduleID string, entries []persistence.WeeklyEntry) error {
	for position, entry := range entries {
		_, err := tx.Exec(`
			INSERT INTO schedule_entries (schedule_id, position, weekday, start_time, end_time)
			VALUES (?, ?, ?, ?, ?)
		`, scheduleID, position, int(entry.Weekday), entry.Start, entry.End)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *ScheduleRepository) scanSchedule(ctx context.Context, row rowScanner) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var isDefault int
	var createdAt, updatedAt string

	err := row.Scan(
		&schedule.ID,
		&schedule.OrganizationID,
		&schedule.Name,
		&schedule.Timezone,
		&isDefault,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Schedule{}, mapError(err)
	}
	schedule.IsDefault = isDefault != 0
	if schedule.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Schedule{}, err
	}

	entries, err := r.loadEntries(ctx, schedule.ID)
	if err != nil {
		return persistence.Schedule{}, err
	}
	schedule.Entries = entries
	return schedule, nil
}

func (r *ScheduleRepository) loadEntries(ctx context.Context, scheduleID string) ([]persistence.WeeklyEntry, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT weekday, start_time, end_time
		FROM schedule_entries WHERE schedule_id = ?
		ORDER BY position ASC
	`, scheduleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []persistence.WeeklyEntry
	for rows.Next() {
		var weekday int
		var entry persistence.WeeklyEntry
		if err := rows.Scan(&weekday, &entry.Start, &entry.End); err != nil {
			return nil, mapError(err)
		}
		entry.Weekday = time.Weekday(weekday)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return entries, nil
}

func scanOverride(row rowScanner) (persistence.DateOverride, error) {
	var override persistence.DateOverride
	var ranges, createdAt string

	err := row.Scan(
		&override.ScheduleID,
		&override.Date,
		&override.Type,
		&ranges,
		&createdAt,
	)
	if err != nil {
		return persistence.DateOverride{}, mapError(err)
	}
	if err := json.Unmarshal([]byte(ranges), &override.Ranges); err != nil {
		return persistence.DateOverride{}, fmt.Errorf("sqlite: decode override ranges: %w", err)
	}
	if override.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.DateOverride{}, err
	}
	return override, nil
}
