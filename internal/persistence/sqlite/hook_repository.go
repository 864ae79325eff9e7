package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/booking-engine/internal/persistence"
)

// HookRepository implements persistence.HookRepository on SQLite.
type HookRepository struct {
	pool *ConnectionPool
}

// NewHookRepository creates a SQLite hook repository.
func NewHookRepository(pool *ConnectionPool) *HookRepository {
	return &HookRepository{pool: pool}
}

// CreateHook stores a registration.
func (r *HookRepository) CreateHook(ctx context.Context, registration persistence.HookRegistration) error {
	if registration.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO hook_registrations (id, event_type, handler_ref, organization_id, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		registration.ID,
		registration.EventType,
		registration.HandlerRef,
		nullString(registration.OrganizationID),
		boolToInt(registration.Enabled),
		formatTime(registration.CreatedAt),
	)
	return mapError(err)
}

// GetHook retrieves a registration by ID.
func (r *HookRepository) GetHook(ctx context.Context, id string) (persistence.HookRegistration, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, event_type, handler_ref, organization_id, enabled, created_at
		FROM hook_registrations WHERE id = ?
	`, id)
	return scanHook(row)
}

// ListHooksForEvent returns enabled registrations for one event type,
// oldest first.
func (r *HookRepository) ListHooksForEvent(ctx context.Context, eventType string) ([]persistence.HookRegistration, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, event_type, handler_ref, organization_id, enabled, created_at
		FROM hook_registrations
		WHERE event_type = ? AND enabled = 1
		ORDER BY created_at ASC, id ASC
	`, eventType)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var registrations []persistence.HookRegistration
	for rows.Next() {
		registration, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, registration)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return registrations, nil
}

// SetHookEnabled toggles a registration.
func (r *HookRepository) SetHookEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.pool.db.ExecContext(ctx,
		`UPDATE hook_registrations SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
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

// DeleteHook removes a registration.
func (r *HookRepository) DeleteHook(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM hook_registrations WHERE id = ?`, id)
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

func scanHook(row rowScanner) (persistence.HookRegistration, error) {
	var registration persistence.HookRegistration
	var orgID sql.NullString
	var enabled int
	var createdAt string

	err := row.Scan(
		&registration.ID,
		&registration.EventType,
		&registration.HandlerRef,
		&orgID,
		&enabled,
		&createdAt,
	)
	if err != nil {
		return persistence.HookRegistration{}, mapError(err)
	}
	if orgID.Valid {
		registration.OrganizationID = &orgID.String
	}
	registration.Enabled = enabled != 0
	if registration.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.HookRegistration{}, err
	}
	return registration, nil
}
