package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/booking-engine/internal/persistence"
)

// ResourceRepository implements persistence.ResourceRepository on SQLite.
type ResourceRepository struct {
	pool *ConnectionPool
}

// NewResourceRepository creates a SQLite resource repository.
func NewResourceRepository(pool *ConnectionPool) *ResourceRepository {
	return &ResourceRepository{pool: pool}
}

// CreateResource inserts a new catalog entry.
func (r *ResourceRepository) CreateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO resources (id, organization_id, type, timezone, quantity, is_fungible, is_standalone, is_active, schedule_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.pool.db.ExecContext(ctx, query,
		resource.ID,
		resource.OrganizationID,
		resource.Type,
		resource.Timezone,
		resource.Quantity,
		boolToInt(resource.IsFungible),
		boolToInt(resource.IsStandalone),
		boolToInt(resource.IsActive),
		nullString(resource.ScheduleID),
		formatTime(resource.CreatedAt),
		formatTime(resource.UpdatedAt),
	)
	return mapError(err)
}

// UpdateResource rewrites an existing catalog entry.
func (r *ResourceRepository) UpdateResource(ctx context.Context, resource persistence.Resource) error {
	query := `
		UPDATE resources
		SET organization_id = ?, type = ?, timezone = ?, quantity = ?, is_fungible = ?, is_standalone = ?, is_active = ?, schedule_id = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.pool.db.ExecContext(ctx, query,
		resource.OrganizationID,
		resource.Type,
		resource.Timezone,
		resource.Quantity,
		boolToInt(resource.IsFungible),
		boolToInt(resource.IsStandalone),
		boolToInt(resource.IsActive),
		nullString(resource.ScheduleID),
		formatTime(resource.UpdatedAt),
		resource.ID,
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
	return nil
}

// GetResource retrieves a resource by ID.
func (r *ResourceRepository) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, organization_id, type, timezone, quantity, is_fungible, is_standalone, is_active, schedule_id, created_at, updated_at
		FROM resources WHERE id = ?
	`, id)
	return scanResource(row)
}

// ListResources returns an organization's resources ordered by creation.
func (r *ResourceRepository) ListResources(ctx context.Context, organizationID string) ([]persistence.Resource, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, organization_id, type, timezone, quantity, is_fungible, is_standalone, is_active, schedule_id, created_at, updated_at
		FROM resources WHERE organization_id = ?
		ORDER BY created_at ASC, id ASC
	`, organizationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var resources []persistence.Resource
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return resources, nil
}

// DeleteResource removes a resource unless bookings still reference it.
func (r *ResourceRepository) DeleteResource(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var bookings int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM bookings WHERE resource_id = ?`, id).Scan(&bookings); err != nil {
			return mapError(err)
		}
		if bookings > 0 {
			return fmt.Errorf("%w: resource %s has %d bookings", persistence.ErrConflict, id, bookings)
		}

		result, err := tx.Exec(`DELETE FROM resources WHERE id = ?`, id)
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
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (persistence.Resource, error) {
	var resource persistence.Resource
	var fungible, standalone, active int
	var scheduleID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&resource.ID,
		&resource.OrganizationID,
		&resource.Type,
		&resource.Timezone,
		&resource.Quantity,
		&fungible,
		&standalone,
		&active,
		&scheduleID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Resource{}, mapError(err)
	}

	resource.IsFungible = fungible != 0
	resource.IsStandalone = standalone != 0
	resource.IsActive = active != 0
	if scheduleID.Valid {
		resource.ScheduleID = &scheduleID.String
	}
	if resource.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Resource{}, err
	}
	if resource.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Resource{}, err
	}
	return resource, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
