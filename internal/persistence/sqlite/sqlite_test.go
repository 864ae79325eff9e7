package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	path := filepath.Join(t.TempDir(), "engine.db")
	pool, err := Open("file:" + path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
	})

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return pool
}

func createTestResource(t *testing.T, pool *ConnectionPool, id string, quantity int) persistence.Resource {
	t.Helper()

	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	resource := persistence.Resource{
		ID:             id,
		OrganizationID: "org_1",
		Type:           "room",
		Timezone:       "UTC",
		Quantity:       quantity,
		IsFungible:     true,
		IsStandalone:   true,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := NewResourceRepository(pool).CreateResource(context.Background(), resource); err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	return resource
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := newTestPool(t)

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
