package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style tests.
type SQLiteHarness struct {
	Pool      *sqlite.ConnectionPool
	Resources persistence.ResourceRepository
	Schedules persistence.ScheduleRepository
	Presence  persistence.PresenceStore
	Bookings  persistence.BookingRepository
	Hooks     persistence.HookRepository
}

// NewSQLiteHarness opens a migrated temporary database. Cleanup is registered
// with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	pool, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = pool.Close()
	})

	if err := pool.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Pool:      pool,
		Resources: sqlite.NewResourceRepository(pool),
		Schedules: sqlite.NewScheduleRepository(pool),
		Presence:  sqlite.NewPresenceRepository(pool),
		Bookings:  sqlite.NewBookingRepository(pool),
		Hooks:     sqlite.NewHookRepository(pool),
	}
}
