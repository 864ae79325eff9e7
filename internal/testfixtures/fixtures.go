package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

var (
	resourceCounter uint64
	scheduleCounter uint64
)

var referenceTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It is a Monday at 09:00 UTC so weekday-sensitive tests read naturally.
func ReferenceTime() time.Time {
	return referenceTime
}

// ResourceOption configures a generated resource fixture.
type ResourceOption func(*persistence.Resource)

// WithQuantity sets the fixture's capacity and marks it fungible.
func WithQuantity(quantity int) ResourceOption {
	return func(r *persistence.Resource) {
		r.Quantity = quantity
		r.IsFungible = true
	}
}

// WithScheduleID attaches a schedule reference to the fixture.
func WithScheduleID(id string) ResourceOption {
	return func(r *persistence.Resource) {
		r.ScheduleID = &id
	}
}

// WithInactive marks the fixture inactive.
func WithInactive() ResourceOption {
	return func(r *persistence.Resource) {
		r.IsActive = false
	}
}

// WithOrganization sets the owning organization.
func WithOrganization(orgID string) ResourceOption {
	return func(r *persistence.Resource) {
		r.OrganizationID = orgID
	}
}

// NewResourceFixture returns a deterministic active standalone resource with
// optional overrides.
func NewResourceFixture(opts ...ResourceOption) persistence.Resource {
	idx := atomic.AddUint64(&resourceCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := persistence.Resource{
		ID:             fmt.Sprintf("resource-%03d", idx),
		OrganizationID: "org-001",
		Type:           "room",
		Timezone:       "UTC",
		Quantity:       1,
		IsFungible:     false,
		IsStandalone:   true,
		IsActive:       true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// ScheduleOption configures a generated schedule fixture.
type ScheduleOption func(*persistence.Schedule)

// WithDefault marks the fixture as its organization's default schedule.
func WithDefault() ScheduleOption {
	return func(s *persistence.Schedule) {
		s.IsDefault = true
	}
}

// WithEntries replaces the fixture's weekly entries.
func WithEntries(entries ...persistence.WeeklyEntry) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.Entries = entries
	}
}

// NewScheduleFixture returns a deterministic Monday-to-Friday 09:00-17:00
// schedule with optional overrides.
func NewScheduleFixture(opts ...ScheduleOption) persistence.Schedule {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	entries := make([]persistence.WeeklyEntry, 0, 5)
	for day := time.Monday; day <= time.Friday; day++ {
		entries = append(entries, persistence.WeeklyEntry{Weekday: day, Start: "09:00", End: "17:00"})
	}
	fixture := persistence.Schedule{
		ID:             fmt.Sprintf("schedule-%03d", idx),
		OrganizationID: "org-001",
		Name:           fmt.Sprintf("Schedule %03d", idx),
		Timezone:       "UTC",
		Entries:        entries,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}
