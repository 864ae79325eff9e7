package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/booking-engine/internal/availability"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/slotindex"
)

// PresenceReader exposes the presence listing needed by the day view.
// Satisfied by *PresenceService.
type PresenceReader interface {
	ListForDate(ctx context.Context, resourceID, date string) ([]persistence.PresenceRecord, error)
}

// AvailabilityService resolves the bookable slot set for a resource day and
// annotates it with live booking occupancy and presence holders, producing
// the view a slot picker renders.
type AvailabilityService struct {
	resources persistence.ResourceRepository
	schedules persistence.ScheduleRepository
	bookings  persistence.BookingRepository
	presence  PresenceReader
	logger    *slog.Logger
}

// NewAvailabilityService wires dependencies for availability queries.
func NewAvailabilityService(resources persistence.ResourceRepository, schedules persistence.ScheduleRepository, bookings persistence.BookingRepository, presence PresenceReader, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{
		resources: resources,
		schedules: schedules,
		bookings:  bookings,
		presence:  presence,
		logger:    logger,
	}
}

// DayView resolves one resource day. Closed slots are omitted; every open
// slot appears with its state, capacity, occupancy, and holder count.
func (s *AvailabilityService) DayView(ctx context.Context, resourceID, date string) (DayAvailability, error) {
	if s == nil {
		return DayAvailability{}, fmt.Errorf("AvailabilityService is nil")
	}
	if _, err := time.ParseInLocation(slotindex.DateLayout, date, time.UTC); err != nil {
		vErr := &ValidationError{}
		vErr.add("date", fmt.Sprintf("invalid date %q", date))
		return DayAvailability{}, vErr
	}

	resource, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		return DayAvailability{}, mapRepositoryError(err, "resource")
	}

	sched, override, err := s.loadSchedule(ctx, resource, date)
	if err != nil {
		return DayAvailability{}, err
	}

	indices, err := availability.Resolve(sched, override, date)
	if err != nil {
		return DayAvailability{}, err
	}

	view := DayAvailability{ResourceID: resourceID, Date: date, Slots: make([]DaySlot, 0, len(indices))}
	if len(indices) == 0 {
		return view, nil
	}

	occupancy, err := s.bookings.CountSlotOccupancy(ctx, resourceID, date)
	if err != nil {
		return DayAvailability{}, err
	}

	holders := make(map[time.Time]int)
	if s.presence != nil {
		records, err := s.presence.ListForDate(ctx, resourceID, date)
		if err != nil {
			return DayAvailability{}, err
		}
		for _, record := range records {
			holders[record.Slot.UTC()]++
		}
	}

	capacity := resource.EffectiveQuantity()
	for _, index := range indices {
		start, err := slotindex.SlotStart(date, index)
		if err != nil {
			return DayAvailability{}, err
		}
		slot := DaySlot{
			Index:     index,
			Start:     start,
			Capacity:  capacity,
			Occupancy: occupancy[start],
			Holders:   holders[start],
		}
		switch {
		case slot.Occupancy >= capacity:
			slot.State = SlotBooked
		case slot.Holders > 0:
			slot.State = SlotHeld
		default:
			slot.State = SlotAvailable
		}
		view.Slots = append(view.Slots, slot)
	}
	return view, nil
}

// loadSchedule resolves the schedule and override governing one resource
// date. A resource without an explicit schedule uses its organization's
// default; neither existing falls back to default business hours via a nil
// schedule.
func (s *AvailabilityService) loadSchedule(ctx context.Context, resource persistence.Resource, date string) (*availability.Schedule, *availability.Override, error) {
	var stored persistence.Schedule
	var err error
	switch {
	case resource.ScheduleID != nil:
		stored, err = s.schedules.GetSchedule(ctx, *resource.ScheduleID)
	default:
		stored, err = s.schedules.GetDefaultSchedule(ctx, resource.OrganizationID)
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	sched := &availability.Schedule{Entries: make([]availability.Entry, 0, len(stored.Entries))}
	for _, entry := range stored.Entries {
		sched.Entries = append(sched.Entries, availability.Entry{
			Weekday: entry.Weekday,
			Start:   entry.Start,
			End:     entry.End,
		})
	}

	override, err := s.loadOverride(ctx, stored.ID, date)
	if err != nil {
		return nil, nil, err
	}
	return sched, override, nil
}

func (s *AvailabilityService) loadOverride(ctx context.Context, scheduleID, date string) (*availability.Override, error) {
	stored, err := s.schedules.GetDateOverride(ctx, scheduleID, date)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	override := &availability.Override{Unavailable: stored.Type == persistence.OverrideUnavailable}
	for _, r := range stored.Ranges {
		override.Ranges = append(override.Ranges, availability.Range{Start: r.Start, End: r.End})
	}
	return override, nil
}
