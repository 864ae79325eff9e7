package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/slotindex"
)

// DefaultPresenceTimeout is how long a heartbeat keeps a slot held.
const DefaultPresenceTimeout = 10 * time.Second

// MaxHoldersPerSlot caps how many holders a slot listing returns.
const MaxHoldersPerSlot = 20

// TaskScheduler is the one-shot timer substrate used for presence expiry.
// Cancel is best-effort; a callback may fire after the state it expected is
// gone and must reconcile against the store.
type TaskScheduler interface {
	Schedule(delay time.Duration, fn func(ctx context.Context)) string
	Cancel(handle string) bool
}

// HookTrigger dispatches hook events. Satisfied by *HookService.
type HookTrigger interface {
	Trigger(ctx context.Context, event HookEvent) (int, error)
}

// PresenceService maintains the ephemeral "someone is looking" ledger:
// heartbeat-refreshed records per (resource, user, slot) that expire via
// one-shot timers and are additionally filtered for staleness at read time,
// so a missed expiry never shows a dead holder.
type PresenceService struct {
	store     persistence.PresenceStore
	scheduler TaskScheduler
	hooks     HookTrigger
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewPresenceService wires dependencies for presence operations. A zero or
// negative timeout falls back to DefaultPresenceTimeout.
func NewPresenceService(store persistence.PresenceStore, scheduler TaskScheduler, hooks HookTrigger, timeout time.Duration, logger *slog.Logger, now func() time.Time) *PresenceService {
	if timeout <= 0 {
		timeout = DefaultPresenceTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &PresenceService{
		store:     store,
		scheduler: scheduler,
		hooks:     hooks,
		timeout:   timeout,
		now:       now,
		logger:    logger,
	}
}

// Heartbeat records or refreshes presence for every slot in one atomic
// batch, then ensures exactly one pending expiry task exists per slot. A
// repeat heartbeat for a slot that already has an outstanding task never
// arms a second timer.
func (s *PresenceService) Heartbeat(ctx context.Context, params HeartbeatParams) error {
	if s == nil {
		return fmt.Errorf("PresenceService is nil")
	}
	if err := validatePresenceKey(params.ResourceID, params.UserID, params.Slots); err != nil {
		return err
	}
	logger := serviceLogger(ctx, s.logger, "presence", "heartbeat", "resource_id", params.ResourceID, "user_id", params.UserID)

	slots := normalizeSlots(params.Slots)
	seen := s.now().UTC()

	records := make([]persistence.PresenceRecord, 0, len(slots))
	for _, slot := range slots {
		records = append(records, persistence.PresenceRecord{
			ResourceID: params.ResourceID,
			UserID:     params.UserID,
			Slot:       slot,
			LastSeen:   seen,
			Payload:    params.Payload,
		})
	}
	if err := s.store.UpsertPresence(ctx, records); err != nil {
		return err
	}

	for _, slot := range slots {
		_, err := s.store.GetExpiryTask(ctx, params.ResourceID, params.UserID, slot)
		if err == nil {
			continue
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		if err := s.armExpiry(ctx, params.ResourceID, params.UserID, slot); err != nil {
			logger.Error("failed to arm expiry task", "slot", slot, "error", err)
			return err
		}
	}
	return nil
}

// Leave removes presence for the given slots in one atomic batch. Pending
// timers are cancelled best-effort; a timer that fires anyway finds no
// record and no-ops.
func (s *PresenceService) Leave(ctx context.Context, resourceID, userID string, slots []time.Time) error {
	if s == nil {
		return fmt.Errorf("PresenceService is nil")
	}
	if err := validatePresenceKey(resourceID, userID, slots); err != nil {
		return err
	}

	normalized := normalizeSlots(slots)
	for _, slot := range normalized {
		task, err := s.store.GetExpiryTask(ctx, resourceID, userID, slot)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		s.scheduler.Cancel(task.Handle)
	}

	return s.store.DeletePresence(ctx, resourceID, userID, normalized)
}

// List returns the live holders of one slot, most recent heartbeat first,
// at most MaxHoldersPerSlot entries. Records whose last heartbeat is older
// than the timeout are filtered out even if their expiry has not fired yet.
func (s *PresenceService) List(ctx context.Context, resourceID string, slot time.Time) ([]persistence.PresenceRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("PresenceService is nil")
	}
	activeAfter := s.now().UTC().Add(-s.timeout)
	return s.store.ListPresenceBySlot(ctx, resourceID, slotindex.Truncate(slot), activeAfter, MaxHoldersPerSlot)
}

// ListForDate returns the live holders across every slot of one date in a
// single range scan, with the same staleness filter and ordering as List.
func (s *PresenceService) ListForDate(ctx context.Context, resourceID, date string) ([]persistence.PresenceRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("PresenceService is nil")
	}
	if _, err := time.ParseInLocation(slotindex.DateLayout, date, time.UTC); err != nil {
		vErr := &ValidationError{}
		vErr.add("date", fmt.Sprintf("invalid date %q", date))
		return nil, vErr
	}
	activeAfter := s.now().UTC().Add(-s.timeout)
	return s.store.ListPresenceByDate(ctx, resourceID, date, activeAfter)
}

// armExpiry schedules the one-shot expiry callback and records its handle in
// the task ledger.
func (s *PresenceService) armExpiry(ctx context.Context, resourceID, userID string, slot time.Time) error {
	handle := s.scheduler.Schedule(s.timeout, func(cbCtx context.Context) {
		s.expire(cbCtx, resourceID, userID, slot)
	})
	return s.store.PutExpiryTask(ctx, persistence.ExpiryTask{
		ResourceID:   resourceID,
		UserID:       userID,
		Slot:         slot,
		Handle:       handle,
		ScheduledFor: s.now().UTC().Add(s.timeout),
	})
}

// expire is the timer callback. It reconciles against the store rather than
// trusting its own firing: the record may be gone, refreshed, or stale.
func (s *PresenceService) expire(ctx context.Context, resourceID, userID string, slot time.Time) {
	logger := serviceLogger(ctx, s.logger, "presence", "expire", "resource_id", resourceID, "user_id", userID, "slot", slot)

	record, err := s.store.GetPresence(ctx, resourceID, userID, slot)
	if errors.Is(err, persistence.ErrNotFound) {
		// Holder left between arming and firing; drop the task remnant.
		if err := s.store.DeleteExpiryTask(ctx, resourceID, userID, slot); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			logger.Error("failed to delete orphaned expiry task", "error", err)
		}
		return
	}
	if err != nil {
		logger.Error("failed to load presence record", "error", err)
		return
	}

	if s.now().UTC().Sub(record.LastSeen) < s.timeout {
		// Refreshed since the timer was armed; push the expiry out again.
		if err := s.armExpiry(ctx, resourceID, userID, slot); err != nil {
			logger.Error("failed to rearm expiry task", "error", err)
		}
		return
	}

	if err := s.store.DeletePresence(ctx, resourceID, userID, []time.Time{slot}); err != nil {
		logger.Error("failed to delete expired presence", "error", err)
		return
	}

	if s.hooks != nil {
		event := HookEvent{
			Type:       EventPresenceTimeout,
			OccurredAt: s.now().UTC(),
			ResourceID: resourceID,
			UserID:     userID,
			Slot:       slot,
		}
		if _, err := s.hooks.Trigger(ctx, event); err != nil {
			logger.Error("failed to trigger presence.timeout", "error", err)
		}
	}
}

func validatePresenceKey(resourceID, userID string, slots []time.Time) error {
	vErr := &ValidationError{}
	if resourceID == "" {
		vErr.add("resourceId", "resource id is required")
	}
	if userID == "" {
		vErr.add("userId", "user id is required")
	}
	if len(slots) == 0 {
		vErr.add("slots", "at least one slot is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// normalizeSlots truncates to slot boundaries and deduplicates, preserving
// first-seen order.
func normalizeSlots(slots []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(slots))
	out := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		t := slotindex.Truncate(slot)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
