// Package redis implements the presence store on Redis for deployments that
// want heartbeat traffic off the primary database. Records live in hashes
// with sorted-set indexes per slot and per date, scored by the heartbeat
// timestamp so staleness filtering and most-recent-first ordering are range
// queries over the score.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/slotindex"
)

const slotLayout = time.RFC3339

// PresenceStore implements persistence.PresenceStore on a Redis client.
type PresenceStore struct {
	client *redis.Client
}

// NewPresenceStore wraps an existing client.
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

// Open dials a Redis server and verifies the connection.
func Open(ctx context.Context, addr string) (*PresenceStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return &PresenceStore{client: client}, nil
}

// Close releases the underlying client.
func (s *PresenceStore) Close() error {
	return s.client.Close()
}

func recordKey(resourceID, userID string, slot time.Time) string {
	return fmt.Sprintf("presence:rec:%s:%s:%s", resourceID, userID, slot.UTC().Format(slotLayout))
}

func slotIndexKey(resourceID string, slot time.Time) string {
	return fmt.Sprintf("presence:slot:%s:%s", resourceID, slot.UTC().Format(slotLayout))
}

func dateIndexKey(resourceID, date string) string {
	return fmt.Sprintf("presence:date:%s:%s", resourceID, date)
}

func taskKey(resourceID, userID string, slot time.Time) string {
	return fmt.Sprintf("presence:task:%s:%s:%s", resourceID, userID, slot.UTC().Format(slotLayout))
}

// dateMember encodes (slot, user) as one sorted-set member for the per-date
// index. The slot format contains no "|".
func dateMember(userID string, slot time.Time) string {
	return slot.UTC().Format(slotLayout) + "|" + userID
}

// UpsertPresence writes all records in one transactional pipeline.
func (s *PresenceStore) UpsertPresence(ctx context.Context, records []persistence.PresenceRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, record := range records {
			slot := slotindex.Truncate(record.Slot)
			date, _ := slotindex.ToSlot(slot)
			score := float64(record.LastSeen.UnixMilli())

			pipe.HSet(ctx, recordKey(record.ResourceID, record.UserID, slot), map[string]any{
				"last_seen": strconv.FormatInt(record.LastSeen.UnixMilli(), 10),
				"payload":   string(record.Payload),
			})
			pipe.ZAdd(ctx, slotIndexKey(record.ResourceID, slot), redis.Z{Score: score, Member: record.UserID})
			pipe.ZAdd(ctx, dateIndexKey(record.ResourceID, date), redis.Z{Score: score, Member: dateMember(record.UserID, slot)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: upsert presence: %w", err)
	}
	return nil
}

// DeletePresence removes records, index members, and expiry tasks in one
// transactional pipeline. Missing keys are not an error.
func (s *PresenceStore) DeletePresence(ctx context.Context, resourceID, userID string, slots []time.Time) error {
	if len(slots) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, raw := range slots {
			slot := slotindex.Truncate(raw)
			date, _ := slotindex.ToSlot(slot)
			pipe.Del(ctx, recordKey(resourceID, userID, slot))
			pipe.ZRem(ctx, slotIndexKey(resourceID, slot), userID)
			pipe.ZRem(ctx, dateIndexKey(resourceID, date), dateMember(userID, slot))
			pipe.Del(ctx, taskKey(resourceID, userID, slot))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete presence: %w", err)
	}
	return nil
}

// GetPresence retrieves one record.
func (s *PresenceStore) GetPresence(ctx context.Context, resourceID, userID string, slot time.Time) (persistence.PresenceRecord, error) {
	slot = slotindex.Truncate(slot)
	fields, err := s.client.HGetAll(ctx, recordKey(resourceID, userID, slot)).Result()
	if err != nil {
		return persistence.PresenceRecord{}, fmt.Errorf("redis: get presence: %w", err)
	}
	if len(fields) == 0 {
		return persistence.PresenceRecord{}, persistence.ErrNotFound
	}
	return decodeRecord(resourceID, userID, slot, fields)
}

// ListPresenceBySlot returns holders seen strictly after activeAfter, most
// recent first, at most limit entries.
func (s *PresenceStore) ListPresenceBySlot(ctx context.Context, resourceID string, slot time.Time, activeAfter time.Time, limit int) ([]persistence.PresenceRecord, error) {
	slot = slotindex.Truncate(slot)
	users, err := s.client.ZRevRangeByScore(ctx, slotIndexKey(resourceID, slot), &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(activeAfter.UnixMilli(), 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list presence by slot: %w", err)
	}

	records := make([]persistence.PresenceRecord, 0, len(users))
	for _, userID := range users {
		record, err := s.GetPresence(ctx, resourceID, userID, slot)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ListPresenceByDate scans the per-date index in one pass.
func (s *PresenceStore) ListPresenceByDate(ctx context.Context, resourceID, date string, activeAfter time.Time) ([]persistence.PresenceRecord, error) {
	members, err := s.client.ZRevRangeByScore(ctx, dateIndexKey(resourceID, date), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(activeAfter.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list presence by date: %w", err)
	}

	records := make([]persistence.PresenceRecord, 0, len(members))
	for _, member := range members {
		slotText, userID, ok := strings.Cut(member, "|")
		if !ok {
			continue
		}
		slot, err := time.Parse(slotLayout, slotText)
		if err != nil {
			continue
		}
		record, err := s.GetPresence(ctx, resourceID, userID, slot)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// PutExpiryTask stores the task ledger entry for its key.
func (s *PresenceStore) PutExpiryTask(ctx context.Context, task persistence.ExpiryTask) error {
	err := s.client.HSet(ctx, taskKey(task.ResourceID, task.UserID, slotindex.Truncate(task.Slot)), map[string]any{
		"handle":        task.Handle,
		"scheduled_for": strconv.FormatInt(task.ScheduledFor.UnixMilli(), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: put expiry task: %w", err)
	}
	return nil
}

// GetExpiryTask retrieves the task ledger entry for a key.
func (s *PresenceStore) GetExpiryTask(ctx context.Context, resourceID, userID string, slot time.Time) (persistence.ExpiryTask, error) {
	slot = slotindex.Truncate(slot)
	fields, err := s.client.HGetAll(ctx, taskKey(resourceID, userID, slot)).Result()
	if err != nil {
		return persistence.ExpiryTask{}, fmt.Errorf("redis: get expiry task: %w", err)
	}
	if len(fields) == 0 {
		return persistence.ExpiryTask{}, persistence.ErrNotFound
	}

	scheduled, err := strconv.ParseInt(fields["scheduled_for"], 10, 64)
	if err != nil {
		return persistence.ExpiryTask{}, fmt.Errorf("redis: decode scheduled_for %q: %w", fields["scheduled_for"], err)
	}
	return persistence.ExpiryTask{
		ResourceID:   resourceID,
		UserID:       userID,
		Slot:         slot,
		Handle:       fields["handle"],
		ScheduledFor: time.UnixMilli(scheduled).UTC(),
	}, nil
}

// DeleteExpiryTask removes the task ledger entry.
func (s *PresenceStore) DeleteExpiryTask(ctx context.Context, resourceID, userID string, slot time.Time) error {
	removed, err := s.client.Del(ctx, taskKey(resourceID, userID, slotindex.Truncate(slot))).Result()
	if err != nil {
		return fmt.Errorf("redis: delete expiry task: %w", err)
	}
	if removed == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func decodeRecord(resourceID, userID string, slot time.Time, fields map[string]string) (persistence.PresenceRecord, error) {
	seen, err := strconv.ParseInt(fields["last_seen"], 10, 64)
	if err != nil {
		return persistence.PresenceRecord{}, fmt.Errorf("redis: decode last_seen %q: %w", fields["last_seen"], err)
	}
	record := persistence.PresenceRecord{
		ResourceID: resourceID,
		UserID:     userID,
		Slot:       slot,
		LastSeen:   time.UnixMilli(seen).UTC(),
	}
	if payload := fields["payload"]; payload != "" {
		record.Payload = []byte(payload)
	}
	return record, nil
}
