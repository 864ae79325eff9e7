// Package timer provides the one-shot scheduling substrate used for presence
// expiry: run a callback once, a fixed delay from now, identified by a handle
// that can be stored and later cancelled best-effort.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs one-shot callbacks backed by time.AfterFunc. Each firing
// runs on its own goroutine with its own context; a fired or cancelled timer
// is forgotten. Cancellation is best-effort only, callbacks must tolerate
// firing after the state they expect is gone.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	logger  *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler constructs a Scheduler. A nil logger discards callback panics
// silently, so callers are expected to pass one.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		timers:  make(map[string]*time.Timer),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Schedule arms a timer that invokes fn once after delay and returns its
// handle. The callback receives a context cancelled when the scheduler shuts
// down.
func (s *Scheduler) Schedule(delay time.Duration, fn func(ctx context.Context)) string {
	handle := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx.Err() != nil {
		return handle
	}

	s.wg.Add(1)
	s.timers[handle] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panicked", "handle", handle, "panic", r)
			}
		}()

		s.mu.Lock()
		delete(s.timers, handle)
		s.mu.Unlock()

		fn(s.baseCtx)
	})
	return handle
}

// Cancel stops the timer for handle if it has not fired yet. It reports
// whether the timer was still pending.
func (s *Scheduler) Cancel(handle string) bool {
	s.mu.Lock()
	t, ok := s.timers[handle]
	if ok {
		delete(s.timers, handle)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if t.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

// Close cancels all pending timers and waits for in-flight callbacks.
func (s *Scheduler) Close() {
	s.cancel()

	s.mu.Lock()
	pending := make([]*time.Timer, 0, len(s.timers))
	for handle, t := range s.timers {
		pending = append(pending, t)
		delete(s.timers, handle)
	}
	s.mu.Unlock()

	for _, t := range pending {
		if t.Stop() {
			s.wg.Done()
		}
	}
	s.wg.Wait()
}
