package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ManualScheduler implements the one-shot timer substrate with explicit
// firing, so tests control exactly when expiry callbacks run.
type ManualScheduler struct {
	mu      sync.Mutex
	counter uint64
	tasks   map[string]manualTask
}

type manualTask struct {
	delay time.Duration
	fn    func(ctx context.Context)
}

// NewManualScheduler constructs an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{tasks: make(map[string]manualTask)}
}

// Schedule records the callback without arming any real timer and returns a
// deterministic handle.
func (s *ManualScheduler) Schedule(delay time.Duration, fn func(ctx context.Context)) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	handle := fmt.Sprintf("task-%d", s.counter)
	s.tasks[handle] = manualTask{delay: delay, fn: fn}
	return handle
}

// Cancel removes a pending task and reports whether it was still pending.
func (s *ManualScheduler) Cancel(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[handle]; !ok {
		return false
	}
	delete(s.tasks, handle)
	return true
}

// Fire runs the callback for handle synchronously and reports whether a task
// was pending under that handle.
func (s *ManualScheduler) Fire(ctx context.Context, handle string) bool {
	s.mu.Lock()
	task, ok := s.tasks[handle]
	if ok {
		delete(s.tasks, handle)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	task.fn(ctx)
	return true
}

// FireAll runs every pending callback in handle order and returns how many
// fired. Callbacks scheduled during firing are left pending.
func (s *ManualScheduler) FireAll(ctx context.Context) int {
	s.mu.Lock()
	handles := make([]string, 0, len(s.tasks))
	for handle := range s.tasks {
		handles = append(handles, handle)
	}
	s.mu.Unlock()
	sort.Strings(handles)

	fired := 0
	for _, handle := range handles {
		if s.Fire(ctx, handle) {
			fired++
		}
	}
	return fired
}

// Pending returns the number of tasks that have not fired or been cancelled.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
