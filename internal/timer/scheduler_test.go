package timer

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerFiresOnce(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())
	defer s.Close()

	var fired atomic.Int32
	done := make(chan struct{})
	handle := s.Schedule(5*time.Millisecond, func(context.Context) {
		fired.Add(1)
		close(done)
	})
	if handle == "" {
		t.Fatal("expected non-empty handle")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one firing, got %d", got)
	}

	// A fired handle is forgotten; cancelling it is a no-op.
	if s.Cancel(handle) {
		t.Error("Cancel after firing should report false")
	}
}

func TestSchedulerCancel(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())
	defer s.Close()

	var fired atomic.Int32
	handle := s.Schedule(time.Hour, func(context.Context) {
		fired.Add(1)
	})

	if !s.Cancel(handle) {
		t.Fatal("expected Cancel to stop a pending timer")
	}
	if s.Cancel(handle) {
		t.Error("second Cancel should report false")
	}
	if got := fired.Load(); got != 0 {
		t.Errorf("cancelled timer fired %d times", got)
	}
}

func TestSchedulerRecoversPanickingCallback(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())

	done := make(chan struct{})
	s.Schedule(time.Millisecond, func(context.Context) {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	// Close must not deadlock after a panicked callback.
	s.Close()
}

func TestSchedulerCloseStopsPendingTimers(t *testing.T) {
	t.Parallel()

	s := NewScheduler(discardLogger())

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		s.Schedule(time.Hour, func(context.Context) {
			fired.Add(1)
		})
	}
	s.Close()

	if got := fired.Load(); got != 0 {
		t.Errorf("expected no firings after Close, got %d", got)
	}
}
