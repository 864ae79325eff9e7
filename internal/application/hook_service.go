package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// HookHandler delivers one event to an external sink. Implementations are
// resolved by reference string at registration time and invoked on their own
// goroutine; a returned error is logged, never propagated.
type HookHandler interface {
	Name() string
	Handle(ctx context.Context, event HookEvent) error
}

// HookRegistry captures the persistence interactions needed by the service.
type HookRegistry interface {
	CreateHook(ctx context.Context, registration persistence.HookRegistration) error
	GetHook(ctx context.Context, id string) (persistence.HookRegistration, error)
	ListHooksForEvent(ctx context.Context, eventType string) ([]persistence.HookRegistration, error)
	SetHookEnabled(ctx context.Context, id string, enabled bool) error
	DeleteHook(ctx context.Context, id string) error
}

// HookService stores hook registrations and fans events out to their
// handlers. Dispatch is fire-and-forget: each handler runs on its own
// goroutine, panics are recovered, and failures are logged per handler.
type HookService struct {
	hooks       HookRegistry
	handlers    map[string]HookHandler
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
	wg          sync.WaitGroup
}

// NewHookService wires dependencies for hook operations.
func NewHookService(hooks HookRegistry, handlers []HookHandler, logger *slog.Logger, idGenerator func() string, now func() time.Time) *HookService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	registry := make(map[string]HookHandler, len(handlers))
	for _, h := range handlers {
		if h != nil {
			registry[h.Name()] = h
		}
	}
	return &HookService{
		hooks:       hooks,
		handlers:    registry,
		logger:      logger,
		idGenerator: idGenerator,
		now:         now,
	}
}

// Register stores an enabled hook registration after validating the event
// type against the recognized set and the handler reference against the
// handler registry.
func (s *HookService) Register(ctx context.Context, eventType, handlerRef string, organizationID *string) (persistence.HookRegistration, error) {
	if s == nil {
		return persistence.HookRegistration{}, fmt.Errorf("HookService is nil")
	}

	vErr := &ValidationError{}
	if _, ok := recognizedEvents[eventType]; !ok {
		vErr.add("eventType", fmt.Sprintf("unrecognized event type %q", eventType))
	}
	if handlerRef == "" {
		vErr.add("handlerRef", "handler reference is required")
	} else if _, ok := s.handlers[handlerRef]; !ok {
		vErr.add("handlerRef", fmt.Sprintf("no handler registered for reference %q", handlerRef))
	}
	if organizationID != nil && *organizationID == "" {
		vErr.add("organizationId", "organization scope must not be empty")
	}
	if vErr.HasErrors() {
		return persistence.HookRegistration{}, vErr
	}

	registration := persistence.HookRegistration{
		ID:             s.idGenerator(),
		EventType:      eventType,
		HandlerRef:     handlerRef,
		OrganizationID: organizationID,
		Enabled:        true,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.hooks.CreateHook(ctx, registration); err != nil {
		return persistence.HookRegistration{}, mapRepositoryError(err, "hook registration")
	}
	return registration, nil
}

// SetEnabled toggles a registration without deleting its configuration.
func (s *HookService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.hooks.SetHookEnabled(ctx, id, enabled); err != nil {
		return mapRepositoryError(err, "hook registration")
	}
	return nil
}

// Deregister removes a registration.
func (s *HookService) Deregister(ctx context.Context, id string) error {
	if err := s.hooks.DeleteHook(ctx, id); err != nil {
		return mapRepositoryError(err, "hook registration")
	}
	return nil
}

// Trigger fans event out to every enabled matching registration and returns
// the number of handlers invoked. An unscoped registration matches every
// organization; a scoped one matches only an equal event scope, so an event
// without an organization never reaches scoped registrations.
func (s *HookService) Trigger(ctx context.Context, event HookEvent) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("HookService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "hook", "trigger", "event_type", event.Type)

	registrations, err := s.hooks.ListHooksForEvent(ctx, event.Type)
	if err != nil {
		return 0, mapRepositoryError(err, "hook registration")
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}

	invoked := 0
	for _, registration := range registrations {
		if !scopeMatches(registration.OrganizationID, event.OrganizationID) {
			continue
		}
		handler, ok := s.handlers[registration.HandlerRef]
		if !ok {
			logger.Warn("hook handler reference unresolved", "hook_id", registration.ID, "handler_ref", registration.HandlerRef)
			continue
		}

		invoked++
		s.wg.Add(1)
		go s.invoke(logger, registration, handler, event)
	}
	return invoked, nil
}

// Wait blocks until every in-flight handler invocation has finished. Used by
// shutdown and tests.
func (s *HookService) Wait() {
	s.wg.Wait()
}

func (s *HookService) invoke(logger *slog.Logger, registration persistence.HookRegistration, handler HookHandler, event HookEvent) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook handler panicked", "hook_id", registration.ID, "handler_ref", registration.HandlerRef, "panic", r)
		}
	}()

	// Handlers outlive the triggering request, so they get a fresh context.
	if err := handler.Handle(context.Background(), event); err != nil {
		logger.Error("hook handler failed", "hook_id", registration.ID, "handler_ref", registration.HandlerRef, "error", err)
	}
}

func scopeMatches(registrationScope *string, eventScope string) bool {
	if registrationScope == nil {
		return true
	}
	return eventScope != "" && *registrationScope == eventScope
}

// LogHandler is the built-in "log" hook handler: it writes the event to the
// structured log and never fails.
type LogHandler struct {
	Logger *slog.Logger
}

// Name implements HookHandler.
func (h *LogHandler) Name() string { return "log" }

// Handle implements HookHandler.
func (h *LogHandler) Handle(_ context.Context, event HookEvent) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"event_type", event.Type, "organization_id", event.OrganizationID, "occurred_at", event.OccurredAt}
	if event.BookingUID != "" {
		attrs = append(attrs, "booking_uid", event.BookingUID, "previous_status", event.PreviousStatus)
	}
	if event.UserID != "" {
		attrs = append(attrs, "resource_id", event.ResourceID, "user_id", event.UserID, "slot", event.Slot)
	}
	logger.Info("hook event", attrs...)
	return nil
}
