// Package lifecycle defines the booking status machine: the set of statuses,
// the allowed transitions between them, and the error reported for illegal
// transition attempts.
package lifecycle

import (
	"fmt"
	"strings"
)

// Status is a booking lifecycle state.
type Status string

const (
	// StatusPending marks a reservation awaiting confirmation.
	StatusPending Status = "pending"
	// StatusConfirmed marks an accepted reservation.
	StatusConfirmed Status = "confirmed"
	// StatusCancelled is terminal.
	StatusCancelled Status = "cancelled"
	// StatusCompleted is terminal.
	StatusCompleted Status = "completed"
)

// transitions maps each status to the statuses reachable from it. Terminal
// statuses map to an empty set.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
	StatusCancelled: {},
	StatusCompleted: {},
}

// Valid reports whether s is a recognized status.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0 && Valid(s)
}

// AllowedNext returns the statuses reachable from s, in a stable order.
func AllowedNext(s Status) []Status {
	allowed := transitions[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransition reports whether from -> to is an allowed transition.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Validate returns an InvalidTransitionError if from -> to is not allowed.
func Validate(from, to Status) error {
	if !Valid(from) {
		return fmt.Errorf("lifecycle: unknown status %q", from)
	}
	if !Valid(to) {
		return fmt.Errorf("lifecycle: unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to, Allowed: AllowedNext(from)}
	}
	return nil
}

// InvalidTransitionError reports an illegal status change. The message names
// the allowed set so it can be rendered directly in a UI dialog.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("cannot transition booking from %s to %s: %s is a terminal status", e.From, e.To, e.From)
	}
	names := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		names[i] = string(s)
	}
	return fmt.Sprintf("cannot transition booking from %s to %s: allowed transitions are %s", e.From, e.To, strings.Join(names, ", "))
}
