package core

import (
	"errors"
	"fmt"
	"time"
)

// validTransitions defines allowed state transitions for alerts.
// Transitions are forward-only: once acknowledged an alert cannot return to
// active, and resolved is a final state.
var validTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusActive:       {AlertStatusAcknowledged, AlertStatusResolved},
	AlertStatusAcknowledged: {AlertStatusResolved},
	AlertStatusResolved:     {}, // Final state - no transitions allowed
}

// TransitionTo validates and executes an alert state transition.
// Returns error if the transition is invalid. On success the matching
// lifecycle timestamp (AcknowledgedAt/ResolvedAt) is stamped with now.
func (a *Alert) TransitionTo(newStatus AlertStatus, now time.Time) error {
	if newStatus == "" {
		return errors.New("new status cannot be empty")
	}

	if !newStatus.IsValid() {
		return fmt.Errorf("invalid alert status: %s", newStatus)
	}

	allowedTransitions, exists := validTransitions[a.Status]
	if !exists {
		return fmt.Errorf("unknown current status: %s", a.Status)
	}

	allowed := false
	for _, status := range allowedTransitions {
		if status == newStatus {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("invalid transition: %s -> %s (allowed: %v)", a.Status, newStatus, allowedTransitions)
	}

	a.Status = newStatus

	switch newStatus {
	case AlertStatusAcknowledged:
		t := now
		a.AcknowledgedAt = &t
	case AlertStatusResolved:
		t := now
		a.ResolvedAt = &t
	}

	return nil
}

// CanTransitionTo checks if a transition is allowed without executing it
func (a *Alert) CanTransitionTo(newStatus AlertStatus) bool {
	if !newStatus.IsValid() {
		return false
	}

	allowedTransitions, exists := validTransitions[a.Status]
	if !exists {
		return false
	}

	for _, status := range allowedTransitions {
		if status == newStatus {
			return true
		}
	}

	return false
}

// IsFinalState checks if the alert can no longer change status
func (a *Alert) IsFinalState() bool {
	allowedTransitions, exists := validTransitions[a.Status]
	if !exists {
		return false
	}
	return len(allowedTransitions) == 0
}
