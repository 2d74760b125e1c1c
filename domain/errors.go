package domain

import (
	"errors"
	"fmt"
)

// Registration state-machine guard violations. These are expected control
// outcomes, surfaced to callers as user-actionable messages.
var (
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrNotRegistered     = errors.New("not registered for this event")
	ErrEventFull         = errors.New("event is fully booked")
)

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ValidationError reports the first offending field of a create/update payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// NotFoundError reports an absent entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PartialRegistrationError marks a two-phase write that committed on the
// event side but failed on the user side. The condition is recoverable via
// the repair queue; callers see a generic failure while operators can alert
// on the distinct type.
type PartialRegistrationError struct {
	UserID  string
	EventID string
	Op      RepairOp
	Err     error
}

func (e *PartialRegistrationError) Error() string {
	return fmt.Sprintf("partial %s registration for user %s event %s: %v", e.Op, e.UserID, e.EventID, e.Err)
}

func (e *PartialRegistrationError) Unwrap() error { return e.Err }

// InfrastructureError wraps storage-layer failures that are safe to retry.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
