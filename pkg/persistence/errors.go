// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrStateNotFound indicates no state has been committed for the workflow
	// yet (first run).
	ErrStateNotFound = errors.New("workflow state not found")

	// ErrVersionConflict indicates the optimistic version guard rejected a
	// commit because the head moved underneath it.
	ErrVersionConflict = errors.New("state version conflict")

	// ErrTriggerNotFound indicates no ledger record exists for the trigger id.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrInvalidTransition indicates a trigger status change that the state
	// machine forbids.
	ErrInvalidTransition = errors.New("invalid trigger status transition")
)

// StateError wraps state-related errors with additional context.
type StateError struct {
	Op         string // Operation being performed (e.g., "Latest", "Commit")
	WorkflowID string
	Version    int64
	Err        error
}

func (e *StateError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("%s operation failed for workflow %s version %d: %v", e.Op, e.WorkflowID, e.Version, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func (e *StateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// TriggerError wraps ledger-related errors with additional context.
type TriggerError struct {
	Op         string
	WorkflowID string
	TriggerID  string
	Err        error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s operation failed for trigger %s in workflow %s: %v", e.Op, e.TriggerID, e.WorkflowID, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

func (e *TriggerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsStateNotFound checks if an error indicates a first-run missing state.
func IsStateNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound)
}

// IsVersionConflict checks if an error indicates an optimistic lock rejection.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsTriggerNotFound checks if an error indicates a missing ledger record.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}
