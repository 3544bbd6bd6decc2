// Package engine provides standardized error types for approval engine
// operations.
package engine

import (
	"errors"

	"github.com/machshop/approvalflow/pkg/persistence"
	"github.com/machshop/approvalflow/pkg/resolver"
)

// Business logic errors surfaced synchronously to callers with no side
// effects on instance state.
var (
	// Validation errors (400-class).
	ErrDefinitionInactive   = errors.New("definition is deactivated")
	ErrAssignmentActioned   = errors.New("assignment already has a different action")
	ErrDelegationNotAllowed = errors.New("stage does not allow delegation")
	ErrSignatureRequired    = errors.New("stage requires a signature reference")
	ErrStageNotActive       = errors.New("assignment does not belong to an active stage")
	ErrInvalidAction        = errors.New("action must be approved or rejected")
	ErrInvalidDelegate      = errors.New("invalid delegation request")

	// Terminal-state violations: acting on a completed, cancelled, or
	// errored instance.
	ErrTerminalState = errors.New("instance is in a terminal state")

	// Conflicts (409-class).
	ErrDuplicateActiveInstance = persistence.ErrDuplicateActiveInstance
	ErrConcurrencyConflict     = errors.New("concurrent modification, retry the operation")
)

// IsValidationError checks if an error should be rejected as a bad request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrDefinitionInactive) ||
		errors.Is(err, ErrAssignmentActioned) ||
		errors.Is(err, ErrDelegationNotAllowed) ||
		errors.Is(err, ErrSignatureRequired) ||
		errors.Is(err, ErrStageNotActive) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInvalidDelegate)
}

// IsTerminalStateError checks if an error is an attempt to act on a
// terminal instance.
func IsTerminalStateError(err error) bool {
	return errors.Is(err, ErrTerminalState)
}

// IsConflictError checks if an error is a business or concurrency conflict
// the caller should retry or surface as 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateActiveInstance) ||
		errors.Is(err, ErrConcurrencyConflict) ||
		persistence.IsStaleVersion(err)
}

// IsResolutionError checks if an error came from assignee resolution; such
// errors move the instance to the errored state.
func IsResolutionError(err error) bool {
	return errors.Is(err, resolver.ErrNoAssignees) ||
		errors.Is(err, resolver.ErrMissingAssigneeField)
}
