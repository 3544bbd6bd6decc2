// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrDefinitionAlreadyExists indicates a definition with the same name
	// and version was already published.
	ErrDefinitionAlreadyExists = errors.New("workflow definition already exists")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrAssignmentNotFound indicates an assignment was not found.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrDuplicateActiveInstance indicates the entity already has an active
	// instance for the same workflow.
	ErrDuplicateActiveInstance = errors.New("entity already has an active instance")

	// ErrStaleVersion indicates an optimistic concurrency conflict; the
	// caller must reload and retry the whole operation.
	ErrStaleVersion = errors.New("stale instance version")
)

// InstanceError wraps instance-related errors with operation context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "Save", "GetByID")
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// DefinitionError wraps definition-related errors with operation context.
type DefinitionError struct {
	Op           string
	DefinitionID string
	Err          error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%s operation failed for definition %s: %v", e.Op, e.DefinitionID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDefinitionError creates a new definition error with context.
func NewDefinitionError(op, definitionID string, err error) *DefinitionError {
	return &DefinitionError{Op: op, DefinitionID: definitionID, Err: err}
}

// IsDefinitionNotFound checks if an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsDefinitionAlreadyExists checks if an error indicates a name/version
// collision on publish.
func IsDefinitionAlreadyExists(err error) bool {
	return errors.Is(err, ErrDefinitionAlreadyExists)
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsAssignmentNotFound checks if an error indicates a missing assignment.
func IsAssignmentNotFound(err error) bool {
	return errors.Is(err, ErrAssignmentNotFound)
}

// IsStaleVersion checks if an error indicates an optimistic concurrency
// conflict.
func IsStaleVersion(err error) bool {
	return errors.Is(err, ErrStaleVersion)
}
