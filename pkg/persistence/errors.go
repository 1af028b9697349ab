// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all backends should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrVersionConflict indicates an instance write lost an optimistic
	// concurrency check; the caller must re-read and retry.
	ErrVersionConflict = errors.New("instance version conflict")

	// ErrDefinitionExists indicates a definition with the same ID already exists.
	ErrDefinitionExists = errors.New("workflow definition already exists")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g. "DefinitionByID", "SaveInstance")
	ID  string // Entity ID if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsNotFound reports whether err is either not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) || errors.Is(err, ErrInstanceNotFound)
}

// IsVersionConflict reports whether err is an optimistic concurrency failure.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
