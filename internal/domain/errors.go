package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence error")
)

// OrganizationNotFoundError is returned when the directory has no member for an organization name.
type OrganizationNotFoundError struct {
	Name  string
	Cause error
}

func (e *OrganizationNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("organization %q not found: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("organization %q not found", e.Name)
}

func (e *OrganizationNotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *OrganizationNotFoundError) Unwrap() error { return e.Cause }

// ProjectNotFoundError is returned when a project slug cannot be resolved.
type ProjectNotFoundError struct {
	Slug  string
	Cause error
}

func (e *ProjectNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("project %q not found: %v", e.Slug, e.Cause)
	}
	return fmt.Sprintf("project %q not found", e.Slug)
}

func (e *ProjectNotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *ProjectNotFoundError) Unwrap() error { return e.Cause }

// PersistenceError wraps a local store failure. It is surfaced but never retried.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Cause }
