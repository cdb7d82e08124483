package core

import "errors"

var (
	// ErrNotFound is returned when a referenced task or time entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a status transition is not allowed.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned for malformed input such as a missing task name.
	ErrValidation = errors.New("validation failed")

	// ErrConsistency marks an in-progress task that has no open time entry.
	// It points at an earlier write that broke the one-open-entry invariant.
	ErrConsistency = errors.New("consistency violation")
)
