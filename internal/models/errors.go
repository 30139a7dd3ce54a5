package models

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing expense, list, request or user.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// NotFound returns a NotFoundError for the named resource.
func NotFound(resource string) error {
	return NotFoundError{Resource: resource}
}

var (
	// ErrNotFound is the sentinel error for missing resources.
	ErrNotFound = NotFoundError{}

	ErrInvalidSplit            = errors.New("invalid split")
	ErrInvalidInput            = errors.New("invalid input")
	ErrForbidden               = errors.New("forbidden")
	ErrDuplicateRequest        = errors.New("duplicate request")
	ErrApprovalAlreadyRecorded = errors.New("approval already recorded")
	ErrConflict                = errors.New("conflict")
	ErrStorageUnavailable      = errors.New("storage unavailable")
)

// Unavailable marks a persistence failure as retryable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
}
