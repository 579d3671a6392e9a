package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("queue entry not found")

	ErrInvalidID = errors.New("invalid queue entry ID format")

	// ErrContention is returned when the day's sequence lock is held by another
	// allocator. Callers retry with backoff.
	ErrContention = errors.New("sequence counter is locked by another allocator")

	// ErrAllocationConsistency is returned when the allocator's lock was
	// reclaimed between acquire and increment.
	ErrAllocationConsistency = errors.New("sequence lock lost before increment")

	ErrDuplicateActiveEntry = errors.New("patient already has an active queue entry for this date")

	ErrInvalidTransition = errors.New("invalid queue status transition")

	ErrNoWaitingEntry = errors.New("no waiting queue entry")

	// ErrStatusConflict is returned by conditional updates when the entry is no
	// longer in the expected status.
	ErrStatusConflict = errors.New("queue entry status changed concurrently")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition.Error(), e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsRetryable reports whether an allocation attempt may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention) || errors.Is(err, ErrAllocationConsistency)
}
