package repository

import (
	"context"
	"time"

	"clinicflow/pkg/model"
)

const (
	SequenceCollection   = "sequence_counters"
	QueueEntryCollection = "queue_entries"

	// ActivePatientIndex enforces one non-terminal entry per patient per day.
	ActivePatientIndex = "uniq_active_patient_date"
	// DaySequenceIndex enforces unique sequence numbers within a day.
	DaySequenceIndex = "uniq_date_sequence"
)

// SequenceRepository is the persistence side of the lock-and-expiry
// allocation protocol. Every method is a single atomic store operation.
type SequenceRepository interface {
	// ReclaimExpired unlocks every counter whose lock expired before now.
	ReclaimExpired(ctx context.Context, now time.Time) (int64, error)
	// Acquire locks the counter for key under token, creating it at value 0
	// when absent. It reports false when another holder has the lock.
	Acquire(ctx context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error)
	// IncrementAndRelease bumps the value and drops the lock in one update,
	// provided token still holds it. Otherwise ErrAllocationConsistency.
	IncrementAndRelease(ctx context.Context, key, token string, now time.Time) (int64, error)
	// Release drops the lock if token still holds it.
	Release(ctx context.Context, key, token string) error
	Get(ctx context.Context, key string) (*model.SequenceCounter, error)
	List(ctx context.Context, limit int) ([]*model.SequenceCounter, error)
}

// AtomicSequenceRepository is implemented by stores with a native
// increment-and-return primitive that needs no lock fields.
type AtomicSequenceRepository interface {
	Next(ctx context.Context, key string, now time.Time) (int64, error)
}

type QueueEntryRepository interface {
	// Create inserts a new entry. ErrDuplicateActiveEntry when the patient
	// already holds an active entry that day.
	Create(ctx context.Context, entry *model.QueueEntry) error
	FindByID(ctx context.Context, id string) (*model.QueueEntry, error)
	FindActiveByPatient(ctx context.Context, patientRef, date string) (*model.QueueEntry, error)
	ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error)
	// FindNextWaiting returns the waiting entry that should be called next.
	FindNextWaiting(ctx context.Context, date string) (*model.QueueEntry, error)
	// UpdateStatus applies the update only if the entry is still in from.
	// ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from model.QueueStatus, update model.StatusUpdate) (*model.QueueEntry, error)
	// UpdatePriority changes priority of a waiting entry.
	UpdatePriority(ctx context.Context, id string, priority int) (*model.QueueEntry, error)
	CountByStatus(ctx context.Context, date string) (map[model.QueueStatus]int, error)
}

// withTimeout bounds a store call by timeout, or by the caller's deadline when
// that is sooner.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}
