// Package repotest holds the behavioural contract every queue store must
// satisfy, shared by the in-memory tests and the database integration tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SequenceContract exercises the lock protocol against any store.
func SequenceContract(t *testing.T, repo repository.SequenceRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	ttl := 30 * time.Second

	t.Run("acquire creates counter at zero", func(t *testing.T) {
		key := "sequence:" + uuid.NewString()
		token := uuid.NewString()

		ok, err := repo.Acquire(ctx, key, token, now, ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		c, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, c.Locked)
		assert.Equal(t, int64(0), c.Value)

		v, err := repo.IncrementAndRelease(ctx, key, token, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		c, err = repo.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, c.Locked)
		assert.Nil(t, c.LockExpiresAt)
	})

	t.Run("held lock is not acquirable", func(t *testing.T) {
		key := "sequence:" + uuid.NewString()
		ok, err := repo.Acquire(ctx, key, "holder", now, ttl)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.Acquire(ctx, key, "other", now, ttl)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired lock is reclaimed", func(t *testing.T) {
		key := "sequence:" + uuid.NewString()
		ok, err := repo.Acquire(ctx, key, "crashed", now.Add(-time.Minute), ttl)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := repo.ReclaimExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		ok, err = repo.Acquire(ctx, key, "fresh", now, ttl)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = repo.IncrementAndRelease(ctx, key, "crashed", now)
		assert.ErrorIs(t, err, queueerrors.ErrAllocationConsistency)

		v, err := repo.IncrementAndRelease(ctx, key, "fresh", now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})

	t.Run("release ignores foreign token", func(t *testing.T) {
		key := "sequence:" + uuid.NewString()
		ok, err := repo.Acquire(ctx, key, "mine", now, ttl)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, repo.Release(ctx, key, "theirs"))
		c, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, c.Locked)

		require.NoError(t, repo.Release(ctx, key, "mine"))
		c, err = repo.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, c.Locked)
	})

	t.Run("missing counter", func(t *testing.T) {
		_, err := repo.Get(ctx, "sequence:missing-"+uuid.NewString())
		assert.ErrorIs(t, err, queueerrors.ErrNotFound)
	})

	if atomic, ok := repo.(repository.AtomicSequenceRepository); ok {
		t.Run("native next is gapless under concurrency", func(t *testing.T) {
			key := "sequence:" + uuid.NewString()
			const n = 20
			var wg sync.WaitGroup
			values := make(chan int64, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := atomic.Next(ctx, key, now)
					assert.NoError(t, err)
					values <- v
				}()
			}
			wg.Wait()
			close(values)

			seen := map[int64]bool{}
			for v := range values {
				assert.False(t, seen[v], "duplicate %d", v)
				seen[v] = true
			}
			for i := int64(1); i <= n; i++ {
				assert.True(t, seen[i], "missing %d", i)
			}
		})
	}
}

// NewEntry builds a waiting entry for the contract fixtures.
func NewEntry(patient, date string, seq int64, priority int, at time.Time) *model.QueueEntry {
	return &model.QueueEntry{
		ID:              uuid.NewString(),
		QueueNumber:     model.FormatQueueNumber(date, seq),
		PatientRef:      patient,
		Date:            date,
		SequenceNumber:  seq,
		Status:          model.StatusWaiting,
		Priority:        priority,
		Active:          true,
		RegisteredAt:    at,
		StatusChangedAt: at,
	}
}

// QueueEntryContract exercises uniqueness, ordering and conditional
// updates against any store. date must be unused by earlier runs.
func QueueEntryContract(t *testing.T, repo repository.QueueEntryRepository, date string) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	a := NewEntry("patient-a", date, 1, 1, base)
	b := NewEntry("patient-b", date, 2, 3, base.Add(time.Second))
	c := NewEntry("patient-c", date, 3, 1, base.Add(2*time.Second))
	for _, e := range []*model.QueueEntry{a, b, c} {
		require.NoError(t, repo.Create(ctx, e))
	}

	t.Run("duplicate active entry rejected", func(t *testing.T) {
		dup := NewEntry("patient-a", date, 4, 0, base)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, queueerrors.ErrDuplicateActiveEntry)
	})

	t.Run("next waiting follows priority then registration", func(t *testing.T) {
		next, err := repo.FindNextWaiting(ctx, date)
		require.NoError(t, err)
		assert.Equal(t, b.ID, next.ID)

		active, err := repo.ListActive(ctx, date)
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, []string{b.ID, a.ID, c.ID}, []string{active[0].ID, active[1].ID, active[2].ID})
	})

	t.Run("conditional update", func(t *testing.T) {
		calledAt := base.Add(time.Minute)
		updated, err := repo.UpdateStatus(ctx, a.ID, model.StatusWaiting, model.StatusUpdate{
			Status:    model.StatusCalled,
			ChangedAt: calledAt,
			ChangedBy: "desk-1",
			CalledAt:  &calledAt,
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCalled, updated.Status)
		require.NotNil(t, updated.CalledAt)
		assert.True(t, updated.Active)

		_, err = repo.UpdateStatus(ctx, a.ID, model.StatusWaiting, model.StatusUpdate{Status: model.StatusCalled, ChangedAt: calledAt})
		assert.ErrorIs(t, err, queueerrors.ErrStatusConflict)

		_, err = repo.UpdateStatus(ctx, uuid.NewString(), model.StatusWaiting, model.StatusUpdate{Status: model.StatusCalled, ChangedAt: calledAt})
		assert.ErrorIs(t, err, queueerrors.ErrNotFound)

		_, err = repo.UpdatePriority(ctx, a.ID, 9)
		assert.ErrorIs(t, err, queueerrors.ErrStatusConflict)
	})

	t.Run("terminal entry frees the patient for the day", func(t *testing.T) {
		done := base.Add(2 * time.Minute)
		cancelled, err := repo.UpdateStatus(ctx, c.ID, model.StatusWaiting, model.StatusUpdate{
			Status:     model.StatusCancelled,
			ChangedAt:  done,
			StatusNote: "left",
		})
		require.NoError(t, err)
		assert.False(t, cancelled.Active)
		assert.Equal(t, "left", cancelled.StatusNote)

		_, err = repo.FindActiveByPatient(ctx, "patient-c", date)
		assert.ErrorIs(t, err, queueerrors.ErrNotFound)

		again := NewEntry("patient-c", date, 5, 0, done)
		require.NoError(t, repo.Create(ctx, again))
	})

	t.Run("priority update on waiting entry", func(t *testing.T) {
		updated, err := repo.UpdatePriority(ctx, b.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, updated.Priority)
	})

	t.Run("counts by status", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx, date)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[model.StatusCalled])
		assert.Equal(t, 2, counts[model.StatusWaiting])
		assert.Equal(t, 1, counts[model.StatusCancelled])
	})

	t.Run("empty day has no next", func(t *testing.T) {
		_, err := repo.FindNextWaiting(ctx, "1999-01-01")
		assert.ErrorIs(t, err, queueerrors.ErrNoWaitingEntry)
	})
}
