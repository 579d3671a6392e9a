package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/pkg/model"
)

// MemorySequenceRepository keeps counters in process memory with the same
// lock semantics as the persistent stores. Used by tests and the memory driver.
type MemorySequenceRepository struct {
	mu       sync.Mutex
	counters map[string]*model.SequenceCounter
}

func NewMemorySequenceRepository() *MemorySequenceRepository {
	return &MemorySequenceRepository{counters: make(map[string]*model.SequenceCounter)}
}

func (r *MemorySequenceRepository) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reclaimed int64
	for _, c := range r.counters {
		if c.LockExpired(now) {
			unlock(c)
			reclaimed++
		}
	}
	return reclaimed, ctx.Err()
}

func (r *MemorySequenceRepository) Acquire(ctx context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok {
		c = &model.SequenceCounter{Key: key, CreatedAt: now, LastUpdated: now}
		r.counters[key] = c
	}
	if c.Locked {
		return false, nil
	}
	expires := now.Add(ttl)
	c.Locked = true
	c.LockExpiresAt = &expires
	c.LockToken = token
	return true, nil
}

func (r *MemorySequenceRepository) IncrementAndRelease(ctx context.Context, key, token string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok || !c.Locked || c.LockToken != token {
		return 0, fmt.Errorf("%w: %s", queueerrors.ErrAllocationConsistency, key)
	}
	c.Value++
	c.LastUpdated = now
	unlock(c)
	return c.Value, nil
}

func (r *MemorySequenceRepository) Release(ctx context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[key]; ok && c.LockToken == token {
		unlock(c)
	}
	return nil
}

func (r *MemorySequenceRepository) Next(ctx context.Context, key string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok {
		c = &model.SequenceCounter{Key: key, CreatedAt: now}
		r.counters[key] = c
	}
	c.Value++
	c.LastUpdated = now
	return c.Value, nil
}

func (r *MemorySequenceRepository) Get(ctx context.Context, key string) (*model.SequenceCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok {
		return nil, fmt.Errorf("%w: sequence counter %s", queueerrors.ErrNotFound, key)
	}
	out := *c
	return &out, nil
}

func (r *MemorySequenceRepository) List(ctx context.Context, limit int) ([]*model.SequenceCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.SequenceCounter, 0, len(r.counters))
	for _, c := range r.counters {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func unlock(c *model.SequenceCounter) {
	c.Locked = false
	c.LockExpiresAt = nil
	c.LockToken = ""
}

// MemoryQueueEntryRepository mirrors the persistent stores' unique indexes and
// conditional updates in process memory.
type MemoryQueueEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*model.QueueEntry
}

func NewMemoryQueueEntryRepository() *MemoryQueueEntryRepository {
	return &MemoryQueueEntryRepository{entries: make(map[string]*model.QueueEntry)}
}

func (r *MemoryQueueEntryRepository) Create(ctx context.Context, entry *model.QueueEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ID == entry.ID {
			return fmt.Errorf("failed to create queue entry: duplicate id %s", entry.ID)
		}
		if e.Date != entry.Date {
			continue
		}
		if e.Active && entry.Active && e.PatientRef == entry.PatientRef {
			return fmt.Errorf("%w: %s on %s", queueerrors.ErrDuplicateActiveEntry, entry.PatientRef, entry.Date)
		}
		if e.SequenceNumber == entry.SequenceNumber {
			return fmt.Errorf("failed to create queue entry: sequence %d already used on %s", entry.SequenceNumber, entry.Date)
		}
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *MemoryQueueEntryRepository) FindByID(ctx context.Context, id string) (*model.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, id)
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryQueueEntryRepository) FindActiveByPatient(ctx context.Context, patientRef, date string) (*model.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Active && e.PatientRef == patientRef && e.Date == date {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, patientRef)
}

func (r *MemoryQueueEntryRepository) ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error) {
	return r.filter(date, func(e *model.QueueEntry) bool { return e.Active }), nil
}

func (r *MemoryQueueEntryRepository) FindNextWaiting(ctx context.Context, date string) (*model.QueueEntry, error) {
	waiting := r.filter(date, func(e *model.QueueEntry) bool { return e.Status == model.StatusWaiting })
	if len(waiting) == 0 {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNoWaitingEntry, date)
	}
	return waiting[0], nil
}

// filter returns copies of matching entries for date in call order.
func (r *MemoryQueueEntryRepository) filter(date string, keep func(*model.QueueEntry) bool) []*model.QueueEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.QueueEntry{}
	for _, e := range r.entries {
		if e.Date == date && keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return model.CallsBefore(out[i], out[j]) })
	return out
}

func (r *MemoryQueueEntryRepository) UpdateStatus(ctx context.Context, id string, from model.QueueStatus, u model.StatusUpdate) (*model.QueueEntry, error) {
	return r.conditionalUpdate(ctx, id, from, func(e *model.QueueEntry) {
		*e = e.Apply(u)
	})
}

func (r *MemoryQueueEntryRepository) UpdatePriority(ctx context.Context, id string, priority int) (*model.QueueEntry, error) {
	return r.conditionalUpdate(ctx, id, model.StatusWaiting, func(e *model.QueueEntry) {
		e.Priority = priority
	})
}

func (r *MemoryQueueEntryRepository) conditionalUpdate(ctx context.Context, id string, from model.QueueStatus, mutate func(*model.QueueEntry)) (*model.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, id)
	}
	if e.Status != from {
		return nil, fmt.Errorf("%w: %s is no longer %s", queueerrors.ErrStatusConflict, id, from)
	}
	mutate(e)
	cp := *e
	return &cp, nil
}

func (r *MemoryQueueEntryRepository) CountByStatus(ctx context.Context, date string) (map[model.QueueStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[model.QueueStatus]int{}
	for _, e := range r.entries {
		if e.Date == date {
			counts[e.Status]++
		}
	}
	return counts, nil
}
