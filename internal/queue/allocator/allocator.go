package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/config"
	"clinicflow/pkg/logger"

	"github.com/google/uuid"
)

// Allocator hands out per-day sequence numbers that are unique and strictly
// increasing across every process sharing the store.
type Allocator interface {
	Allocate(ctx context.Context, key string) (int64, error)
}

// LockingAllocator implements the reclaim, acquire, increment-and-release
// protocol over a SequenceRepository. It never retries; ErrContention is
// returned to the caller.
type LockingAllocator struct {
	repo     repository.SequenceRepository
	ttl      time.Duration
	log      *logger.Logger
	now      func() time.Time
	newToken func() string
}

func NewLockingAllocator(repo repository.SequenceRepository, ttl time.Duration, log *logger.Logger) *LockingAllocator {
	return &LockingAllocator{
		repo:     repo,
		ttl:      ttl,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: uuid.NewString,
	}
}

func (a *LockingAllocator) Allocate(ctx context.Context, key string) (int64, error) {
	now := a.now()
	reclaimed, err := a.repo.ReclaimExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired locks: %w", err)
	}
	if reclaimed > 0 {
		a.log.Warn("reclaimed expired sequence locks", "count", reclaimed)
	}

	token := a.newToken()
	acquired, err := a.repo.Acquire(ctx, key, token, now, a.ttl)
	if err != nil {
		// The write may have landed before the error surfaced.
		a.release(ctx, key, token)
		return 0, err
	}
	if !acquired {
		return 0, fmt.Errorf("%w: %s", queueerrors.ErrContention, key)
	}

	value, err := a.repo.IncrementAndRelease(ctx, key, token, a.now())
	if err != nil {
		if errors.Is(err, queueerrors.ErrAllocationConsistency) {
			a.log.Error("sequence lock lost before increment", "key", key, "ttl", a.ttl)
		}
		a.release(ctx, key, token)
		return 0, err
	}

	a.log.Debug("allocated sequence", "key", key, "value", value)
	return value, nil
}

func (a *LockingAllocator) release(ctx context.Context, key, token string) {
	if err := a.repo.Release(context.WithoutCancel(ctx), key, token); err != nil {
		a.log.Warn("failed to release sequence lock", "key", key, "error", err)
	}
}

// NativeAllocator delegates to a store-level atomic increment.
type NativeAllocator struct {
	repo repository.AtomicSequenceRepository
	now  func() time.Time
}

func NewNativeAllocator(repo repository.AtomicSequenceRepository) *NativeAllocator {
	return &NativeAllocator{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *NativeAllocator) Allocate(ctx context.Context, key string) (int64, error) {
	return a.repo.Next(ctx, key, a.now())
}

// New picks the native strategy when asked for and supported by the store,
// otherwise the locking protocol.
func New(repo repository.SequenceRepository, strategy string, ttl time.Duration, log *logger.Logger) Allocator {
	if strategy == config.SequenceStrategyNative {
		if atomic, ok := repo.(repository.AtomicSequenceRepository); ok {
			return NewNativeAllocator(atomic)
		}
		log.Warn("store has no native increment, using lock protocol")
	}
	return NewLockingAllocator(repo, ttl, log)
}
