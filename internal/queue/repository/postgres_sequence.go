package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/pkg/config"
	"clinicflow/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresSequenceRepository struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

// NewPostgresSequenceRepository returns a store that supports both the lock
// protocol and the native ON CONFLICT increment.
func NewPostgresSequenceRepository(cfg *config.Config) SequenceRepository {
	return &postgresSequenceRepository{
		pool:      cfg.Client.Postgres,
		opTimeout: cfg.StoreOpTimeout,
	}
}

const sequenceCols = `key, value, last_updated, locked, lock_expires_at, COALESCE(lock_token, ''), created_at`

func (r *postgresSequenceRepository) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_counters
		SET locked = FALSE, lock_expires_at = NULL, lock_token = NULL
		WHERE locked AND lock_expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired sequence locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresSequenceRepository) Acquire(ctx context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO sequence_counters (key, value, last_updated, locked, lock_expires_at, lock_token, created_at)
		VALUES ($1, 0, $2, TRUE, $3, $4, $2)
		ON CONFLICT (key) DO UPDATE
		SET locked = TRUE, lock_expires_at = EXCLUDED.lock_expires_at, lock_token = EXCLUDED.lock_token
		WHERE sequence_counters.locked = FALSE`,
		key, now, now.Add(ttl), token)
	if err != nil {
		return false, fmt.Errorf("failed to acquire sequence lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresSequenceRepository) IncrementAndRelease(ctx context.Context, key, token string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	var value int64
	err := r.pool.QueryRow(ctx, `
		UPDATE sequence_counters
		SET value = value + 1, last_updated = $3, locked = FALSE, lock_expires_at = NULL, lock_token = NULL
		WHERE key = $1 AND locked AND lock_token = $2
		RETURNING value`, key, token, now).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", queueerrors.ErrAllocationConsistency, key)
		}
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return value, nil
}

func (r *postgresSequenceRepository) Release(ctx context.Context, key, token string) error {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		UPDATE sequence_counters
		SET locked = FALSE, lock_expires_at = NULL, lock_token = NULL
		WHERE key = $1 AND lock_token = $2`, key, token)
	if err != nil {
		return fmt.Errorf("failed to release sequence lock: %w", err)
	}
	return nil
}

// Next increments without lock fields; the row lock taken by ON CONFLICT
// serialises concurrent callers.
func (r *postgresSequenceRepository) Next(ctx context.Context, key string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sequence_counters (key, value, last_updated, locked, created_at)
		VALUES ($1, 1, $2, FALSE, $2)
		ON CONFLICT (key)
		DO UPDATE SET value = sequence_counters.value + 1, last_updated = EXCLUDED.last_updated
		RETURNING value`, key, now).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return value, nil
}

func (r *postgresSequenceRepository) Get(ctx context.Context, key string) (*model.SequenceCounter, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	counter, err := scanCounter(r.pool.QueryRow(ctx, `SELECT `+sequenceCols+` FROM sequence_counters WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sequence counter %s", queueerrors.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to find sequence counter: %w", err)
	}
	return counter, nil
}

func (r *postgresSequenceRepository) List(ctx context.Context, limit int) ([]*model.SequenceCounter, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+sequenceCols+` FROM sequence_counters ORDER BY key DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequence counters: %w", err)
	}
	defer rows.Close()

	var counters []*model.SequenceCounter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sequence counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

func scanCounter(row pgx.Row) (*model.SequenceCounter, error) {
	var c model.SequenceCounter
	if err := row.Scan(&c.Key, &c.Value, &c.LastUpdated, &c.Locked, &c.LockExpiresAt, &c.LockToken, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
