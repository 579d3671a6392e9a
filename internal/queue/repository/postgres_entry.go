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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type postgresQueueEntryRepository struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

func NewPostgresQueueEntryRepository(cfg *config.Config) QueueEntryRepository {
	return &postgresQueueEntryRepository{
		pool:      cfg.Client.Postgres,
		opTimeout: cfg.StoreOpTimeout,
	}
}

const entryCols = `id, queue_number, patient_ref, date, sequence_number, status, priority, active,
	status_note, registered_by, registered_at, called_at, consulting_started_at, completed_at,
	status_changed_at, status_changed_by`

const callOrderSQL = `priority DESC, registered_at ASC, sequence_number ASC`

func (r *postgresQueueEntryRepository) Create(ctx context.Context, e *model.QueueEntry) error {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO queue_entries (`+entryCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.QueueNumber, e.PatientRef, e.Date, e.SequenceNumber, string(e.Status), e.Priority, e.Active,
		e.StatusNote, e.RegisteredBy, e.RegisteredAt, e.CalledAt, e.ConsultingStartedAt, e.CompletedAt,
		e.StatusChangedAt, e.StatusChangedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == ActivePatientIndex {
			return fmt.Errorf("%w: %s on %s", queueerrors.ErrDuplicateActiveEntry, e.PatientRef, e.Date)
		}
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	return nil
}

func (r *postgresQueueEntryRepository) FindByID(ctx context.Context, id string) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	return r.findOne(ctx, id, `SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id)
}

func (r *postgresQueueEntryRepository) FindActiveByPatient(ctx context.Context, patientRef, date string) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	return r.findOne(ctx, patientRef,
		`SELECT `+entryCols+` FROM queue_entries WHERE patient_ref = $1 AND date = $2 AND active`,
		patientRef, date)
}

func (r *postgresQueueEntryRepository) FindNextWaiting(ctx context.Context, date string) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	entry, err := r.findOne(ctx, date,
		`SELECT `+entryCols+` FROM queue_entries WHERE date = $1 AND status = $2 ORDER BY `+callOrderSQL+` LIMIT 1`,
		date, string(model.StatusWaiting))
	if errors.Is(err, queueerrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNoWaitingEntry, date)
	}
	return entry, err
}

func (r *postgresQueueEntryRepository) findOne(ctx context.Context, ref, query string, args ...any) (*model.QueueEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}
	return entry, nil
}

func (r *postgresQueueEntryRepository) ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE date = $1 AND active ORDER BY `+callOrderSQL, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.QueueEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *postgresQueueEntryRepository) UpdateStatus(ctx context.Context, id string, from model.QueueStatus, u model.StatusUpdate) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE queue_entries SET
			status = $3,
			active = $4,
			status_changed_at = $5,
			status_changed_by = $6,
			called_at = COALESCE($7, called_at),
			consulting_started_at = COALESCE($8, consulting_started_at),
			completed_at = COALESCE($9, completed_at),
			status_note = COALESCE(NULLIF($10, ''), status_note)
		WHERE id = $1 AND status = $2
		RETURNING `+entryCols,
		id, string(from), string(u.Status), u.Status.IsActive(), u.ChangedAt, u.ChangedBy,
		u.CalledAt, u.ConsultingStartedAt, u.CompletedAt, u.StatusNote,
	)
	return r.conditionalResult(ctx, row, id, from)
}

func (r *postgresQueueEntryRepository) UpdatePriority(ctx context.Context, id string, priority int) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE queue_entries SET priority = $3
		WHERE id = $1 AND status = $2
		RETURNING `+entryCols,
		id, string(model.StatusWaiting), priority)
	return r.conditionalResult(ctx, row, id, model.StatusWaiting)
}

func (r *postgresQueueEntryRepository) conditionalResult(ctx context.Context, row pgx.Row, id string, from model.QueueStatus) (*model.QueueEntry, error) {
	entry, err := scanEntry(row)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update queue entry: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_entries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check queue entry: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, id)
	}
	return nil, fmt.Errorf("%w: %s is no longer %s", queueerrors.ErrStatusConflict, id, from)
}

func (r *postgresQueueEntryRepository) CountByStatus(ctx context.Context, date string) (map[model.QueueStatus]int, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM queue_entries WHERE date = $1 GROUP BY status`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := map[model.QueueStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[model.QueueStatus(status)] = count
	}
	return counts, rows.Err()
}

func scanEntry(row pgx.Row) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var status string
	err := row.Scan(
		&e.ID, &e.QueueNumber, &e.PatientRef, &e.Date, &e.SequenceNumber, &status, &e.Priority, &e.Active,
		&e.StatusNote, &e.RegisteredBy, &e.RegisteredAt, &e.CalledAt, &e.ConsultingStartedAt, &e.CompletedAt,
		&e.StatusChangedAt, &e.StatusChangedBy,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.QueueStatus(status)
	return &e, nil
}
