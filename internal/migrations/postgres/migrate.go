package postgres

import (
	"context"
	"fmt"

	"clinicflow/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations are applied in order, each in its own transaction. Append only.
var Migrations = []migration{
	{
		Version: 1,
		Name:    "sequence_counters",
		SQL: `
CREATE TABLE IF NOT EXISTS sequence_counters (
	key             TEXT PRIMARY KEY,
	value           BIGINT NOT NULL DEFAULT 0 CHECK (value >= 0),
	last_updated    TIMESTAMPTZ NOT NULL,
	locked          BOOLEAN NOT NULL DEFAULT FALSE,
	lock_expires_at TIMESTAMPTZ,
	lock_token      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sequence_counters_expired_locks
	ON sequence_counters (lock_expires_at) WHERE locked;`,
	},
	{
		Version: 2,
		Name:    "queue_entries",
		SQL: `
CREATE TABLE IF NOT EXISTS queue_entries (
	id                    TEXT PRIMARY KEY,
	queue_number          TEXT NOT NULL,
	patient_ref           TEXT NOT NULL CHECK (length(patient_ref) BETWEEN 1 AND 64),
	date                  TEXT NOT NULL CHECK (date ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$'),
	sequence_number       BIGINT NOT NULL CHECK (sequence_number > 0),
	status                TEXT NOT NULL CHECK (status IN ('waiting', 'called', 'consulting', 'done', 'cancelled')),
	priority              INTEGER NOT NULL DEFAULT 0 CHECK (priority >= 0),
	active                BOOLEAN NOT NULL DEFAULT TRUE,
	status_note           TEXT NOT NULL DEFAULT '',
	registered_by         TEXT NOT NULL DEFAULT '',
	registered_at         TIMESTAMPTZ NOT NULL,
	called_at             TIMESTAMPTZ,
	consulting_started_at TIMESTAMPTZ,
	completed_at          TIMESTAMPTZ,
	status_changed_at     TIMESTAMPTZ NOT NULL,
	status_changed_by     TEXT NOT NULL DEFAULT '',
	CONSTRAINT uniq_date_sequence UNIQUE (date, sequence_number)
);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_patient_date
	ON queue_entries (patient_ref, date) WHERE active;
CREATE INDEX IF NOT EXISTS queue_entries_call_order
	ON queue_entries (date, status, priority DESC, registered_at ASC, sequence_number ASC);`,
	},
	{
		Version: 3,
		Name:    "patients",
		SQL: `
CREATE TABLE IF NOT EXISTS patients (
	ref    TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	gender TEXT NOT NULL DEFAULT '',
	phone  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS patient_activities (
	id          TEXT PRIMARY KEY,
	patient_ref TEXT NOT NULL,
	entry_id    TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	actor_ref   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS patient_activities_by_patient
	ON patient_activities (patient_ref, created_at DESC);`,
	},
}

const createVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunMigration applies every migration newer than the recorded schema version.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	if _, err := pool.Exec(ctx, createVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info("Running PostgreSQL migrations", "current_version", current, "latest_version", len(Migrations))

	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		log.Info("Applied migration", "version", m.Version, "name", m.Name)
	}

	log.Info("All PostgreSQL migrations applied")
	return nil
}
