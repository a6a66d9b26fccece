// Package db provides PostgreSQL storage that mirrors each run's outcome and artifacts.
package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool abstracts pgxpool.Pool so tests can substitute a mock.
type Pool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool Pool
	log  *zap.Logger
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return database, nil
}

// New wraps an existing pool and verifies the connection.
func New(ctx context.Context, pool Pool, logger *zap.Logger) (*DB, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{pool: pool, log: logger.Named("db")}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fee_runs (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	batch_id     UUID NOT NULL,
	run_id       TEXT NOT NULL,
	status       TEXT NOT NULL,
	kind         TEXT,
	stage        TEXT NOT NULL,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	outcome      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (batch_id, run_id)
);
CREATE TABLE IF NOT EXISTS fee_run_artifacts (
	run_pk     UUID NOT NULL REFERENCES fee_runs(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	content    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_pk, name)
);`

// EnsureSchema creates the mirror tables when they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RunRecord is one finished run as mirrored to the database.
type RunRecord struct {
	BatchID     uuid.UUID
	RunID       string
	Status      string
	Kind        string
	Stage       string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	Outcome     []byte
	Artifacts   map[string][]byte
}

const (
	sqlUpsertRun = `
		INSERT INTO fee_runs (batch_id, run_id, status, kind, stage, error, started_at, completed_at, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (batch_id, run_id) DO UPDATE SET
			status = EXCLUDED.status,
			kind = EXCLUDED.kind,
			stage = EXCLUDED.stage,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			outcome = EXCLUDED.outcome
		RETURNING id`

	sqlUpsertArtifact = `
		INSERT INTO fee_run_artifacts (run_pk, name, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_pk, name) DO UPDATE SET content = EXCLUDED.content, created_at = NOW()`
)

// RecordRun writes the run row and all its artifacts in one transaction and returns the row id.
// Artifacts are written in name order.
func (db *DB) RecordRun(ctx context.Context, rec *RunRecord) (uuid.UUID, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			db.log.Error("failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var id uuid.UUID
	err = tx.QueryRow(ctx, sqlUpsertRun,
		rec.BatchID, rec.RunID, rec.Status, nullable(rec.Kind), rec.Stage, nullable(rec.Error),
		rec.StartedAt.UTC(), rec.CompletedAt.UTC(), rec.Outcome,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}

	names := make([]string, 0, len(rec.Artifacts))
	for name := range rec.Artifacts {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if _, err := tx.Exec(ctx, sqlUpsertArtifact, id, name, rec.Artifacts[name]); err != nil {
			return uuid.Nil, fmt.Errorf("failed to save artifact %s: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	db.log.Debug("run mirrored",
		zap.String("run_id", rec.RunID),
		zap.Stringer("row_id", id),
		zap.Int("artifacts", len(names)))
	return id, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
