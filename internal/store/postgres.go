package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the PostgreSQL DDL for the runs table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    source          TEXT NOT NULL DEFAULT '',
    tempo           DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration        DOUBLE PRECISION NOT NULL DEFAULT 0,
    syllable_target INTEGER NOT NULL DEFAULT 0,
    stress_pattern  TEXT NOT NULL DEFAULT '',
    pitch_pattern   TEXT NOT NULL DEFAULT '',
    best_line       TEXT NOT NULL DEFAULT '',
    best_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    has_winner      BOOLEAN NOT NULL DEFAULT false,
    candidates      JSONB NOT NULL DEFAULT '[]',
    validations     JSONB NOT NULL DEFAULT '[]',
    pivot           JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection or pool. The caller owns db
// and is responsible for calling [PostgresStore.Migrate].
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres creates a connection pool for dsn, pings it and applies
// [Schema]. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const pgColumns = `id, source, tempo, duration, syllable_target, stress_pattern, pitch_pattern,
	best_line, best_score, has_winner, candidates, validations, pivot, created_at`

// SaveRun implements [Store].
func (s *PostgresStore) SaveRun(ctx context.Context, r *Run) error {
	if err := prepare(r); err != nil {
		return err
	}
	docs, err := encodeDocuments(r)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO runs (
			id, source, tempo, duration, syllable_target, stress_pattern, pitch_pattern,
			best_line, best_score, has_winner, candidates, validations, pivot
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			tempo = EXCLUDED.tempo,
			duration = EXCLUDED.duration,
			syllable_target = EXCLUDED.syllable_target,
			stress_pattern = EXCLUDED.stress_pattern,
			pitch_pattern = EXCLUDED.pitch_pattern,
			best_line = EXCLUDED.best_line,
			best_score = EXCLUDED.best_score,
			has_winner = EXCLUDED.has_winner,
			candidates = EXCLUDED.candidates,
			validations = EXCLUDED.validations,
			pivot = EXCLUDED.pivot
		RETURNING created_at`

	err = s.db.QueryRow(ctx, query,
		r.ID, r.Source, r.Tempo, r.Duration, r.SyllableTarget, r.StressPattern, r.PitchPattern,
		r.BestLine, r.BestScore, r.HasWinner, docs.candidates, docs.validations, docs.pivot,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}
	return nil
}

// GetRun implements [Store].
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + pgColumns + ` FROM runs WHERE id = $1`
	r, err := scanPGRun(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get run %q: %w", id, err)
	}
	return r, nil
}

// ListRuns implements [Store].
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + pgColumns + ` FROM runs ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.Query(ctx, query, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list runs scan: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool when the store opened it. A store built with
// [NewPostgresStore] leaves db to its owner.
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func scanPGRun(row pgx.Row) (*Run, error) {
	var (
		r    Run
		docs documents
	)
	if err := row.Scan(
		&r.ID, &r.Source, &r.Tempo, &r.Duration, &r.SyllableTarget, &r.StressPattern, &r.PitchPattern,
		&r.BestLine, &r.BestScore, &r.HasWinner, &docs.candidates, &docs.validations, &docs.pivot, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := docs.decodeInto(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
