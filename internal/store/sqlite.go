package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// sqliteTime is fixed width so created_at sorts correctly as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		source          TEXT NOT NULL DEFAULT '',
		tempo           REAL NOT NULL DEFAULT 0,
		duration        REAL NOT NULL DEFAULT 0,
		syllable_target INTEGER NOT NULL DEFAULT 0,
		stress_pattern  TEXT NOT NULL DEFAULT '',
		pitch_pattern   TEXT NOT NULL DEFAULT '',
		best_line       TEXT NOT NULL DEFAULT '',
		best_score      REAL NOT NULL DEFAULT 0,
		has_winner      INTEGER NOT NULL DEFAULT 0,
		candidates      TEXT NOT NULL DEFAULT '[]',
		validations     TEXT NOT NULL DEFAULT '[]',
		pivot           TEXT NOT NULL DEFAULT '{}',
		created_at      TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
}

// SQLiteStore is a [Store] backed by a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: migrate sqlite: %w", err)
		}
	}
	return s, nil
}

const sqliteColumns = `id, source, tempo, duration, syllable_target, stress_pattern, pitch_pattern,
	best_line, best_score, has_winner, candidates, validations, pivot, created_at`

// SaveRun implements [Store]. Replacing a run keeps its original CreatedAt.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *Run) error {
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
			best_line, best_score, has_winner, candidates, validations, pivot, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source = excluded.source,
			tempo = excluded.tempo,
			duration = excluded.duration,
			syllable_target = excluded.syllable_target,
			stress_pattern = excluded.stress_pattern,
			pitch_pattern = excluded.pitch_pattern,
			best_line = excluded.best_line,
			best_score = excluded.best_score,
			has_winner = excluded.has_winner,
			candidates = excluded.candidates,
			validations = excluded.validations,
			pivot = excluded.pivot
		RETURNING created_at`

	var created string
	err = s.db.QueryRowContext(ctx, query,
		r.ID, r.Source, r.Tempo, r.Duration, r.SyllableTarget, r.StressPattern, r.PitchPattern,
		r.BestLine, r.BestScore, r.HasWinner,
		string(docs.candidates), string(docs.validations), string(docs.pivot),
		s.now().UTC().Format(sqliteTime),
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}
	if r.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
		return fmt.Errorf("store: parse created_at: %w", err)
	}
	return nil
}

// GetRun implements [Store].
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + sqliteColumns + ` FROM runs WHERE id = ?`
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get run %q: %w", id, err)
	}
	return r, nil
}

// ListRuns implements [Store].
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + sqliteColumns + ` FROM runs ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [Store].
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scanner) (*Run, error) {
	var (
		r                        Run
		cand, valid, pv, created string
	)
	if err := row.Scan(
		&r.ID, &r.Source, &r.Tempo, &r.Duration, &r.SyllableTarget, &r.StressPattern, &r.PitchPattern,
		&r.BestLine, &r.BestScore, &r.HasWinner, &cand, &valid, &pv, &created,
	); err != nil {
		return nil, err
	}
	t, err := time.Parse(sqliteTime, created)
	if err != nil {
		return nil, fmt.Errorf("store: parse created_at: %w", err)
	}
	r.CreatedAt = t
	docs := documents{candidates: []byte(cand), validations: []byte(valid), pivot: []byte(pv)}
	if err := docs.decodeInto(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
