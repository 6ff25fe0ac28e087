package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *mockRows) Close()                                       {}
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return assign(r.data[r.idx-1], dest) }

func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *float64:
			*d = v.(float64)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	pingErr      error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockDB) Ping(context.Context) error { return m.pingErr }

func pgRow(t *testing.T, r *Run) []any {
	t.Helper()
	docs, err := encodeDocuments(r)
	if err != nil {
		t.Fatalf("encodeDocuments: %v", err)
	}
	return []any{
		r.ID, r.Source, r.Tempo, r.Duration, r.SyllableTarget, r.StressPattern, r.PitchPattern,
		r.BestLine, r.BestScore, r.HasWinner, docs.candidates, docs.validations, docs.pivot, r.CreatedAt,
	}
}

func TestPostgresStore_SaveRun(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	var gotArgs []any
	db := &mockDB{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			if !strings.Contains(sql, "ON CONFLICT (id) DO UPDATE") {
				t.Errorf("SaveRun query is not an upsert:\n%s", sql)
			}
			gotArgs = args
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*time.Time) = created
				return nil
			}}
		},
	}

	r := sampleRun()
	if err := NewPostgresStore(db).SaveRun(context.Background(), r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if r.ID == "" {
		t.Fatal("SaveRun did not assign an ID")
	}
	if !r.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, created)
	}
	if len(gotArgs) != 13 {
		t.Fatalf("args = %d, want 13", len(gotArgs))
	}
	var cands []string
	if err := json.Unmarshal(gotArgs[10].([]byte), &cands); err != nil || len(cands) != 2 {
		t.Errorf("candidates arg = %s (%v)", gotArgs[10], err)
	}
}

func TestPostgresStore_SaveRunNilCandidatesEncodeEmptyArray(t *testing.T) {
	t.Parallel()

	var cands []byte
	db := &mockDB{
		queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
			cands = args[10].([]byte)
			return &mockRow{scanFunc: func(dest ...any) error { return nil }}
		},
	}
	if err := NewPostgresStore(db).SaveRun(context.Background(), &Run{ID: "x"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if string(cands) != "[]" {
		t.Errorf("candidates = %s, want []", cands)
	}
}

func TestPostgresStore_GetRun(t *testing.T) {
	t.Parallel()

	want := sampleRun()
	want.ID = "run-1"
	want.CreatedAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	row := pgRow(t, want)

	db := &mockDB{
		queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
			if args[0] != "run-1" {
				return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
			}
			return &mockRow{scanFunc: func(dest ...any) error { return assign(row, dest) }}
		},
	}
	s := NewPostgresStore(db)

	got, err := s.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.BestLine != want.BestLine || len(got.Validations) != 2 || got.Pivot.Meta.Tempo != 96 {
		t.Errorf("GetRun = %+v", got)
	}

	if _, err := s.GetRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(nope) err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_ListRuns(t *testing.T) {
	t.Parallel()

	a, b := sampleRun(), sampleRun()
	a.ID, b.ID = "a", "b"
	var gotLimit any
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotLimit = args[0]
			return &mockRows{data: [][]any{pgRow(t, b), pgRow(t, a)}}, nil
		},
	}

	runs, err := NewPostgresStore(db).ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "a" {
		t.Errorf("ListRuns = %+v", runs)
	}
	if gotLimit != DefaultListLimit {
		t.Errorf("limit = %v, want %d", gotLimit, DefaultListLimit)
	}
}

func TestPostgresStore_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	db := &mockDB{
		execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, boom
		},
		queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
			return nil, boom
		},
		pingErr: boom,
	}
	s := NewPostgresStore(db)
	ctx := context.Background()

	if err := s.Migrate(ctx); !errors.Is(err, boom) {
		t.Errorf("Migrate err = %v", err)
	}
	if _, err := s.ListRuns(ctx, 5); !errors.Is(err, boom) {
		t.Errorf("ListRuns err = %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close err = %v", err)
	}
}

// TestPostgresStore_Integration runs against a live database when
// FLOWLYRICS_TEST_POSTGRES_DSN is set.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("FLOWLYRICS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLOWLYRICS_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	r := sampleRun()
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.BestLine != r.BestLine {
		t.Errorf("BestLine = %q, want %q", got.BestLine, r.BestLine)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM runs WHERE id = $1`, r.ID); err != nil {
		t.Errorf("cleanup: %v", err)
	}
}
