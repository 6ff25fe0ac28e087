package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs", "flowlyrics.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun() *Run {
	segs := []rhythm.Segment{
		{Start: 0.1, Duration: 0.2, IsStressed: true, PitchContour: rhythm.PitchHigh},
		{Start: 0.4, Duration: 0.5, IsSustained: true, PitchContour: rhythm.PitchMid},
	}
	return &Run{
		Source:         "take1.wav",
		Tempo:          96,
		Duration:       1.2,
		SyllableTarget: 2,
		StressPattern:  "DA-da",
		PitchPattern:   "high-mid",
		Candidates:     []string{"city", "go"},
		Validations: []fit.Result{
			{Text: "city", IsValid: true, GrooveScore: 1, CombinedScore: 1, SyllableCount: 2, Stress: []int{1, 0}, Reason: "ok"},
			{Text: "go", SyllableCount: 1, Stress: []int{1}, Reason: "syllable count mismatch"},
		},
		BestLine:  "city",
		BestScore: 1,
		HasWinner: true,
		Pivot:     rhythm.NewPivot(rhythm.Grid{Segments: segs, Tempo: 96, Duration: 1.2}),
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	s := newSQLite(t)
	ctx := context.Background()

	r := sampleRun()
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if r.ID == "" {
		t.Fatal("SaveRun did not assign an ID")
	}
	if r.CreatedAt.IsZero() {
		t.Fatal("SaveRun did not set CreatedAt")
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Source != r.Source || got.BestLine != "city" || !got.HasWinner || got.SyllableTarget != 2 {
		t.Errorf("GetRun summary = %+v", got)
	}
	if got.StressPattern != "DA-da" || got.PitchPattern != "high-mid" {
		t.Errorf("patterns = %q / %q", got.StressPattern, got.PitchPattern)
	}
	if len(got.Candidates) != 2 || got.Candidates[1] != "go" {
		t.Errorf("Candidates = %q", got.Candidates)
	}
	if len(got.Validations) != 2 || got.Validations[1].Reason != "syllable count mismatch" {
		t.Errorf("Validations = %+v", got.Validations)
	}
	if len(got.Pivot.Blocks) != 1 || got.Pivot.Blocks[0].SyllableTarget != 2 {
		t.Errorf("Pivot = %+v", got.Pivot)
	}
	if !got.Pivot.Blocks[0].Segments[1].IsSustained {
		t.Error("pivot segment 2 lost IsSustained")
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
}

func TestSQLiteStore_SaveReplacesKeepingCreatedAt(t *testing.T) {
	t.Parallel()

	s := newSQLite(t)
	ctx := context.Background()

	r := sampleRun()
	r.ID = "fixed-id"
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	first := r.CreatedAt

	s.now = func() time.Time { return first.Add(time.Hour) }
	r.BestLine = "replaced"
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("SaveRun again: %v", err)
	}
	if !r.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want original %v", r.CreatedAt, first)
	}

	got, err := s.GetRun(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.BestLine != "replaced" {
		t.Errorf("BestLine = %q, want replaced", got.BestLine)
	}
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	t.Parallel()

	s := newSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	s := newSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		r := sampleRun()
		r.ID = id
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		ids := make([]string, len(runs))
		for i, r := range runs {
			ids[i] = r.ID
		}
		t.Fatalf("ListRuns ids = %v, want [c b]", ids)
	}

	all, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListRuns(0) len = %d, want 3", len(all))
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	t.Parallel()

	if err := newSQLite(t).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s, err := Open(ctx, Config{})
	if err != nil || s != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", s, err)
	}

	if _, err := Open(ctx, Config{Driver: "mongo"}); err == nil {
		t.Fatal("Open(mongo) succeeded, want error")
	}

	s, err = Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	_ = s.Close()

	if _, err := OpenSQLite(ctx, ""); err == nil {
		t.Fatal("OpenSQLite(\"\") succeeded, want error")
	}
}

func TestDriver_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    Driver
		want bool
	}{
		{DriverNone, true},
		{DriverPostgres, true},
		{DriverSQLite, true},
		{"mysql", false},
	}
	for _, tt := range tests {
		if got := tt.d.IsValid(); got != tt.want {
			t.Errorf("Driver(%q).IsValid() = %v, want %v", tt.d, got, tt.want)
		}
	}
}
