// Package store persists pipeline runs.
//
// Two backends exist: [PostgresStore] for server deployments and
// [SQLiteStore] for a local file. Both keep the summary of a run in typed
// columns and the nested documents (candidates, validations, pivot) as JSON.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// ErrNotFound is returned by GetRun for an unknown ID.
var ErrNotFound = errors.New("store: run not found")

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Run is one persisted pipeline run.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`

	Tempo          float64 `json:"tempo"`
	Duration       float64 `json:"duration"`
	SyllableTarget int     `json:"syllable_target"`
	StressPattern  string  `json:"stress_pattern"`
	PitchPattern   string  `json:"pitch_pattern"`

	Candidates  []string     `json:"candidates"`
	Validations []fit.Result `json:"validations"`
	BestLine    string       `json:"best_line"`
	BestScore   float64      `json:"best_score"`
	HasWinner   bool         `json:"has_winner"`

	Pivot rhythm.Pivot `json:"pivot"`
}

// Store saves and loads runs. Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun inserts or replaces r. An empty ID is filled with a new UUID.
	// CreatedAt is set from the database on return.
	SaveRun(ctx context.Context, r *Run) error

	// GetRun loads a run by ID. It returns [ErrNotFound] when absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Driver names a storage backend.
type Driver string

const (
	DriverNone     Driver = ""
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// IsValid reports whether d is a known driver.
func (d Driver) IsValid() bool {
	switch d {
	case DriverNone, DriverPostgres, DriverSQLite:
		return true
	}
	return false
}

// Config selects and addresses a backend.
type Config struct {
	Driver Driver `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Open connects to the configured backend and applies its schema. It returns
// (nil, nil) when the driver is empty, which disables persistence.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverNone:
		return nil, nil
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func prepare(r *Run) error {
	if r == nil {
		return errors.New("store: nil run")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// documents holds the JSON-encoded nested fields of a run.
type documents struct {
	candidates  []byte
	validations []byte
	pivot       []byte
}

func encodeDocuments(r *Run) (documents, error) {
	var (
		d   documents
		err error
	)
	if d.candidates, err = json.Marshal(emptySlice(r.Candidates)); err != nil {
		return d, fmt.Errorf("store: marshal candidates: %w", err)
	}
	validations := r.Validations
	if validations == nil {
		validations = []fit.Result{}
	}
	if d.validations, err = json.Marshal(validations); err != nil {
		return d, fmt.Errorf("store: marshal validations: %w", err)
	}
	if d.pivot, err = json.Marshal(r.Pivot); err != nil {
		return d, fmt.Errorf("store: marshal pivot: %w", err)
	}
	return d, nil
}

func (d documents) decodeInto(r *Run) error {
	if err := json.Unmarshal(d.candidates, &r.Candidates); err != nil {
		return fmt.Errorf("store: unmarshal candidates: %w", err)
	}
	if err := json.Unmarshal(d.validations, &r.Validations); err != nil {
		return fmt.Errorf("store: unmarshal validations: %w", err)
	}
	if err := json.Unmarshal(d.pivot, &r.Pivot); err != nil {
		return fmt.Errorf("store: unmarshal pivot: %w", err)
	}
	return nil
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice so JSON
// encodes "[]" instead of "null".
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
