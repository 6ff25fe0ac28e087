// Package pipeline wires audio loading, rhythm analysis, lyric generation,
// validation and persistence into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/flowlyrics/internal/analysis"
	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/internal/lyric/selector"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/internal/store"
	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// ErrAudioNotFound is returned by Run when the input file does not exist.
var ErrAudioNotFound = errors.New("pipeline: audio file not found")

// Generator writes candidate lines for a grid. *generate.Generator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, grid rhythm.Grid) ([]string, error)
}

// Metadata summarises the analysed track.
type Metadata struct {
	Tempo          float64 `json:"tempo"`
	Duration       float64 `json:"duration"`
	SyllableTarget int     `json:"syllable_target"`
	StressPattern  string  `json:"stress_pattern"`
	PitchPattern   string  `json:"pitch_pattern"`
}

// Result is the outcome of one run.
type Result struct {
	ID          string       `json:"id"`
	Source      string       `json:"source,omitempty"`
	Candidates  []string     `json:"candidates"`
	Validations []fit.Result `json:"validations"`
	BestLine    string       `json:"best_line"`
	BestScore   float64      `json:"best_score"`
	HasWinner   bool         `json:"has_winner"`
	Metadata    Metadata     `json:"metadata"`
	Pivot       rhythm.Pivot `json:"pivot"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists every completed run.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline runs the full audio-to-lyrics flow. It is safe for concurrent use
// when its collaborators are.
type Pipeline struct {
	analyzer *analysis.Analyzer
	store    store.Store
	metrics  *observe.Metrics

	mu        sync.RWMutex
	generator Generator
	selector  *selector.Selector
}

// New returns a Pipeline.
func New(a *analysis.Analyzer, g Generator, sel *selector.Selector, opts ...Option) *Pipeline {
	p := &Pipeline{analyzer: a, generator: g, selector: sel}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Analyzer returns the pipeline's analyzer.
func (p *Pipeline) Analyzer() *analysis.Analyzer { return p.analyzer }

// SetGenerator replaces the generator for runs started afterwards.
func (p *Pipeline) SetGenerator(g Generator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generator = g
}

// SetSelector replaces the selector for runs started afterwards.
func (p *Pipeline) SetSelector(sel *selector.Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selector = sel
}

func (p *Pipeline) collaborators() (Generator, *selector.Selector) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generator, p.selector
}

// Store returns the configured store, or nil.
func (p *Pipeline) Store() store.Store { return p.store }

// Load decodes the WAV file at path at the analyzer's sample rate.
func (p *Pipeline) Load(path string) (audio.Buffer, error) {
	buf, err := audio.Load(path, audio.WithSampleRate(p.analyzer.Config().SampleRate))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return audio.Buffer{}, fmt.Errorf("%w: %s", ErrAudioNotFound, path)
		}
		return audio.Buffer{}, err
	}
	return buf, nil
}

// Run loads the WAV file at path and runs the full flow on it.
func (p *Pipeline) Run(ctx context.Context, path string) (Result, error) {
	buf, err := p.Load(path)
	if err != nil {
		return Result{}, err
	}
	return p.RunBuffer(ctx, path, buf)
}

// RunBuffer analyses buf, generates candidates, validates them, picks a
// winner and saves the run. source labels the run in storage. A track with
// no detectable syllables yields a result without candidates.
func (p *Pipeline) RunBuffer(ctx context.Context, source string, buf audio.Buffer) (Result, error) {
	ctx, span := observe.StartStage(ctx, "run", observe.AttrSource.String(source))
	defer span.End()
	p.metrics.ActiveRuns.Add(ctx, 1)
	defer p.metrics.ActiveRuns.Add(ctx, -1)
	start := time.Now()

	res, err := p.run(ctx, source, buf)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observe.Fail(span, err)
	p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
	return res, err
}

func (p *Pipeline) run(ctx context.Context, source string, buf audio.Buffer) (Result, error) {
	log := observe.Logger(ctx)
	res := Result{ID: uuid.NewString(), Source: source}

	grid, err := p.Analyze(ctx, buf)
	if err != nil {
		return Result{}, err
	}
	res.Pivot = rhythm.NewPivot(grid)
	res.Metadata = Metadata{
		Tempo:          res.Pivot.Meta.Tempo,
		Duration:       res.Pivot.Meta.Duration,
		SyllableTarget: grid.Len(),
		StressPattern:  grid.StressPattern(),
		PitchPattern:   grid.PitchPattern(),
	}

	if grid.IsEmpty() {
		log.Warn("pipeline: no syllables detected, skipping generation", "source", source)
	} else {
		gen, _ := p.collaborators()
		gctx, gspan := observe.StartStage(ctx, "generate", observe.AttrSyllables.Int(grid.Len()))
		res.Candidates, err = gen.Generate(gctx, grid)
		observe.Fail(gspan, err)
		gspan.End()
		if err != nil {
			return Result{}, fmt.Errorf("pipeline: generate: %w", err)
		}

		sel, err := p.Validate(ctx, grid, res.Candidates)
		if err != nil {
			return Result{}, err
		}
		res.Validations = sel.Results
		if sel.HasWinner {
			res.BestLine = sel.Winner.Text
			res.BestScore = sel.Winner.CombinedScore
			res.HasWinner = true
		}
	}
	if res.Candidates == nil {
		res.Candidates = []string{}
	}
	if res.Validations == nil {
		res.Validations = []fit.Result{}
	}

	if p.store != nil {
		if err := p.store.SaveRun(ctx, res.Run()); err != nil {
			log.Warn("pipeline: failed to save run", "id", res.ID, "err", err)
		}
	}
	log.Info("pipeline: run complete",
		"id", res.ID,
		"syllables", res.Metadata.SyllableTarget,
		"candidates", len(res.Candidates),
		"winner", res.BestLine,
		"score", res.BestScore,
	)
	return res, nil
}

// Analyze builds the rhythm grid of buf.
func (p *Pipeline) Analyze(ctx context.Context, buf audio.Buffer) (rhythm.Grid, error) {
	grid, err := p.analyzer.Analyze(ctx, buf)
	if err != nil {
		return rhythm.Grid{}, fmt.Errorf("pipeline: analyze: %w", err)
	}
	return grid, nil
}

// Validate scores candidates against grid and picks the winner.
func (p *Pipeline) Validate(ctx context.Context, grid rhythm.Grid, candidates []string) (selector.Selection, error) {
	ctx, span := observe.StartStage(ctx, "validate", observe.AttrCandidate.Int(len(candidates)))
	defer span.End()

	_, s := p.collaborators()
	sel, err := s.Select(ctx, candidates, grid.Segments)
	if err != nil {
		err = fmt.Errorf("pipeline: validate: %w", err)
		observe.Fail(span, err)
		return selector.Selection{WinnerIndex: -1}, err
	}
	for _, r := range sel.Results {
		p.metrics.RecordValidation(ctx, r.IsValid)
	}
	span.SetAttributes(attribute.Bool("has_winner", sel.HasWinner))
	return sel, nil
}

// Run converts r to its storage record.
func (r Result) Run() *store.Run {
	return &store.Run{
		ID:             r.ID,
		Source:         r.Source,
		Tempo:          r.Metadata.Tempo,
		Duration:       r.Metadata.Duration,
		SyllableTarget: r.Metadata.SyllableTarget,
		StressPattern:  r.Metadata.StressPattern,
		PitchPattern:   r.Metadata.PitchPattern,
		Candidates:     r.Candidates,
		Validations:    r.Validations,
		BestLine:       r.BestLine,
		BestScore:      r.BestScore,
		HasWinner:      r.HasWinner,
		Pivot:          r.Pivot,
	}
}

// FromRun rebuilds a result from its storage record.
func FromRun(r *store.Run) Result {
	return Result{
		ID:          r.ID,
		Source:      r.Source,
		Candidates:  r.Candidates,
		Validations: r.Validations,
		BestLine:    r.BestLine,
		BestScore:   r.BestScore,
		HasWinner:   r.HasWinner,
		Metadata: Metadata{
			Tempo:          r.Tempo,
			Duration:       r.Duration,
			SyllableTarget: r.SyllableTarget,
			StressPattern:  r.StressPattern,
			PitchPattern:   r.PitchPattern,
		},
		Pivot: r.Pivot,
	}
}
