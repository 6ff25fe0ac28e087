// Package analysis turns a vocal buffer into a rhythm grid.
//
// An [Analyzer] runs onset detection, segment refinement and prosody
// classification, estimates the track tempo from the onset-strength curve,
// and optionally asks a phonetic annotator to fill in observed phonemes.
// Each stage is a pure function of the buffer and the current
// [rhythm.AnalysisConfig]; the analyzer adds timing, tracing and the
// ability to swap configuration while running.
package analysis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/flowlyrics/internal/analysis/onset"
	"github.com/MrWong99/flowlyrics/internal/analysis/prosody"
	"github.com/MrWong99/flowlyrics/internal/analysis/segment"
	"github.com/MrWong99/flowlyrics/internal/dsp"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// Tempo search range and the value reported when no periodicity is found.
const (
	MinTempo     = 60.0
	MaxTempo     = 200.0
	DefaultTempo = 120.0
)

// Annotator fills in ObservedPhonemes for analysed segments. It must return
// a slice of the same length as segs. Implementations degrade to empty
// strings rather than failing whenever they can.
type Annotator interface {
	Annotate(ctx context.Context, buf audio.Buffer, segs []rhythm.Segment) ([]rhythm.Segment, error)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithAnnotator enables phonetic annotation.
func WithAnnotator(a Annotator) Option {
	return func(an *Analyzer) { an.annotator = a }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(an *Analyzer) { an.metrics = m }
}

// Analyzer produces rhythm grids. It is safe for concurrent use; SetConfig
// affects analyses started afterwards.
type Analyzer struct {
	cfg       atomic.Pointer[rhythm.AnalysisConfig]
	annotator Annotator
	metrics   *observe.Metrics
}

// New returns an Analyzer. Zero fields in cfg take their defaults.
func New(cfg rhythm.AnalysisConfig, opts ...Option) *Analyzer {
	a := &Analyzer{}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.SetConfig(cfg)
	return a
}

// Config returns the configuration in effect.
func (a *Analyzer) Config() rhythm.AnalysisConfig {
	return *a.cfg.Load()
}

// SetConfig replaces the configuration for future analyses.
func (a *Analyzer) SetConfig(cfg rhythm.AnalysisConfig) {
	c := cfg.WithDefaults()
	a.cfg.Store(&c)
}

// Analyze builds the rhythm grid of buf. The buffer should already be at the
// configured sample rate. A buffer shorter than one analysis frame yields an
// empty grid. Only context cancellation and annotator failures that could
// not be degraded are returned as errors.
func (a *Analyzer) Analyze(ctx context.Context, buf audio.Buffer) (rhythm.Grid, error) {
	cfg := a.Config()
	ctx, span := observe.StartStage(ctx, "analyze")
	defer span.End()
	begin := time.Now()

	grid := rhythm.Grid{Tempo: DefaultTempo, Duration: buf.Duration()}
	if buf.SampleRate <= 0 || len(buf.Samples) < cfg.Onset.FrameSize {
		span.SetAttributes(attribute.Bool("analysis.too_short", true))
		return grid, nil
	}
	if buf.SampleRate != cfg.SampleRate {
		observe.Logger(ctx).Debug("analysis: buffer rate differs from configured rate",
			"buffer_rate", buf.SampleRate, "config_rate", cfg.SampleRate)
	}

	t := time.Now()
	on := onset.Detect(buf.Samples, buf.SampleRate, cfg.Onset)
	a.metrics.RecordStage(ctx, "onset", time.Since(t).Seconds())
	if on.FallbackUsed {
		a.metrics.OnsetFallbacks.Add(ctx, 1)
	}
	if err := ctx.Err(); err != nil {
		return rhythm.Grid{}, err
	}

	if bpm := dsp.EstimateTempo(on.Strength, cfg.Onset.HopLength, buf.SampleRate, MinTempo, MaxTempo); bpm > 0 {
		grid.Tempo = bpm
	}

	t = time.Now()
	segs := segment.Refine(on.Times, buf.Samples, buf.SampleRate, cfg.Segment)
	a.metrics.RecordStage(ctx, "segment", time.Since(t).Seconds())
	if err := ctx.Err(); err != nil {
		return rhythm.Grid{}, err
	}

	t = time.Now()
	segs = prosody.Classify(segs, buf.Samples, buf.SampleRate, cfg.Prosody)
	a.metrics.RecordStage(ctx, "prosody", time.Since(t).Seconds())
	if err := ctx.Err(); err != nil {
		return rhythm.Grid{}, err
	}

	if a.annotator != nil && len(segs) > 0 {
		t = time.Now()
		annotated, err := a.annotator.Annotate(ctx, buf, segs)
		a.metrics.RecordStage(ctx, "phonetic", time.Since(t).Seconds())
		if err != nil {
			err = fmt.Errorf("analysis: phonetic annotation: %w", err)
			observe.Fail(span, err)
			return rhythm.Grid{}, err
		}
		if len(annotated) != len(segs) {
			return rhythm.Grid{}, fmt.Errorf("analysis: annotator returned %d segments for %d", len(annotated), len(segs))
		}
		segs = annotated
	}

	grid.Segments = segs
	a.metrics.GridSegments.Record(ctx, int64(len(segs)))
	a.metrics.RecordStage(ctx, "total", time.Since(begin).Seconds())
	span.SetAttributes(
		attribute.Int("analysis.onsets", len(on.Times)),
		observe.AttrSyllables.Int(len(segs)),
		attribute.Bool("analysis.fallback", on.FallbackUsed),
		observe.AttrTempo.Float64(grid.Tempo),
	)
	observe.Logger(ctx).Debug("analysis complete",
		"onsets", len(on.Times),
		"segments", len(segs),
		"tempo", grid.Tempo,
		"fallback", on.FallbackUsed,
	)
	return grid, nil
}
