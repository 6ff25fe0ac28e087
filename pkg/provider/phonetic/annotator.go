package phonetic

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/phoneme"
	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

const (
	defaultPadding      = 0.05
	defaultMinDuration  = 0.03
	defaultRetryPadding = 0.1
)

// Option configures an Annotator.
type Option func(*Annotator)

// WithPadding widens every window by d seconds on each side, clamped to the
// buffer. Default 50 ms.
func WithPadding(d float64) Option {
	return func(a *Annotator) { a.padding = d }
}

// WithMinDuration skips segments shorter than d seconds. Default 30 ms.
func WithMinDuration(d float64) Option {
	return func(a *Annotator) { a.minDuration = d }
}

// WithRetry makes a window that produced nothing get one more attempt with
// the wider padding d. Retry is off by default; d <= 0 uses 100 ms.
func WithRetry(d float64) Option {
	return func(a *Annotator) {
		a.retry = true
		if d > 0 {
			a.retryPadding = d
		}
	}
}

// WithName sets the provider label used in metrics and logs.
func WithName(name string) Option {
	return func(a *Annotator) { a.name = name }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Annotator) { a.metrics = m }
}

// Annotator fills rhythm segments with observed phonemes. Recognizer
// failures never fail the annotation: affected segments keep an empty
// string. Only context cancellation is returned as an error.
type Annotator struct {
	window WindowRecognizer
	words  WordRecognizer
	conv   g2p.Converter

	padding      float64
	minDuration  float64
	retry        bool
	retryPadding float64

	name    string
	metrics *observe.Metrics
}

func newAnnotator(opts []Option) *Annotator {
	a := &Annotator{
		padding:      defaultPadding,
		minDuration:  defaultMinDuration,
		retryPadding: defaultRetryPadding,
		name:         "phonetic",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// NewWindowAnnotator returns an Annotator that queries r once per segment.
func NewWindowAnnotator(r WindowRecognizer, opts ...Option) *Annotator {
	a := newAnnotator(opts)
	a.window = r
	return a
}

// NewWordAnnotator returns an Annotator that transcribes the whole track
// with r and splits the words into syllables with conv.
func NewWordAnnotator(r WordRecognizer, conv g2p.Converter, opts ...Option) *Annotator {
	a := newAnnotator(opts)
	a.words = r
	a.conv = conv
	return a
}

// Annotate returns a copy of segs with ObservedPhonemes set.
func (a *Annotator) Annotate(ctx context.Context, buf audio.Buffer, segs []rhythm.Segment) ([]rhythm.Segment, error) {
	out := append([]rhythm.Segment(nil), segs...)
	if len(out) == 0 || buf.IsEmpty() {
		return out, nil
	}
	ctx, span := observe.StartStage(ctx, "annotate", observe.AttrBackend.String(a.name))
	defer span.End()

	if a.words != nil {
		return a.annotateWords(ctx, buf, out)
	}
	return a.annotateWindows(ctx, buf, out)
}

func (a *Annotator) annotateWindows(ctx context.Context, buf audio.Buffer, segs []rhythm.Segment) ([]rhythm.Segment, error) {
	log := observe.Logger(ctx)
	for i := range segs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := segs[i]
		if s.Duration < a.minDuration {
			continue
		}
		tokens, err := a.recognize(ctx, buf, s, a.padding)
		if err == nil && tokens == "" && a.retry {
			tokens, err = a.recognize(ctx, buf, s, a.retryPadding)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Warn("phonetic: window recognition failed", "provider", a.name, "segment", i, "err", err)
			continue
		}
		segs[i].ObservedPhonemes = tokens
	}
	return segs, nil
}

func (a *Annotator) recognize(ctx context.Context, buf audio.Buffer, s rhythm.Segment, pad float64) (string, error) {
	win := buf.Slice(s.Start-pad, s.End()+pad)
	if win.IsEmpty() {
		return "", nil
	}
	start := time.Now()
	tokens, err := a.window.RecognizeWindow(ctx, win.Samples, win.SampleRate)
	a.metrics.RecognizerDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.name, "recognizer")
		a.metrics.RecordProviderRequest(ctx, a.name, "recognizer", "error")
		return "", err
	}
	a.metrics.RecordProviderRequest(ctx, a.name, "recognizer", "ok")
	return tokens, nil
}

func (a *Annotator) annotateWords(ctx context.Context, buf audio.Buffer, segs []rhythm.Segment) ([]rhythm.Segment, error) {
	log := observe.Logger(ctx)
	start := time.Now()
	words, err := a.words.RecognizeWords(ctx, buf.Samples, buf.SampleRate)
	a.metrics.RecognizerDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		a.metrics.RecordProviderError(ctx, a.name, "recognizer")
		a.metrics.RecordProviderRequest(ctx, a.name, "recognizer", "error")
		log.Warn("phonetic: word recognition failed", "provider", a.name, "err", err)
		return segs, nil
	}
	a.metrics.RecordProviderRequest(ctx, a.name, "recognizer", "ok")

	syllables, err := a.syllables(ctx, words)
	if err != nil {
		return nil, err
	}
	if len(syllables) != len(segs) {
		log.Debug("phonetic: syllable count differs from segment count",
			"syllables", len(syllables), "segments", len(segs))
	}
	for i := range segs {
		if i < len(syllables) {
			segs[i].ObservedPhonemes = syllables[i]
		}
	}
	return segs, nil
}

// syllables converts words, in time order, to one IPA string per syllable.
func (a *Annotator) syllables(ctx context.Context, words []Word) ([]string, error) {
	sorted := append([]Word(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []string
	for _, w := range sorted {
		phones, err := a.conv.Phonemes(ctx, w.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			observe.Logger(ctx).Warn("phonetic: g2p failed for recognized word", "word", w.Text, "err", err)
			continue
		}
		out = append(out, phoneme.Syllables(phones)...)
	}
	return out, nil
}
