// Package heuristic implements a phonetic.WindowRecognizer that needs no
// model at all. It tells vowels from consonants by zero-crossing rate and
// spectral centroid and answers with coarse class tags.
package heuristic

import (
	"context"

	"github.com/MrWong99/flowlyrics/internal/dsp"
	"github.com/MrWong99/flowlyrics/pkg/phoneme"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
)

// Thresholds holds the decision boundaries of the classifier.
type Thresholds struct {
	// Silence is the RMS below which a window is considered empty.
	Silence float64

	// ConsonantZCR and ConsonantCentroid: exceeding either marks a
	// consonant.
	ConsonantZCR      float64
	ConsonantCentroid float64

	// VowelZCR and VowelCentroid: staying below both marks a vowel.
	VowelZCR      float64
	VowelCentroid float64
}

// DefaultThresholds returns the standard boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Silence:           1e-3,
		ConsonantZCR:      0.1,
		ConsonantCentroid: 3000,
		VowelZCR:          0.05,
		VowelCentroid:     1500,
	}
}

// Recognizer is a stateless phonetic.WindowRecognizer.
type Recognizer struct {
	th Thresholds
}

// Compile-time assertion that Recognizer satisfies phonetic.WindowRecognizer.
var _ phonetic.WindowRecognizer = (*Recognizer)(nil)

// New returns a Recognizer using th.
func New(th Thresholds) *Recognizer {
	return &Recognizer{th: th}
}

// RecognizeWindow returns one of the phoneme class tags, or "" for silence.
func (r *Recognizer) RecognizeWindow(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Classify(samples, sampleRate), nil
}

// Classify labels one window.
func (r *Recognizer) Classify(samples []float32, sampleRate int) string {
	if len(samples) == 0 || sampleRate <= 0 || dsp.RMS(samples) < r.th.Silence {
		return ""
	}
	zcr := dsp.ZeroCrossingRate(samples)
	centroid := dsp.SpectralCentroid(samples, sampleRate)
	switch {
	case zcr > r.th.ConsonantZCR || centroid > r.th.ConsonantCentroid:
		return phoneme.TagConsonant
	case zcr < r.th.VowelZCR && centroid < r.th.VowelCentroid:
		return phoneme.TagVowel
	default:
		return phoneme.TagMid
	}
}
