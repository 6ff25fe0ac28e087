// Package fit scores how well a lyric line fits a rhythm grid.
//
// Scoring has three parts. A hard gate requires the syllable count to equal
// the segment count exactly. The groove score rewards stressed syllables that
// land on stressed segments. The phonetic score, computed only when the grid
// carries recognizer output, compares the line's sounds with what was heard.
package fit

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/flowlyrics/internal/lyric/syllable"
	"github.com/MrWong99/flowlyrics/pkg/phoneme"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// Weights controls how groove and phonetic scores combine when phonetic
// evidence exists.
type Weights struct {
	Rhythm   float64 `yaml:"rhythm" json:"rhythm"`
	Phonetic float64 `yaml:"phonetic" json:"phonetic"`
}

// DefaultWeights returns the 0.6/0.4 rhythm/phonetic split.
func DefaultWeights() Weights {
	return Weights{Rhythm: 0.6, Phonetic: 0.4}
}

// Result is the outcome of validating one line against one grid.
type Result struct {
	Text          string   `json:"text"`
	IsValid       bool     `json:"is_valid"`
	GrooveScore   float64  `json:"groove_score"`
	PhoneticScore float64  `json:"phonetic_score"`
	CombinedScore float64  `json:"combined_score"`
	SyllableCount int      `json:"syllable_count"`
	Stress        []int    `json:"stress_profile"`
	Phonemes      []string `json:"phonemes,omitempty"`
	Reason        string   `json:"reason"`
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights overrides the default score weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// Scorer validates lines through a syllable.Analyzer. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	syllables *syllable.Analyzer
	weights   Weights
}

// NewScorer returns a Scorer using a for syllable analysis.
func NewScorer(a *syllable.Analyzer, opts ...Option) *Scorer {
	s := &Scorer{syllables: a, weights: DefaultWeights()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Weights returns the weights in effect.
func (s *Scorer) Weights() Weights { return s.weights }

// Validate analyses text and scores it against segs.
func (s *Scorer) Validate(ctx context.Context, text string, segs []rhythm.Segment) Result {
	r := Score(s.syllables.Analyze(ctx, text), segs, s.weights)
	r.Text = text
	return r
}

// Score evaluates a profile against segs. It never fails: an empty profile
// against an empty segment list is valid with score 0.
func Score(p syllable.Profile, segs []rhythm.Segment, w Weights) Result {
	r := Result{
		SyllableCount: p.Count(),
		Stress:        p.Stress,
		Phonemes:      p.Phonemes,
	}
	if p.Count() != len(segs) {
		r.Reason = fmt.Sprintf("Syllable mismatch: got %d, expected %d", p.Count(), len(segs))
		return r
	}
	r.IsValid = true

	audio := make([]bool, len(segs))
	for i, s := range segs {
		audio[i] = s.IsStressed
	}
	r.GrooveScore = Groove(p.Stress, audio)

	if ps, ok := Phonetic(p.Phonemes, segs); ok {
		r.PhoneticScore = ps
		r.CombinedScore = w.Rhythm*r.GrooveScore + w.Phonetic*ps
		r.Reason = fmt.Sprintf("Valid! Groove score: %.2f, phonetic score: %.2f", r.GrooveScore, ps)
	} else {
		r.CombinedScore = r.GrooveScore
		r.Reason = fmt.Sprintf("Valid! Groove score: %.2f", r.GrooveScore)
	}
	return r
}

// Groove scores a text stress profile against per-segment audio stress.
// Primary stress on a stressed beat earns 2 points, secondary stress on a
// stressed beat 0.5, and an unstressed syllable on an unstressed beat 1.
// The sum is normalised by 2 per stressed beat plus 1 per unstressed beat.
// Mismatched lengths score 0.
func Groove(text []int, audio []bool) float64 {
	if len(text) != len(audio) || len(audio) == 0 {
		return 0
	}
	var pts, maxPts float64
	for i, stressed := range audio {
		if stressed {
			maxPts += 2
			switch text[i] {
			case 1:
				pts += 2
			case 2:
				pts += 0.5
			}
			continue
		}
		maxPts++
		if text[i] == 0 {
			pts++
		}
	}
	return pts / maxPts
}

// Phonetic compares the IPA rendering of phones with the observed phonemes
// of segs. The boolean is false when no segment carries observed phonemes,
// in which case the score must not take part in any combination.
func Phonetic(phones []string, segs []rhythm.Segment) (float64, bool) {
	observed := make([]string, 0, len(segs))
	for _, s := range segs {
		if strings.TrimSpace(s.ObservedPhonemes) != "" {
			observed = append(observed, s.ObservedPhonemes)
		}
	}
	if len(observed) == 0 {
		return 0, false
	}
	return phoneme.Score(phoneme.SequenceToIPA(phones), phoneme.Tokens(observed...)), true
}

// StressMarkers renders a text stress profile in "DA-da" notation. Primary
// stress is "DA", secondary "Da" and unstressed "da".
func StressMarkers(stress []int) string {
	parts := make([]string, len(stress))
	for i, s := range stress {
		switch s {
		case 1:
			parts[i] = "DA"
		case 2:
			parts[i] = "Da"
		default:
			parts[i] = "da"
		}
	}
	return strings.Join(parts, "-")
}
