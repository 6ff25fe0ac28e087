// Package syllable counts the phonetic syllables of a lyric line and extracts
// its stress profile.
//
// Every phoneme that carries a stress digit is one vowel nucleus and therefore
// one syllable, so the count follows pronunciation rather than spelling.
package syllable

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
)

// Profile is the phonetic breakdown of one candidate line.
type Profile struct {
	// Phonemes is the full ARPABET sequence with stress digits intact.
	Phonemes []string

	// Stress holds one level per syllable in reading order:
	// 0 unstressed, 1 primary, 2 secondary.
	Stress []int
}

// Count returns the number of syllables.
func (p Profile) Count() int { return len(p.Stress) }

// FromPhonemes builds a Profile from a converter's output.
func FromPhonemes(phones []string) Profile {
	p := Profile{Phonemes: phones}
	for _, ph := range phones {
		if lvl, ok := g2p.Stress(ph); ok {
			p.Stress = append(p.Stress, lvl)
		}
	}
	return p
}

// Analyzer turns text into a Profile through a g2p.Converter.
// It is safe for concurrent use when the converter is.
type Analyzer struct {
	conv g2p.Converter
}

// New returns an Analyzer backed by conv.
func New(conv g2p.Converter) *Analyzer {
	return &Analyzer{conv: conv}
}

// Analyze converts text and returns its profile. Blank text and converter
// failures yield an empty profile; failures are logged rather than returned.
func (a *Analyzer) Analyze(ctx context.Context, text string) Profile {
	if strings.TrimSpace(text) == "" {
		return Profile{}
	}
	phones, err := a.conv.Phonemes(ctx, text)
	if err != nil {
		slog.Warn("syllable: grapheme-to-phoneme conversion failed", "text", text, "err", err)
		return Profile{}
	}
	return FromPhonemes(phones)
}
