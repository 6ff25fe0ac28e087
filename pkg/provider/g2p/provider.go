// Package g2p defines the Converter interface for grapheme-to-phoneme backends.
//
// A Converter turns arbitrary English text into a flat ARPABET token sequence.
// Vowel tokens carry a trailing stress digit (0 unstressed, 1 primary, 2
// secondary); consonant tokens carry none. Every stress-marked token is one
// syllable nucleus, so the syllable count of a line is the number of tokens for
// which [Stress] reports ok.
//
// Implementations must be safe for concurrent use. Conversion of text that
// contains no pronounceable words returns an empty slice and a nil error.
package g2p

import (
	"context"
	"strings"
	"unicode"
)

// Converter is the abstraction over any grapheme-to-phoneme backend.
type Converter interface {
	// Phonemes converts text into ARPABET tokens in reading order.
	//
	// Returns an error only when the backend itself fails (unreadable
	// dictionary, remote service down). Unknown words are the backend's
	// responsibility: they should be approximated rather than rejected.
	Phonemes(ctx context.Context, text string) ([]string, error)
}

// arpabetVowels lists the ARPABET vowel symbols without stress digits.
var arpabetVowels = map[string]bool{
	"AA": true, "AE": true, "AH": true, "AO": true, "AW": true, "AY": true,
	"EH": true, "ER": true, "EY": true, "IH": true, "IY": true, "OW": true,
	"OY": true, "UH": true, "UW": true,
}

// Stress returns the stress level carried by token p. ok is false for
// consonants and for tokens without a trailing 0, 1 or 2.
func Stress(p string) (level int, ok bool) {
	if p == "" {
		return 0, false
	}
	switch p[len(p)-1] {
	case '0':
		return 0, true
	case '1':
		return 1, true
	case '2':
		return 2, true
	}
	return 0, false
}

// StripStress removes a trailing stress digit from p.
func StripStress(p string) string {
	if _, ok := Stress(p); ok {
		return p[:len(p)-1]
	}
	return p
}

// IsVowel reports whether p (with or without stress digit) is an ARPABET vowel.
func IsVowel(p string) bool {
	return arpabetVowels[strings.ToUpper(StripStress(p))]
}

// Words splits text into lower-case words of letters, digits and inner
// apostrophes. Everything else separates words.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
