// Package phoneme maps ARPABET phonemes onto a small IPA inventory and
// compares phoneme sequences by broad phonetic class.
//
// Vowels are grouped by openness (close, mid, open) and consonants by manner
// of articulation (plosive, fricative, nasal, approximant, affricate). Two
// symbols that differ but share a class are considered half a match.
package phoneme

import (
	"strings"
)

// Class is the broad phonetic class of an IPA symbol.
type Class int

// Phonetic classes. ClassUnknown is never a partial match for anything.
const (
	ClassUnknown Class = iota
	ClassVowelClose
	ClassVowelMid
	ClassVowelOpen
	ClassPlosive
	ClassFricative
	ClassNasal
	ClassApproximant
	ClassAffricate
)

// String returns a lower-case name for the class.
func (c Class) String() string {
	switch c {
	case ClassVowelClose:
		return "close"
	case ClassVowelMid:
		return "mid"
	case ClassVowelOpen:
		return "open"
	case ClassPlosive:
		return "plosive"
	case ClassFricative:
		return "fricative"
	case ClassNasal:
		return "nasal"
	case ClassApproximant:
		return "approximant"
	case ClassAffricate:
		return "affricate"
	default:
		return "unknown"
	}
}

// IsVowel reports whether c is one of the vowel openness tiers.
func (c Class) IsVowel() bool {
	return c >= ClassVowelClose && c <= ClassVowelOpen
}

// IsConsonant reports whether c is one of the consonant manners.
func (c Class) IsConsonant() bool {
	return c >= ClassPlosive && c <= ClassAffricate
}

// Coarse tags emitted by recognizers that can only tell sound types apart.
// TagVowel half-matches any vowel and TagConsonant any consonant. TagMid
// marks an ambiguous window and matches nothing.
const (
	TagVowel     = "[vowel]"
	TagConsonant = "[consonant]"
	TagMid       = "[mid]"
)

var arpabetIPA = map[string]string{
	"AA": "ɑ", "AE": "æ", "AH": "ʌ", "AO": "ɔ", "AW": "aʊ", "AY": "aɪ",
	"EH": "ɛ", "ER": "ɝ", "EY": "eɪ", "IH": "ɪ", "IY": "i", "OW": "oʊ",
	"OY": "ɔɪ", "UH": "ʊ", "UW": "u",

	"B": "b", "CH": "tʃ", "D": "d", "DH": "ð", "F": "f", "G": "g",
	"HH": "h", "JH": "dʒ", "K": "k", "L": "l", "M": "m", "N": "n",
	"NG": "ŋ", "P": "p", "R": "ɹ", "S": "s", "SH": "ʃ", "T": "t",
	"TH": "θ", "V": "v", "W": "w", "Y": "j", "Z": "z", "ZH": "ʒ",
}

var classes = map[string]Class{
	"i": ClassVowelClose, "ɪ": ClassVowelClose, "u": ClassVowelClose, "ʊ": ClassVowelClose,

	"e": ClassVowelMid, "eɪ": ClassVowelMid, "ɛ": ClassVowelMid, "ə": ClassVowelMid,
	"ɚ": ClassVowelMid, "ɝ": ClassVowelMid, "o": ClassVowelMid, "oʊ": ClassVowelMid,
	"ɔ": ClassVowelMid, "ʌ": ClassVowelMid,

	"æ": ClassVowelOpen, "a": ClassVowelOpen, "ɑ": ClassVowelOpen, "aɪ": ClassVowelOpen,
	"aʊ": ClassVowelOpen, "ɔɪ": ClassVowelOpen,

	"p": ClassPlosive, "b": ClassPlosive, "t": ClassPlosive, "d": ClassPlosive,
	"k": ClassPlosive, "g": ClassPlosive,

	"f": ClassFricative, "v": ClassFricative, "θ": ClassFricative, "ð": ClassFricative,
	"s": ClassFricative, "z": ClassFricative, "ʃ": ClassFricative, "ʒ": ClassFricative,
	"h": ClassFricative,

	"m": ClassNasal, "n": ClassNasal, "ŋ": ClassNasal,

	"ɹ": ClassApproximant, "r": ClassApproximant, "l": ClassApproximant,
	"w": ClassApproximant, "j": ClassApproximant,

	"tʃ": ClassAffricate, "dʒ": ClassAffricate,
}

// ToIPA returns the IPA symbol for one ARPABET phoneme, ignoring case and any
// trailing stress digit. Unknown phonemes return "".
func ToIPA(arpabet string) string {
	p := strings.ToUpper(strings.TrimRight(arpabet, "012"))
	return arpabetIPA[p]
}

// SequenceToIPA maps every phoneme with ToIPA and drops unknown ones.
func SequenceToIPA(arpabet []string) []string {
	out := make([]string, 0, len(arpabet))
	for _, p := range arpabet {
		if s := ToIPA(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ClassOf returns the phonetic class of an IPA symbol.
func ClassOf(sym string) Class {
	return classes[sym]
}

// Tokens splits observed phoneme strings on whitespace and concatenates the
// results into one symbol sequence. Empty strings contribute nothing.
func Tokens(observed ...string) []string {
	var out []string
	for _, o := range observed {
		out = append(out, strings.Fields(o)...)
	}
	return out
}

// Similarity compares an expected IPA symbol to an observed token: 1 for an
// exact match, 0.5 for the same class, 0 otherwise. Coarse tags on the
// observed side score 0.5 against any symbol of the matching kind.
func Similarity(expected, observed string) float64 {
	if expected == "" || observed == "" {
		return 0
	}
	if expected == observed {
		return 1
	}
	ce := ClassOf(expected)
	switch observed {
	case TagVowel:
		if ce.IsVowel() {
			return 0.5
		}
		return 0
	case TagConsonant:
		if ce.IsConsonant() {
			return 0.5
		}
		return 0
	case TagMid:
		return 0
	}
	if ce != ClassUnknown && ce == ClassOf(observed) {
		return 0.5
	}
	return 0
}

// Score compares two symbol sequences position by position and normalises
// the summed Similarity by the length of the longer sequence. Two empty
// sequences score 0.
func Score(expected, observed []string) float64 {
	n := max(len(expected), len(observed))
	if n == 0 {
		return 0
	}
	var pts float64
	for i := range min(len(expected), len(observed)) {
		pts += Similarity(expected[i], observed[i])
	}
	return pts / float64(n)
}

// Syllables splits an ARPABET pronunciation into syllables and returns each
// one as space-separated IPA. A syllable is a vowel nucleus plus the
// consonants that follow it up to the next nucleus; consonants before the
// first nucleus belong to the first syllable. A pronunciation without any
// vowel yields no syllables.
func Syllables(arpabet []string) []string {
	var (
		out     []string
		cur     []string
		nucleus bool
	)
	for _, p := range arpabet {
		sym := ToIPA(p)
		if sym == "" {
			continue
		}
		if ClassOf(sym).IsVowel() {
			if nucleus {
				out = append(out, strings.Join(cur, " "))
				cur = cur[:0:0]
			}
			nucleus = true
		}
		cur = append(cur, sym)
	}
	if nucleus {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
