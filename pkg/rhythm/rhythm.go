// Package rhythm defines the Rhythm Grid: the ordered, annotated sequence of
// syllable slots that a lyric line has to fit.
//
// A [Grid] is produced by the analysis packages from one audio buffer and is
// never mutated afterwards. Consumers (prompt construction, the fit scorer,
// persistence) only read it. A grid with zero segments is valid and means the
// track contained nothing to sing over.
package rhythm

import "strings"

// PitchContour is the coarse melodic shape of a segment.
type PitchContour string

const (
	PitchLow     PitchContour = "low"
	PitchMid     PitchContour = "mid"
	PitchHigh    PitchContour = "high"
	PitchRising  PitchContour = "rising"
	PitchFalling PitchContour = "falling"
)

// IsValid reports whether p is a recognised pitch contour.
func (p PitchContour) IsValid() bool {
	switch p {
	case PitchLow, PitchMid, PitchHigh, PitchRising, PitchFalling:
		return true
	}
	return false
}

// Segment is one rhythmic slot of a grid.
type Segment struct {
	// Start is the offset of the slot from the beginning of the track, in seconds.
	Start float64

	// Duration is the length of the slot in seconds. Always > 0 in a refined grid.
	Duration float64

	// IsStressed is set by the prosody classifier when the slot is noticeably
	// louder than its neighbours.
	IsStressed bool

	// IsSustained marks slots long enough to hold a note.
	IsSustained bool

	// PitchContour is the melodic shape within the slot.
	PitchContour PitchContour

	// ObservedPhonemes holds space separated phoneme tokens recognised in this
	// slot. Empty when no recogniser ran or it heard nothing.
	ObservedPhonemes string
}

// End returns the time at which the segment ends.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// Grid is the immutable product of one analysis run.
type Grid struct {
	// Segments are time ordered and non-overlapping.
	Segments []Segment

	// Tempo is the estimated track tempo in beats per minute.
	Tempo float64

	// Duration is the length of the analysed buffer in seconds.
	Duration float64
}

// Len returns the number of segments, which is also the number of syllables a
// fitting lyric line must have.
func (g Grid) Len() int {
	return len(g.Segments)
}

// IsEmpty reports whether the grid contains no segments.
func (g Grid) IsEmpty() bool {
	return len(g.Segments) == 0
}

// HasPhonemes reports whether at least one segment carries observed phonemes.
func (g Grid) HasPhonemes() bool {
	for _, s := range g.Segments {
		if strings.TrimSpace(s.ObservedPhonemes) != "" {
			return true
		}
	}
	return false
}

// StressFlags returns the per-segment stress flags in order.
func (g Grid) StressFlags() []bool {
	flags := make([]bool, len(g.Segments))
	for i, s := range g.Segments {
		flags[i] = s.IsStressed
	}
	return flags
}

// StressPattern renders the stress flags in "DA-da-DA" notation, where "DA"
// marks a stressed slot. An empty grid renders as "".
func (g Grid) StressPattern() string {
	return StressPattern(g.StressFlags())
}

// PitchPattern renders the per-segment contours joined by "-".
func (g Grid) PitchPattern() string {
	parts := make([]string, len(g.Segments))
	for i, s := range g.Segments {
		parts[i] = string(s.PitchContour)
	}
	return strings.Join(parts, "-")
}

// IsOrdered reports whether every segment starts at or after the end of its
// predecessor, allowing eps of floating point slack.
func (g Grid) IsOrdered(eps float64) bool {
	for i := 1; i < len(g.Segments); i++ {
		if g.Segments[i-1].End() > g.Segments[i].Start+eps {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of g.
func (g Grid) Clone() Grid {
	out := g
	out.Segments = append([]Segment(nil), g.Segments...)
	return out
}

// StressPattern renders stress flags in "DA-da" notation.
func StressPattern(flags []bool) string {
	parts := make([]string, len(flags))
	for i, stressed := range flags {
		if stressed {
			parts[i] = "DA"
		} else {
			parts[i] = "da"
		}
	}
	return strings.Join(parts, "-")
}
