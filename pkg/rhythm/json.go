package rhythm

import (
	"encoding/json"
	"fmt"
	"math"
)

// segmentJSON is the wire form of a [Segment].
type segmentJSON struct {
	Start            float64      `json:"start"`
	Duration         float64      `json:"duration"`
	IsStressed       bool         `json:"is_stressed"`
	IsSustained      bool         `json:"is_sustained"`
	PitchContour     PitchContour `json:"pitch_contour"`
	ObservedPhonemes string       `json:"observed_phonemes"`
}

// MarshalJSON encodes s with times rounded to millisecond precision.
func (s Segment) MarshalJSON() ([]byte, error) {
	pitch := s.PitchContour
	if pitch == "" {
		pitch = PitchMid
	}
	return json.Marshal(segmentJSON{
		Start:            Round(s.Start, 3),
		Duration:         Round(s.Duration, 3),
		IsStressed:       s.IsStressed,
		IsSustained:      s.IsSustained,
		PitchContour:     pitch,
		ObservedPhonemes: s.ObservedPhonemes,
	})
}

// UnmarshalJSON decodes a segment record. A missing pitch contour decodes as
// [PitchMid]; an unknown one is an error.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var w segmentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.PitchContour == "" {
		w.PitchContour = PitchMid
	}
	if !w.PitchContour.IsValid() {
		return fmt.Errorf("rhythm: unknown pitch contour %q", w.PitchContour)
	}
	*s = Segment{
		Start:            w.Start,
		Duration:         w.Duration,
		IsStressed:       w.IsStressed,
		IsSustained:      w.IsSustained,
		PitchContour:     w.PitchContour,
		ObservedPhonemes: w.ObservedPhonemes,
	}
	return nil
}

type gridJSON struct {
	Tempo    float64   `json:"tempo"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// MarshalJSON encodes the grid. Segments is always an array, never null.
func (g Grid) MarshalJSON() ([]byte, error) {
	segs := g.Segments
	if segs == nil {
		segs = []Segment{}
	}
	return json.Marshal(gridJSON{
		Tempo:    Round(g.Tempo, 2),
		Duration: Round(g.Duration, 2),
		Segments: segs,
	})
}

// UnmarshalJSON decodes a grid record.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var w gridJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*g = Grid{Tempo: w.Tempo, Duration: w.Duration, Segments: w.Segments}
	return nil
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
