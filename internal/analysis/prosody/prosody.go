// Package prosody labels refined segments with stress, sustain and pitch
// contour.
//
// Stress is relative: a segment is stressed when it is louder than
// StressMultiplier times the mean level of the segments around it. Sustain is
// a pure duration threshold. Pitch contour comes from a framewise f0 track of
// the whole buffer, restricted to each segment's window.
//
// Estimation problems never surface as errors. A failed pitch track makes
// every segment mid; a non-finite level makes its segment unstressed.
package prosody

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/MrWong99/flowlyrics/internal/analysis/segment"
	"github.com/MrWong99/flowlyrics/internal/dsp"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// Classify returns a copy of segs with IsStressed, IsSustained and
// PitchContour filled in. Other fields are preserved.
func Classify(segs []rhythm.Segment, samples []float32, sampleRate int, cfg rhythm.ProsodyConfig) []rhythm.Segment {
	out := append([]rhythm.Segment(nil), segs...)
	if len(out) == 0 {
		return out
	}

	stressed := Stress(segment.Levels(out, samples, sampleRate), cfg)
	contours := Contours(out, samples, sampleRate, cfg)
	for i := range out {
		out[i].IsStressed = stressed[i]
		out[i].IsSustained = IsSustained(out[i].Duration, cfg)
		out[i].PitchContour = contours[i]
	}
	return out
}

// Stress flags each level that exceeds cfg.StressMultiplier times the mean of
// the window of 2*StressWindow+1 levels centred on it, clamped at both ends.
// A window whose mean is zero or not finite yields false.
func Stress(levels []float64, cfg rhythm.ProsodyConfig) []bool {
	out := make([]bool, len(levels))
	for i, level := range levels {
		lo := max(0, i-cfg.StressWindow)
		hi := min(len(levels), i+cfg.StressWindow+1)
		avg := dsp.Mean(levels[lo:hi])
		if avg <= 0 || math.IsNaN(avg) || math.IsInf(avg, 0) || math.IsNaN(level) {
			continue
		}
		out[i] = level > cfg.StressMultiplier*avg
	}
	return out
}

// IsSustained reports whether a segment of the given duration holds a note.
func IsSustained(duration float64, cfg rhythm.ProsodyConfig) bool {
	return duration > cfg.SustainThreshold
}

// Contours classifies the pitch contour of every segment. When the pitch
// tracker fails, every segment is [rhythm.PitchMid].
func Contours(segs []rhythm.Segment, samples []float32, sampleRate int, cfg rhythm.ProsodyConfig) []rhythm.PitchContour {
	out := make([]rhythm.PitchContour, len(segs))
	for i := range out {
		out[i] = rhythm.PitchMid
	}

	track, err := safeTrack(samples, sampleRate, cfg)
	if err != nil {
		slog.Warn("prosody: pitch tracking failed, defaulting to mid", "err", err, "segments", len(segs))
		return out
	}

	for i, s := range segs {
		var voiced []float64
		for _, f := range track {
			if f.Time < s.Start {
				continue
			}
			if f.Time >= s.End() {
				break
			}
			if f.Voiced && f.Hz > 0 && !math.IsNaN(f.Hz) {
				voiced = append(voiced, f.Hz)
			}
		}
		out[i] = Contour(voiced, cfg)
	}
	return out
}

// safeTrack runs the pitch tracker and turns a panic into an error.
func safeTrack(samples []float32, sampleRate int, cfg rhythm.ProsodyConfig) (track []dsp.PitchFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prosody: pitch tracker panicked: %v", r)
		}
	}()
	return dsp.TrackPitch(samples, sampleRate, dsp.PitchParams{
		FrameSize: cfg.PitchFrameSize,
		Hop:       cfg.PitchHop,
		MinHz:     cfg.PitchMinHz,
		MaxHz:     cfg.PitchMaxHz,
		Threshold: cfg.VoicingCutoff,
	})
}

// Contour classifies a sequence of voiced f0 values.
//
// The trend is checked first: the mean of the first third against the mean
// of the last third gives rising above RisingRatio and falling below
// FallingRatio. Only without a clear trend is the median bucketed into low,
// mid or high. No values gives mid.
func Contour(voiced []float64, cfg rhythm.ProsodyConfig) rhythm.PitchContour {
	if len(voiced) == 0 {
		return rhythm.PitchMid
	}
	third := max(1, len(voiced)/3)
	first := dsp.Mean(voiced[:third])
	last := dsp.Mean(voiced[len(voiced)-third:])
	if first > 0 {
		ratio := last / first
		switch {
		case ratio > cfg.RisingRatio:
			return rhythm.PitchRising
		case ratio < cfg.FallingRatio:
			return rhythm.PitchFalling
		}
	}

	med := dsp.Median(voiced)
	switch {
	case med < cfg.LowPitchHz:
		return rhythm.PitchLow
	case med > cfg.HighPitchHz:
		return rhythm.PitchHigh
	}
	return rhythm.PitchMid
}
