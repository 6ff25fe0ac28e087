// Package segment turns onset times into refined rhythmic slots.
//
// Refinement has three passes, applied in order by [Refine]:
//
//  1. [Derive] gives every onset the span up to the next onset. The final
//     onset has no successor and gets DefaultLastDuration, clipped to the end
//     of the buffer.
//  2. [Split] subdivides segments longer than MaxDuration at energy valleys.
//     A long segment without a qualifying valley is kept whole: a sustained
//     note is one syllable no matter how long it is.
//  3. [FilterBreaths] drops segments that are both short and quiet. Short but
//     loud consonant pops and quiet but long phrases survive.
//
// The output is time ordered and non-overlapping.
package segment

import (
	"math"
	"sort"

	"github.com/MrWong99/flowlyrics/internal/dsp"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// minDuration is the shortest span treated as a segment at all.
const minDuration = 1e-3

// Refine runs all three passes.
func Refine(onsets []float64, samples []float32, sampleRate int, cfg rhythm.SegmentConfig) []rhythm.Segment {
	if sampleRate <= 0 {
		return nil
	}
	total := float64(len(samples)) / float64(sampleRate)
	segs := Derive(onsets, total, cfg)
	segs = Split(segs, samples, sampleRate, cfg)
	return FilterBreaths(segs, samples, sampleRate, cfg)
}

// Derive converts sorted onset times into contiguous segments. Onsets at or
// beyond trackDuration are ignored.
func Derive(onsets []float64, trackDuration float64, cfg rhythm.SegmentConfig) []rhythm.Segment {
	var segs []rhythm.Segment
	for i, start := range onsets {
		if start < 0 || start >= trackDuration {
			continue
		}
		var dur float64
		if i+1 < len(onsets) {
			dur = onsets[i+1] - start
		} else {
			dur = cfg.DefaultLastDuration
		}
		if start+dur > trackDuration {
			dur = trackDuration - start
		}
		if dur < minDuration {
			continue
		}
		segs = append(segs, rhythm.Segment{Start: start, Duration: dur})
	}
	return segs
}

// Split subdivides every segment longer than cfg.MaxDuration at its energy
// valleys. Segments at or under the ceiling pass through unchanged.
func Split(segs []rhythm.Segment, samples []float32, sampleRate int, cfg rhythm.SegmentConfig) []rhythm.Segment {
	out := make([]rhythm.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Duration <= cfg.MaxDuration {
			out = append(out, s)
			continue
		}
		cuts := Valleys(s, samples, sampleRate, cfg)
		if len(cuts) == 0 {
			out = append(out, s)
			continue
		}
		prev := s.Start
		for _, c := range cuts {
			out = append(out, rhythm.Segment{Start: prev, Duration: c - prev})
			prev = c
		}
		out = append(out, rhythm.Segment{Start: prev, Duration: s.End() - prev})
	}
	return out
}

// Valleys returns the split points inside s, in seconds, ascending.
//
// The segment's RMS envelope is computed over consecutive blocks of SplitHop
// samples. Each local minimum is compared with its immediate shoulders: the
// nearest local peak to its left and to its right, found by climbing the
// envelope outward until it stops rising. A minimum is a valley when it sits
// at least ValleyDepth below the lower shoulder, and therefore below their
// mean, and below ValleyPeakRatio of the segment peak. The lower shoulder
// keeps a step down from a loud attack into a rippling sustain from reading
// as a dip. Valleys within EdgeGuard of either edge are discarded, and
// valleys closer than MinValleySpacing to each other collapse into the
// deeper one.
func Valleys(s rhythm.Segment, samples []float32, sampleRate int, cfg rhythm.SegmentConfig) []float64 {
	if cfg.SplitHop <= 0 || sampleRate <= 0 {
		return nil
	}
	lo := dsp.TimeToSample(s.Start, sampleRate, len(samples))
	hi := dsp.TimeToSample(s.End(), sampleRate, len(samples))
	env := blockRMS(samples[lo:hi], cfg.SplitHop)
	if len(env) < 3 {
		return nil
	}
	peak := dsp.Max(env)
	if peak <= 0 {
		return nil
	}

	type valley struct {
		t     float64
		level float64
	}
	var found []valley
	hopSec := float64(cfg.SplitHop) / float64(sampleRate)
	for _, i := range dsp.LocalMinima(env) {
		shoulder := math.Min(nearestPeak(env, i, -1), nearestPeak(env, i, 1))
		if env[i] > (1-cfg.ValleyDepth)*shoulder {
			continue
		}
		if env[i] >= cfg.ValleyPeakRatio*peak {
			continue
		}
		t := s.Start + (float64(i)+0.5)*hopSec
		if t-s.Start < cfg.EdgeGuard || s.End()-t < cfg.EdgeGuard {
			continue
		}
		found = append(found, valley{t: t, level: env[i]})
	}

	var kept []valley
	for _, v := range found {
		if n := len(kept); n > 0 && v.t-kept[n-1].t < cfg.MinValleySpacing {
			if v.level < kept[n-1].level {
				kept[n-1] = v
			}
			continue
		}
		kept = append(kept, v)
	}

	cuts := make([]float64, len(kept))
	for i, v := range kept {
		cuts[i] = v.t
	}
	sort.Float64s(cuts)
	return cuts
}

// nearestPeak climbs env from block i in direction step (-1 or +1) for as
// long as the level does not drop and returns the level where the climb
// ends. Flat stretches are crossed so a flat-bottomed dip still sees its
// shoulders.
func nearestPeak(env []float64, i, step int) float64 {
	j := i
	for k := i + step; k >= 0 && k < len(env) && env[k] >= env[j]; k += step {
		j = k
	}
	return env[j]
}

// blockRMS returns the RMS of consecutive, non-overlapping blocks of x. A
// trailing partial block counts when it is at least half a block long.
func blockRMS(x []float32, block int) []float64 {
	var env []float64
	for start := 0; start < len(x); start += block {
		end := start + block
		if end > len(x) {
			if len(x)-start < block/2 {
				break
			}
			end = len(x)
		}
		env = append(env, dsp.RMS(x[start:end]))
	}
	return env
}

// FilterBreaths drops segments shorter than cfg.ShortDuration whose RMS is
// below cfg.LowEnergyRatio times the loudest segment's RMS. Dropped segments
// leave a gap; they are never merged into a neighbour. Applying the filter
// to its own output changes nothing.
func FilterBreaths(segs []rhythm.Segment, samples []float32, sampleRate int, cfg rhythm.SegmentConfig) []rhythm.Segment {
	if len(segs) == 0 {
		return segs
	}
	levels := Levels(segs, samples, sampleRate)
	peak := dsp.Max(levels)

	out := make([]rhythm.Segment, 0, len(segs))
	for i, s := range segs {
		if s.Duration < cfg.ShortDuration && levels[i] < cfg.LowEnergyRatio*peak {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Levels returns the RMS of the samples under each segment.
func Levels(segs []rhythm.Segment, samples []float32, sampleRate int) []float64 {
	levels := make([]float64, len(segs))
	for i, s := range segs {
		lo := dsp.TimeToSample(s.Start, sampleRate, len(samples))
		hi := dsp.TimeToSample(s.End(), sampleRate, len(samples))
		levels[i] = dsp.RMS(samples[lo:hi])
	}
	return levels
}
