// Package onset finds candidate syllable-start times in a mono vocal track.
//
// Detection runs in up to three steps:
//
//  1. Spectral flux: a normalised onset-strength curve is peak picked and every
//     peak is backtracked to the preceding local minimum of the curve.
//  2. Energy fallback: when step 1 yields fewer than FallbackMinOnsets onsets
//     (near-silent or smooth audio), local maxima of a normalised RMS curve
//     above FallbackThreshold are added, at least FallbackMinSpacing apart.
//  3. Merge: both lists are sorted and onsets closer than MergeWindow collapse
//     into the earlier one.
//
// The detector is deterministic and never fails; silence yields no onsets.
package onset

import (
	"sort"

	"github.com/MrWong99/flowlyrics/internal/dsp"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// fallbackFrame is the RMS window used by the energy fallback.
const fallbackFrame = 1024

// fallbackHop is the RMS hop used by the energy fallback.
const fallbackHop = 256

// Result reports the detected onsets and how they were found.
type Result struct {
	// Times are the merged onset times in seconds, ascending.
	Times []float64

	// Strength is the normalised spectral flux curve, one value per hop.
	// It is reused by tempo estimation.
	Strength []float64

	// Spectral and Energy count the onsets each strategy contributed before
	// merging.
	Spectral int
	Energy   int

	// FallbackUsed reports whether the energy detector ran.
	FallbackUsed bool
}

// Detect returns the onsets of samples.
func Detect(samples []float32, sampleRate int, cfg rhythm.OnsetConfig) Result {
	var res Result
	if sampleRate <= 0 || len(samples) == 0 {
		return res
	}

	res.Strength = dsp.OnsetStrength(samples, cfg.FrameSize, cfg.HopLength)
	spectral := spectralOnsets(res.Strength, sampleRate, cfg)
	res.Spectral = len(spectral)

	all := spectral
	if cfg.UseFallback && len(spectral) < cfg.FallbackMinOnsets {
		energy := energyOnsets(samples, sampleRate, cfg)
		res.Energy = len(energy)
		res.FallbackUsed = true
		all = append(append([]float64(nil), spectral...), energy...)
	}
	res.Times = Merge(all, cfg.MergeWindow)
	return res
}

func spectralOnsets(strength []float64, sampleRate int, cfg rhythm.OnsetConfig) []float64 {
	peaks := dsp.PickPeaks(strength, dsp.PeakParams{
		PreMax:  cfg.PreMax,
		PostMax: cfg.PostMax,
		PreAvg:  cfg.PreAvg,
		PostAvg: cfg.PostAvg,
		Delta:   cfg.Delta,
		Wait:    cfg.Wait,
	})
	if cfg.Backtrack {
		peaks = dsp.Backtrack(peaks, strength)
	}
	times := make([]float64, len(peaks))
	for i, p := range peaks {
		times[i] = dsp.FrameTime(p, cfg.HopLength, sampleRate)
	}
	return times
}

func energyOnsets(samples []float32, sampleRate int, cfg rhythm.OnsetConfig) []float64 {
	curve := dsp.RMSCurve(samples, fallbackFrame, fallbackHop)
	if dsp.Max(curve) <= 0 {
		return nil
	}
	dsp.Normalize(curve)

	minGap := int(cfg.FallbackMinSpacing * float64(sampleRate) / fallbackHop)
	var times []float64
	last := -minGap - 1
	for _, i := range dsp.LocalMaxima(curve) {
		if curve[i] <= cfg.FallbackThreshold {
			continue
		}
		if i-last < minGap {
			continue
		}
		times = append(times, dsp.FrameTime(i, fallbackHop, sampleRate))
		last = i
	}
	return times
}

// Merge sorts times ascending and drops every onset that lies within window
// seconds of the previously kept one, so the earliest of a cluster survives.
func Merge(times []float64, window float64) []float64 {
	if len(times) == 0 {
		return nil
	}
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	out := sorted[:1]
	for _, t := range sorted[1:] {
		if t-out[len(out)-1] < window {
			continue
		}
		out = append(out, t)
	}
	return out
}
