package dsp

import "math"

// EstimateTempo returns the dominant tempo in BPM of an onset-strength curve
// sampled every hop samples, searching minBPM to maxBPM. It returns 0 when the
// curve is too short or has no periodicity.
//
// The estimate is the lag with the highest autocorrelation, weighted by a
// log-normal prior centred on 120 BPM so that half and double tempo octaves
// do not win on short excerpts.
func EstimateTempo(env []float64, hop, sampleRate int, minBPM, maxBPM float64) float64 {
	if len(env) < 4 || hop <= 0 || sampleRate <= 0 || minBPM <= 0 || maxBPM <= minBPM {
		return 0
	}
	framesPerSec := float64(sampleRate) / float64(hop)
	lagMin := int(math.Floor(60 * framesPerSec / maxBPM))
	lagMax := int(math.Ceil(60 * framesPerSec / minBPM))
	if lagMin < 1 {
		lagMin = 1
	}
	if lagMax >= len(env) {
		lagMax = len(env) - 1
	}
	if lagMin > lagMax {
		return 0
	}

	mean := Mean(env)
	centred := make([]float64, len(env))
	for i, v := range env {
		centred[i] = v - mean
	}

	const (
		priorBPM   = 120.0
		priorWidth = 1.0
	)
	bestLag, bestScore := 0, 0.0
	for lag := lagMin; lag <= lagMax; lag++ {
		var ac float64
		for i := 0; i+lag < len(centred); i++ {
			ac += centred[i] * centred[i+lag]
		}
		ac /= float64(len(centred) - lag)
		if ac <= 0 {
			continue
		}
		bpm := 60 * framesPerSec / float64(lag)
		z := math.Log2(bpm/priorBPM) / priorWidth
		score := ac * math.Exp(-0.5*z*z)
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 {
		return 0
	}
	return 60 * framesPerSec / float64(bestLag)
}
