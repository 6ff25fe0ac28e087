package dsp

import (
	"errors"
	"fmt"
	"math"
)

// ErrPitchParams is returned by [TrackPitch] when its parameters cannot
// describe a valid search range.
var ErrPitchParams = errors.New("dsp: invalid pitch tracker parameters")

// PitchFrame is one estimate of the fundamental frequency.
type PitchFrame struct {
	// Time is the centre of the analysis frame in seconds.
	Time float64

	// Hz is the estimated fundamental. Zero when the frame is unvoiced.
	Hz float64

	// Voiced reports whether a periodic component was found.
	Voiced bool
}

// PitchParams controls [TrackPitch].
type PitchParams struct {
	FrameSize int
	Hop       int
	MinHz     float64
	MaxHz     float64

	// Threshold is the cumulative-mean-normalised difference a lag must fall
	// under to count as periodic. Typical values are 0.1 to 0.2.
	Threshold float64
}

// silenceRMS is the frame level under which no pitch is searched for.
const silenceRMS = 1e-4

// TrackPitch estimates a framewise f0 track with the YIN method.
//
// For every centred frame the squared difference function is computed over the
// lag range implied by MinHz and MaxHz, normalised by its cumulative mean, and
// the first dip under Threshold is refined by parabolic interpolation.
// Frames without such a dip, or below the silence floor, are unvoiced.
func TrackPitch(x []float32, sampleRate int, p PitchParams) ([]PitchFrame, error) {
	if sampleRate <= 0 || p.FrameSize <= 0 || p.Hop <= 0 || p.MinHz <= 0 || p.MaxHz <= p.MinHz {
		return nil, fmt.Errorf("%w: rate=%d frame=%d hop=%d range=%.1f-%.1f Hz",
			ErrPitchParams, sampleRate, p.FrameSize, p.Hop, p.MinHz, p.MaxHz)
	}
	tauMin := int(math.Floor(float64(sampleRate) / p.MaxHz))
	tauMax := int(math.Ceil(float64(sampleRate) / p.MinHz))
	if tauMin < 2 {
		tauMin = 2
	}
	if tauMax >= p.FrameSize-1 {
		return nil, fmt.Errorf("%w: frame of %d samples cannot hold a %.1f Hz period",
			ErrPitchParams, p.FrameSize, p.MinHz)
	}
	integ := p.FrameSize - tauMax

	n := FrameCount(len(x), p.FrameSize, p.Hop)
	out := make([]PitchFrame, n)
	buf := make([]float64, p.FrameSize)
	diff := make([]float64, tauMax+1)
	for i := range out {
		out[i].Time = FrameTime(i, p.Hop, sampleRate)
		centredFrame(x, i, p.Hop, buf)

		var energy float64
		for _, v := range buf {
			energy += v * v
		}
		if math.Sqrt(energy/float64(len(buf))) < silenceRMS {
			continue
		}

		yinDifference(buf, integ, diff)
		tau := yinPick(diff, tauMin, tauMax, p.Threshold)
		if tau <= 0 {
			continue
		}
		period := parabolic(diff, tau)
		if period <= 0 {
			continue
		}
		out[i].Hz = float64(sampleRate) / period
		out[i].Voiced = true
	}
	return out, nil
}

// yinDifference fills d with the cumulative-mean-normalised difference
// function of frame over lags 0..len(d)-1.
func yinDifference(frame []float64, integ int, d []float64) {
	d[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		var sum float64
		for j := 0; j < integ; j++ {
			delta := frame[j] - frame[j+tau]
			sum += delta * delta
		}
		running += sum
		if running == 0 {
			d[tau] = 1
			continue
		}
		d[tau] = sum * float64(tau) / running
	}
}

func yinPick(d []float64, tauMin, tauMax int, threshold float64) int {
	for tau := tauMin; tau <= tauMax; tau++ {
		if d[tau] >= threshold {
			continue
		}
		for tau+1 <= tauMax && d[tau+1] < d[tau] {
			tau++
		}
		return tau
	}
	return 0
}

func parabolic(d []float64, tau int) float64 {
	if tau <= 0 || tau >= len(d)-1 {
		return float64(tau)
	}
	a, b, c := d[tau-1], d[tau], d[tau+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(tau)
	}
	return float64(tau) + 0.5*(a-c)/den
}
