// Package dsp holds the signal-processing primitives shared by the analysis
// packages: framing, RMS envelopes, a short-time Fourier transform, spectral
// flux, peak picking, pitch tracking and simple spectral descriptors.
//
// Every function is a pure function of its inputs. Samples are mono float32 in
// the range [-1, 1]; derived curves are float64.
package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrameCount returns how many frames of size frame with the given hop fit in
// n samples when the signal is centred (padded by frame/2 on both sides).
func FrameCount(n, frame, hop int) int {
	if n <= 0 || frame <= 0 || hop <= 0 {
		return 0
	}
	return 1 + n/hop
}

// FrameTime converts a centred frame index into seconds.
func FrameTime(frame, hop, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(frame*hop) / float64(sampleRate)
}

// TimeToSample converts seconds into a sample index clamped to [0, n].
func TimeToSample(t float64, sampleRate, n int) int {
	i := int(math.Round(t * float64(sampleRate)))
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// centredFrame copies the frame that is centred on sample hop*idx into buf,
// zero padding past either end of x.
func centredFrame(x []float32, idx, hop int, buf []float64) {
	start := idx*hop - len(buf)/2
	for k := range buf {
		j := start + k
		if j >= 0 && j < len(x) {
			buf[k] = float64(x[j])
		} else {
			buf[k] = 0
		}
	}
}

// RMS returns the root-mean-square level of x. An empty slice has level 0.
func RMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(x)))
}

// RMSCurve returns the centred framewise RMS envelope of x.
func RMSCurve(x []float32, frame, hop int) []float64 {
	n := FrameCount(len(x), frame, hop)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	buf := make([]float64, frame)
	for i := range out {
		centredFrame(x, i, hop, buf)
		out[i] = math.Sqrt(floats.Dot(buf, buf) / float64(frame))
	}
	return out
}

// Normalize rescales x in place to [0, 1]. A constant curve becomes all zeros.
func Normalize(x []float64) {
	if len(x) == 0 {
		return
	}
	lo, hi := floats.Min(x), floats.Max(x)
	span := hi - lo
	if span <= 0 {
		for i := range x {
			x[i] = 0
		}
		return
	}
	for i := range x {
		x[i] = (x[i] - lo) / span
	}
}

// Mean returns the arithmetic mean of x, or 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// Median returns the median of x without modifying it, or 0 for an empty slice.
// An even-length x yields the mean of its two middle values; stat.Quantile
// with stat.Empirical would return the lower one instead.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Max returns the largest element of x, or 0 for an empty slice.
func Max(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Max(x)
}
