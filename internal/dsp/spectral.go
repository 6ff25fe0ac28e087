package dsp

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ZeroCrossingRate returns the fraction of adjacent sample pairs in x whose
// signs differ.
func ZeroCrossingRate(x []float32) float64 {
	if len(x) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

// SpectralCentroid returns the magnitude-weighted mean frequency of x in Hz,
// computed over a single Hann-windowed FFT of the whole slice. Silence
// returns 0.
func SpectralCentroid(x []float32, sampleRate int) float64 {
	if len(x) < 2 || sampleRate <= 0 {
		return 0
	}
	buf := make([]float64, len(x))
	for i, v := range x {
		buf[i] = float64(v)
	}
	window.Apply(buf, window.Hann)
	coeffs := fourier.NewFFT(len(buf)).Coefficients(nil, buf)

	binHz := float64(sampleRate) / float64(len(buf))
	var weighted, total float64
	for k, c := range coeffs {
		m := cmplx.Abs(c)
		weighted += float64(k) * binHz * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
