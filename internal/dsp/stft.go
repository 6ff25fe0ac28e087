package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// STFT computes a centred, Hann-windowed magnitude spectrogram of x.
// The result is indexed [frame][bin] with frame/2+1 bins per frame.
func STFT(x []float32, frame, hop int) [][]float64 {
	n := FrameCount(len(x), frame, hop)
	if n == 0 {
		return nil
	}
	win := window.Hann(frame)
	fft := fourier.NewFFT(frame)
	buf := make([]float64, frame)
	coeffs := make([]complex128, frame/2+1)

	spec := make([][]float64, n)
	for i := range spec {
		centredFrame(x, i, hop, buf)
		for k := range buf {
			buf[k] *= win[k]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		mags := make([]float64, len(coeffs))
		for k, c := range coeffs {
			mags[k] = cmplx.Abs(c)
		}
		spec[i] = mags
	}
	return spec
}

// SpectralFlux turns a magnitude spectrogram into an onset-strength curve.
//
// Magnitudes are log compressed, differenced against the previous frame,
// half-wave rectified and averaged across bins. The first frame has no
// predecessor and scores zero.
func SpectralFlux(spec [][]float64) []float64 {
	if len(spec) == 0 {
		return nil
	}
	const gain = 100.0
	out := make([]float64, len(spec))
	prev := logCompress(spec[0], gain)
	for i := 1; i < len(spec); i++ {
		cur := logCompress(spec[i], gain)
		var sum float64
		for k := range cur {
			if d := cur[k] - prev[k]; d > 0 {
				sum += d
			}
		}
		out[i] = sum / float64(len(cur))
		prev = cur
	}
	return out
}

func logCompress(mags []float64, gain float64) []float64 {
	out := make([]float64, len(mags))
	for k, m := range mags {
		out[k] = math.Log1p(gain * m)
	}
	return out
}

// OnsetStrength is the normalised spectral flux curve of x.
func OnsetStrength(x []float32, frame, hop int) []float64 {
	env := SpectralFlux(STFT(x, frame, hop))
	Normalize(env)
	return env
}
