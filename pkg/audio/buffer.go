// Package audio loads WAV files into mono float32 buffers ready for rhythm
// analysis, and converts buffers between sample formats.
//
// Decoding uses go-audio/wav; rate conversion uses the pure-Go soxr port in
// tphakala/go-audio-resampling so no CGO toolchain is needed.
package audio

import (
	"fmt"
	"math"
)

// DefaultSampleRate is the rate every analysis buffer is brought to unless a
// caller asks otherwise.
const DefaultSampleRate = 22050

// Buffer is a mono waveform. Samples are normalised to [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// IsEmpty reports whether the buffer holds no samples.
func (b Buffer) IsEmpty() bool { return len(b.Samples) == 0 }

// Slice returns the part of b between start and end seconds, clamped to the
// buffer bounds. The result shares memory with b.
func (b Buffer) Slice(start, end float64) Buffer {
	n := len(b.Samples)
	lo := clampIndex(int(math.Round(start*float64(b.SampleRate))), n)
	hi := clampIndex(int(math.Round(end*float64(b.SampleRate))), n)
	if hi < lo {
		hi = lo
	}
	return Buffer{Samples: b.Samples[lo:hi], SampleRate: b.SampleRate}
}

// String returns a short description such as "22050Hz mono 3.20s".
func (b Buffer) String() string {
	return fmt.Sprintf("%dHz mono %.2fs", b.SampleRate, b.Duration())
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
