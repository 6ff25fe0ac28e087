package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when input is not a decodable PCM WAV stream.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

type options struct {
	sampleRate int
}

// Option configures decoding.
type Option func(*options)

// WithSampleRate sets the output sample rate. Zero keeps the file's native
// rate. The default is DefaultSampleRate.
func WithSampleRate(hz int) Option {
	return func(o *options) { o.sampleRate = hz }
}

// Load decodes the WAV file at path. Errors opening the file wrap the
// underlying os error, so errors.Is(err, fs.ErrNotExist) works.
func Load(path string, opts ...Option) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f, opts...)
}

// Decode reads a PCM WAV stream, downmixes it to mono and resamples it to
// the configured rate.
func Decode(r io.ReadSeeker, opts ...Option) (Buffer, error) {
	o := options{sampleRate: DefaultSampleRate}
	for _, fn := range opts {
		fn(&o)
	}

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 || pcm.Format.SampleRate <= 0 {
		return Buffer{}, fmt.Errorf("%w: missing format chunk", ErrInvalidWAV)
	}

	depth := int(d.BitDepth)
	if depth == 0 {
		depth = pcm.SourceBitDepth
	}
	samples, err := normalise(pcm.Data, depth)
	if err != nil {
		return Buffer{}, err
	}
	mono := Downmix(samples, pcm.Format.NumChannels)

	rate := pcm.Format.SampleRate
	if o.sampleRate > 0 && o.sampleRate != rate {
		mono, err = Resample(mono, rate, o.sampleRate)
		if err != nil {
			return Buffer{}, err
		}
		rate = o.sampleRate
	}
	return Buffer{Samples: mono, SampleRate: rate}, nil
}

// normalise scales integer PCM to [-1, 1]. 8-bit WAV data is unsigned.
func normalise(data []int, depth int) ([]float32, error) {
	out := make([]float32, len(data))
	switch depth {
	case 8:
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
	case 16, 24, 32:
		scale := float32(int64(1) << (depth - 1))
		for i, v := range data {
			out[i] = float32(v) / scale
		}
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, depth)
	}
	return out, nil
}

// Encode writes b to w as a 16-bit mono PCM WAV file.
func Encode(w io.WriteSeeker, b Buffer) error {
	enc := wav.NewEncoder(w, b.SampleRate, 16, 1, 1)
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(toInt16(s))
	}
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("audio: encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise WAV: %w", err)
	}
	return nil
}

// EncodeBytes returns b as an in-memory WAV file.
func EncodeBytes(b Buffer) ([]byte, error) {
	var ws memFile
	if err := Encode(&ws, b); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// DecodeBytes decodes an in-memory WAV file.
func DecodeBytes(data []byte, opts ...Option) (Buffer, error) {
	return Decode(bytes.NewReader(data), opts...)
}

// memFile is an in-memory io.WriteSeeker. The WAV encoder seeks back to
// patch chunk sizes once all data is written.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	m.pos = next
	return int64(next), nil
}
