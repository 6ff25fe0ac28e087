// This file contains the Native recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Native implements phonetic.WordRecognizer.
var _ phonetic.WordRecognizer = (*Native)(nil)

// Native implements phonetic.WordRecognizer using whisper.cpp Go bindings.
// The model is loaded once and shared; every call creates its own context,
// so concurrent calls do not interfere.
type Native struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a Native recognizer.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for recognition. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the recognizer is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	if err := ProbeModel(modelPath); err != nil {
		return nil, err
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// ProbeModel reports whether modelPath names a readable model file.
func ProbeModel(modelPath string) error {
	fi, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("whisper: model %q: %w", modelPath, err)
	}
	if fi.IsDir() || fi.Size() == 0 {
		return fmt.Errorf("whisper: model %q is not a model file", modelPath)
	}
	return nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// RecognizeWords runs inference over the whole track. Segments are limited
// to a single token and split on word boundaries so each one is a word.
func (n *Native) RecognizeWords(ctx context.Context, samples []float32, sampleRate int) ([]phonetic.Word, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mono, err := audio.Resample(samples, sampleRate, SampleRate)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	wctx, err := n.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "err", err)
	}
	wctx.SetTokenTimestamps(true)
	wctx.SetSplitOnWord(true)
	wctx.SetMaxSegmentLength(1)

	if err := wctx.Process(mono, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var words []phonetic.Word
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		words = append(words, phonetic.Word{
			Text:  text,
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
		})
	}
	return words, ctx.Err()
}
