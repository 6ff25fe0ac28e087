// Package mock provides test doubles for the phonetic recognizer interfaces.
//
// WindowRecognizer answers from a fixed list in call order, which suits the
// annotator's sequential per-segment queries. WordRecognizer returns a fixed
// word list.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
)

// WindowCall records a single invocation of RecognizeWindow.
type WindowCall struct {
	Samples    int
	SampleRate int
}

// WindowRecognizer is a mock implementation of phonetic.WindowRecognizer.
type WindowRecognizer struct {
	mu sync.Mutex

	// Responses are returned in call order. Calls beyond the list return "".
	Responses []string

	// Errs, when set at the call's index, is returned instead of a response.
	Errs []error

	// Calls records every invocation in order.
	Calls []WindowCall
}

// RecognizeWindow records the call and returns the next configured response.
func (r *WindowRecognizer) RecognizeWindow(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := len(r.Calls)
	r.Calls = append(r.Calls, WindowCall{Samples: len(samples), SampleRate: sampleRate})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if i < len(r.Errs) && r.Errs[i] != nil {
		return "", r.Errs[i]
	}
	if i < len(r.Responses) {
		return r.Responses[i], nil
	}
	return "", nil
}

// CallCount returns the number of recorded calls.
func (r *WindowRecognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// WordRecognizer is a mock implementation of phonetic.WordRecognizer.
type WordRecognizer struct {
	mu sync.Mutex

	Words []phonetic.Word
	Err   error
	calls int
}

// RecognizeWords returns Words or Err.
func (r *WordRecognizer) RecognizeWords(ctx context.Context, _ []float32, _ int) ([]phonetic.Word, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]phonetic.Word(nil), r.Words...), nil
}

// CallCount returns the number of recorded calls.
func (r *WordRecognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Ensure the mocks implement the interfaces at compile time.
var (
	_ phonetic.WindowRecognizer = (*WindowRecognizer)(nil)
	_ phonetic.WordRecognizer   = (*WordRecognizer)(nil)
)
