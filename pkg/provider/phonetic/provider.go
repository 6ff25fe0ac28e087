// Package phonetic defines the recognizer interfaces that supply observed
// phonemes for rhythm segments, and the annotator that maps recognizer output
// onto a segment list.
//
// Recognizers come in two shapes. A WindowRecognizer is asked about one short
// audio window at a time and answers with space-separated phoneme tokens. A
// WordRecognizer transcribes a whole track once and reports timed words; the
// annotator converts those words to syllables with a g2p.Converter and
// assigns them to segments by position.
//
// Implementations must be safe for concurrent use.
package phonetic

import (
	"context"
	"fmt"
)

// Word is one recognized word with its time span in seconds.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// WindowRecognizer recognizes the phonemes of a short audio window.
type WindowRecognizer interface {
	// RecognizeWindow returns space-separated phoneme tokens for samples, or
	// "" when nothing recognizable was heard.
	RecognizeWindow(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// WordRecognizer transcribes a whole track into timed words.
type WordRecognizer interface {
	RecognizeWords(ctx context.Context, samples []float32, sampleRate int) ([]Word, error)
}

// Backend identifies the recognizer chosen at configuration time.
type Backend int

// Recognizer backends in order of preference.
const (
	// BackendNone disables phonetic annotation.
	BackendNone Backend = iota

	// BackendPrimary is a whisper.cpp server reached over HTTP.
	BackendPrimary

	// BackendSecondary is whisper.cpp linked in through its Go bindings.
	BackendSecondary

	// BackendHeuristic classifies windows as vowel or consonant from zero
	// crossings and spectral centroid.
	BackendHeuristic
)

// String returns the configuration name of the backend.
func (b Backend) String() string {
	switch b {
	case BackendNone:
		return "none"
	case BackendPrimary:
		return "whisper-server"
	case BackendSecondary:
		return "whisper-native"
	case BackendHeuristic:
		return "heuristic"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ResolveConfig describes which backends may be used.
type ResolveConfig struct {
	// ServerURL enables the primary backend when non-empty.
	ServerURL string

	// ModelPath enables the secondary backend when non-empty.
	ModelPath string

	// Fallback enables the heuristic backend when neither whisper backend is
	// available.
	Fallback bool
}

// Probes checks whether a configured backend is actually usable. A nil probe
// counts as success.
type Probes struct {
	Server func(ctx context.Context, url string) error
	Model  func(path string) error
}

// Resolution is the outcome of backend selection.
type Resolution struct {
	Backend Backend

	// Skipped lists why each preferred backend was passed over, in order.
	Skipped []string
}

// Resolve picks the first usable backend: the whisper server when a URL is
// configured and its probe succeeds, native whisper when a model path is
// configured and its probe succeeds, the heuristic when fallback is enabled,
// and otherwise none.
func Resolve(ctx context.Context, cfg ResolveConfig, p Probes) Resolution {
	var res Resolution

	switch {
	case cfg.ServerURL == "":
		res.Skipped = append(res.Skipped, "whisper-server: no server URL configured")
	case p.Server != nil:
		if err := p.Server(ctx, cfg.ServerURL); err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("whisper-server: %v", err))
			break
		}
		res.Backend = BackendPrimary
		return res
	default:
		res.Backend = BackendPrimary
		return res
	}

	switch {
	case cfg.ModelPath == "":
		res.Skipped = append(res.Skipped, "whisper-native: no model path configured")
	case p.Model != nil:
		if err := p.Model(cfg.ModelPath); err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("whisper-native: %v", err))
			break
		}
		res.Backend = BackendSecondary
		return res
	default:
		res.Backend = BackendSecondary
		return res
	}

	if cfg.Fallback {
		res.Backend = BackendHeuristic
		return res
	}
	res.Skipped = append(res.Skipped, "heuristic: fallback disabled")
	res.Backend = BackendNone
	return res
}
