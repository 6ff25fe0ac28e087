package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
	"github.com/MrWong99/flowlyrics/pkg/provider/llm"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory builds an LLM backend from its config entry.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// G2PFactory builds a grapheme-to-phoneme converter.
type G2PFactory func(G2PConfig) (g2p.Converter, error)

// RecognizerFactory builds the phonetic annotator for one recognizer
// backend. conv is the converter used to split recognized words into
// syllables.
type RecognizerFactory func(RecognizerConfig, g2p.Converter) (*phonetic.Annotator, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]LLMFactory
	g2p        map[string]G2PFactory
	recognizer map[string]RecognizerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]LLMFactory),
		g2p:        make(map[string]G2PFactory),
		recognizer: make(map[string]RecognizerFactory),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterG2P registers a converter factory under name.
func (r *Registry) RegisterG2P(name string, factory G2PFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g2p[name] = factory
}

// RegisterRecognizer registers a recognizer factory under a backend name as
// reported by [phonetic.Backend.String].
func (r *Registry) RegisterRecognizer(backend string, factory RecognizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer[backend] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateG2P instantiates the converter registered under cfg.Name.
func (r *Registry) CreateG2P(cfg G2PConfig) (g2p.Converter, error) {
	r.mu.RLock()
	factory, ok := r.g2p[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: g2p/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateRecognizer instantiates the annotator registered for backend.
func (r *Registry) CreateRecognizer(backend string, cfg RecognizerConfig, conv g2p.Converter) (*phonetic.Annotator, error) {
	r.mu.RLock()
	factory, ok := r.recognizer[backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, backend)
	}
	return factory(cfg, conv)
}

// Names returns the sorted names registered for kind ("llm", "g2p" or
// "recognizer").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "llm":
		for n := range r.llm {
			names = append(names, n)
		}
	case "g2p":
		for n := range r.g2p {
			names = append(names, n)
		}
	case "recognizer":
		for n := range r.recognizer {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
