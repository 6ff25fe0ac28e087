package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/flowlyrics/internal/config"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/internal/resilience"
	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
	"github.com/MrWong99/flowlyrics/pkg/provider/llm"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
)

// Providers holds the collaborators built from the config registry. Nil LLM
// means generation runs in mock mode; nil Annotator means segments carry no
// observed phonemes.
type Providers struct {
	// LLM is the failover group over every configured llm entry.
	LLM *resilience.LLMFallback

	// LLMName labels generation metrics, e.g. "openai/gpt-4o-mini".
	LLMName string

	G2P g2p.Converter

	Annotator *phonetic.Annotator

	// Recognizer records which backend was resolved and why others were
	// skipped.
	Recognizer phonetic.Resolution
}

// BuildProviders creates every provider named in cfg through reg. probes
// check whether the configured recognizer backends are usable; a nil probe
// counts as success.
//
// A missing g2p converter or a failing llm factory is an error. A recognizer
// that cannot be built is logged and skipped, leaving analysis without
// phonetic annotation.
func BuildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, probes phonetic.Probes, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	ps := &Providers{}

	conv, err := reg.CreateG2P(cfg.G2P)
	if err != nil {
		return nil, fmt.Errorf("app: g2p %q: %w", cfg.G2P.Name, err)
	}
	ps.G2P = conv

	for i, entry := range cfg.LLM {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: llm[%d] %q: %w", i, entry.Name, err)
		}
		name := llmLabel(entry)
		if ps.LLM == nil {
			ps.LLM = resilience.NewLLMFallback(p, name, resilience.FallbackConfig{
				CircuitBreaker: cfg.CircuitBreaker,
				Kind:           "llm",
				Metrics:        m,
			})
			ps.LLMName = name
			continue
		}
		ps.LLM.AddFallback(name, p)
	}

	rc := cfg.Recognizer
	ps.Recognizer = phonetic.Resolve(ctx, phonetic.ResolveConfig{
		ServerURL: rc.ServerURL,
		ModelPath: rc.ModelPath,
		Fallback:  rc.FallbackEnabled(),
	}, probes)
	for _, reason := range ps.Recognizer.Skipped {
		slog.Info("recognizer backend skipped", "reason", reason)
	}
	if backend := ps.Recognizer.Backend; backend != phonetic.BackendNone {
		ann, err := reg.CreateRecognizer(backend.String(), rc, conv)
		if err != nil {
			slog.Warn("recognizer unavailable, continuing without phonetic annotation",
				"backend", backend.String(), "err", err)
			ps.Recognizer.Skipped = append(ps.Recognizer.Skipped, fmt.Sprintf("%s: %v", backend, err))
			ps.Recognizer.Backend = phonetic.BackendNone
		} else {
			ps.Annotator = ann
		}
	}
	slog.Info("recognizer resolved", "backend", ps.Recognizer.Backend.String())

	return ps, nil
}

// CompletionProvider returns the LLM as an llm.Provider, or nil when none is
// configured.
func (p *Providers) CompletionProvider() llm.Provider {
	if p == nil || p.LLM == nil {
		return nil
	}
	return p.LLM
}

func llmLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}
