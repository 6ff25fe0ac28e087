package main

import (
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/flowlyrics/internal/config"
	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
	"github.com/MrWong99/flowlyrics/pkg/provider/g2p/cmudict"
	"github.com/MrWong99/flowlyrics/pkg/provider/llm"
	"github.com/MrWong99/flowlyrics/pkg/provider/llm/anyllm"
	"github.com/MrWong99/flowlyrics/pkg/provider/llm/openai"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic/heuristic"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic/whisper"
)

// registerBuiltinProviders wires every built-in provider factory into reg.
func (c *cli) registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai goes through the official SDK; every other backend shares the
	// any-llm pattern of optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllm.Supported {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── G2P ───────────────────────────────────────────────────────────────────

	reg.RegisterG2P("cmudict", func(cfg config.G2PConfig) (g2p.Converter, error) {
		var opts []cmudict.Option
		if cfg.NoGuess {
			opts = append(opts, cmudict.WithoutGuessing())
		}
		if cfg.DictPath != "" {
			return cmudict.Open(cfg.DictPath, opts...)
		}
		return cmudict.New(opts...)
	})

	// ── Recognizers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer(phonetic.BackendPrimary.String(), func(rc config.RecognizerConfig, conv g2p.Converter) (*phonetic.Annotator, error) {
		var opts []whisper.Option
		if rc.Model != "" {
			opts = append(opts, whisper.WithModel(rc.Model))
		}
		if rc.Language != "" {
			opts = append(opts, whisper.WithLanguage(rc.Language))
		}
		srv, err := whisper.New(rc.ServerURL, opts...)
		if err != nil {
			return nil, err
		}
		return phonetic.NewWordAnnotator(srv, conv, annotatorOptions(rc, phonetic.BackendPrimary)...), nil
	})

	reg.RegisterRecognizer(phonetic.BackendSecondary.String(), func(rc config.RecognizerConfig, conv g2p.Converter) (*phonetic.Annotator, error) {
		var opts []whisper.NativeOption
		if rc.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(rc.Language))
		}
		native, err := whisper.NewNative(rc.ModelPath, opts...)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, native.Close)
		return phonetic.NewWordAnnotator(native, conv, annotatorOptions(rc, phonetic.BackendSecondary)...), nil
	})

	reg.RegisterRecognizer(phonetic.BackendHeuristic.String(), func(rc config.RecognizerConfig, _ g2p.Converter) (*phonetic.Annotator, error) {
		r := heuristic.New(heuristic.DefaultThresholds())
		return phonetic.NewWindowAnnotator(r, annotatorOptions(rc, phonetic.BackendHeuristic)...), nil
	})

	for _, kind := range []string{"llm", "g2p", "recognizer"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// recognizerProbes checks the configured whisper backends before one is
// chosen.
func recognizerProbes() phonetic.Probes {
	return phonetic.Probes{
		Server: whisper.Probe,
		Model:  whisper.ProbeModel,
	}
}

func annotatorOptions(rc config.RecognizerConfig, b phonetic.Backend) []phonetic.Option {
	opts := []phonetic.Option{phonetic.WithName(b.String())}
	if rc.Padding > 0 {
		opts = append(opts, phonetic.WithPadding(rc.Padding))
	}
	if rc.MinDuration > 0 {
		opts = append(opts, phonetic.WithMinDuration(rc.MinDuration))
	}
	if rc.Retry {
		opts = append(opts, phonetic.WithRetry(rc.RetryPadding))
	}
	return opts
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
